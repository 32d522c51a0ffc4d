package cron

import (
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"qrcard_backend/pkg/email"
)

type CardStats struct {
	UserID      uint
	UserEmail   string
	Name        string
	Username    string
	TotalViews  int64
	UniqueViews int64
}

func weeklyCardStats(db *gorm.DB, since time.Time) ([]CardStats, error) {
	var stats []CardStats
	err := db.Raw(`
        SELECT
            u.id AS user_id,
            u.email AS user_email,
            u.name,
            u.username,
            COUNT(cv.id) AS total_views,
            COUNT(DISTINCT cv.ip) AS unique_views
        FROM users u
        JOIN card_views cv ON cv.user_id = u.id AND cv.viewed_at >= ? AND cv.deleted_at IS NULL
        WHERE u.deleted_at IS NULL AND u.email_verified = true
        GROUP BY u.id, u.email, u.name, u.username
        HAVING COUNT(cv.id) > 0
    `, since).Scan(&stats).Error
	return stats, err
}

func sendWeeklyCardStats(db *gorm.DB, mailer *email.EmailService, clientBaseURL string, now time.Time) {
	since := now.AddDate(0, 0, -7)
	stats, err := weeklyCardStats(db, since)
	if err != nil {
		log.Errorf("[Cron] weekly card stats: %v", err)
		return
	}

	if mailer != nil {
		for _, s := range stats {
			name := s.Name
			if name == "" {
				name = s.Username
			}
			if err := mailer.SendWeeklyCardStats(s.UserEmail, name, s.TotalViews, s.UniqueViews, since, clientBaseURL+"/c/"+s.Username); err != nil {
				log.Errorf("[Cron] weekly stats to %s: %v", s.UserEmail, err)
			}
		}
	}

	if err := db.Exec("UPDATE card_stats SET weekly_views = 0, last_weekly_reset = ?", now).Error; err != nil {
		log.Errorf("[Cron] resetting weekly views: %v", err)
	}
	log.Infof("[Cron] weekly card stats sent to %d users", len(stats))
}
