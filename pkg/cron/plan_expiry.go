package cron

import (
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"qrcard_backend/internal/model"
	"qrcard_backend/pkg/email"
	"qrcard_backend/pkg/subscription"
)

// WarningDays are the days-before-expiry a reminder goes out.
var WarningDays = []int{7, 3}

// dayWindow returns [start, end) of the calendar day days from now.
func dayWindow(now time.Time, days int) (time.Time, time.Time) {
	y, m, d := now.AddDate(0, 0, days).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 0, 1)
}

func checkExpiringPlans(db *gorm.DB, mailer *email.EmailService, now time.Time) {
	for _, days := range WarningDays {
		start, end := dayWindow(now, days)

		var users []model.User
		err := db.Where("plan <> ? AND plan_expires_at >= ? AND plan_expires_at < ?", subscription.BasicPlan.String(), start, end).
			Find(&users).Error
		if err != nil {
			log.Errorf("[Cron] fetching plans expiring in %d days: %v", days, err)
			continue
		}

		log.Infof("[Cron] %d plans expire in %d days", len(users), days)
		if mailer == nil {
			continue
		}
		for _, u := range users {
			if err := mailer.SendPlanExpiryWarning(u.Email, u.FirstName(), u.PlanKey().DisplayName(), *u.PlanExpiresAt, days); err != nil {
				log.Errorf("[Cron] expiry warning to %s: %v", u.Email, err)
			}
		}
	}
}

// downgradeExpiredPlans moves users whose paid plan has lapsed back to basic.
// Gallery items above the basic limits are kept; new uploads are refused
// until the user upgrades again.
func downgradeExpiredPlans(db *gorm.DB, mailer *email.EmailService, now time.Time) (int, error) {
	var users []model.User
	if err := db.Where("plan <> ? AND plan_expires_at IS NOT NULL AND plan_expires_at < ?", subscription.BasicPlan.String(), now).
		Find(&users).Error; err != nil {
		return 0, err
	}

	downgraded := 0
	for _, u := range users {
		previous := u.PlanKey()
		err := db.Model(&model.User{}).Where("id = ?", u.ID).
			Updates(map[string]interface{}{"plan": subscription.BasicPlan.String(), "plan_expires_at": nil}).Error
		if err != nil {
			log.Errorf("[Cron] downgrading user %d: %v", u.ID, err)
			continue
		}
		downgraded++
		if mailer != nil && previous != subscription.BasicPlan {
			if err := mailer.SendPlanDowngradedEmail(u.Email, u.FirstName(), previous.DisplayName()); err != nil {
				log.Errorf("[Cron] downgrade email to %s: %v", u.Email, err)
			}
		}
	}
	return downgraded, nil
}
