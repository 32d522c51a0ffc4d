package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"qrcard_backend/internal/middleware"
	"qrcard_backend/internal/model"
	"qrcard_backend/pkg/database"
	"qrcard_backend/pkg/gallery"
	"qrcard_backend/pkg/utils/response"
)

// DashboardStats is the card owner's overview.
type DashboardStats struct {
	TotalViews  int64          `json:"total_views"`
	UniqueViews int64          `json:"unique_views"`
	WeeklyViews int64          `json:"weekly_views"`
	DailyStats  []DailyStat    `json:"daily_stats"`
	Sources     []SourceStat   `json:"sources"`
	Gallery     GalleryUsage   `json:"gallery"`
	Referrals   ReferralCounts `json:"referrals"`
}

type DailyStat struct {
	Date        string `json:"date"`
	Views       int64  `json:"views"`
	UniqueViews int64  `json:"unique_views"`
}

type SourceStat struct {
	Source string `json:"source"`
	Views  int64  `json:"views"`
}

type GalleryUsage struct {
	Images gallery.Slots `json:"images"`
	Videos gallery.Slots `json:"videos"`
}

type ReferralCounts struct {
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
}

const dailyStatDays = 7

// GetDashboardStats returns view counters, the last seven days, view sources,
// gallery usage and referral counts.
func GetDashboardStats(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	db := database.GetDB()

	var user model.User
	if err := db.Select("id", "plan").First(&user, claims.UserID).Error; err != nil {
		return response.NotFound(c, "User not found")
	}

	var stats DashboardStats

	var counters model.CardStats
	if err := db.Where("user_id = ?", claims.UserID).Limit(1).Find(&counters).Error; err != nil {
		return response.Internal(c, "Could not load stats")
	}
	stats.TotalViews = counters.TotalViews
	stats.UniqueViews = counters.UniqueViews
	stats.WeeklyViews = counters.WeeklyViews

	since := time.Now().AddDate(0, 0, -(dailyStatDays - 1))
	since = time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, since.Location())

	var rows []DailyStat
	if err := db.Model(&model.CardView{}).
		Select("TO_CHAR(viewed_at, 'YYYY-MM-DD') AS date, COUNT(*) AS views, COUNT(*) FILTER (WHERE is_unique) AS unique_views").
		Where("user_id = ? AND viewed_at >= ?", claims.UserID, since).
		Group("date").
		Scan(&rows).Error; err != nil {
		return response.Internal(c, "Could not load stats")
	}
	stats.DailyStats = fillDays(rows, since, dailyStatDays)

	if err := db.Model(&model.CardView{}).
		Select("source, COUNT(*) AS views").
		Where("user_id = ?", claims.UserID).
		Group("source").
		Order("views DESC").
		Scan(&stats.Sources).Error; err != nil {
		return response.Internal(c, "Could not load stats")
	}

	plan := user.PlanKey()
	for _, kind := range []gallery.Kind{gallery.KindImage, gallery.KindVideo} {
		n, err := middleware.CountGalleryItems(claims.UserID, kind)
		if err != nil {
			return response.Internal(c, "Could not load stats")
		}
		slots := gallery.SlotsFor(plan, kind, n)
		if kind == gallery.KindVideo {
			stats.Gallery.Videos = slots
		} else {
			stats.Gallery.Images = slots
		}
	}

	var byStatus []struct {
		Status string
		N      int64
	}
	if err := db.Model(&model.Referral{}).
		Select("status, COUNT(*) AS n").
		Where("referrer_id = ?", claims.UserID).
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return response.Internal(c, "Could not load stats")
	}
	for _, r := range byStatus {
		switch r.Status {
		case model.ReferralPending:
			stats.Referrals.Pending = r.N
		case model.ReferralApproved:
			stats.Referrals.Approved = r.N
		case model.ReferralRejected:
			stats.Referrals.Rejected = r.N
		}
	}

	return response.Success(c, stats)
}

// fillDays returns one row per day starting at since, zero-filled.
func fillDays(rows []DailyStat, since time.Time, days int) []DailyStat {
	byDate := make(map[string]DailyStat, len(rows))
	for _, r := range rows {
		byDate[r.Date] = r
	}
	out := make([]DailyStat, 0, days)
	for i := 0; i < days; i++ {
		date := since.AddDate(0, 0, i).Format("2006-01-02")
		row, ok := byDate[date]
		if !ok {
			row = DailyStat{Date: date}
		}
		out = append(out, row)
	}
	return out
}
