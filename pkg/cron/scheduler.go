// Package cron runs the periodic maintenance jobs: plan expiry, reward
// expiry and the weekly card digest.
package cron

import (
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"qrcard_backend/pkg/email"
)

const (
	PlanExpirySchedule   = "0 9 * * *"  // daily 09:00
	RewardExpirySchedule = "@hourly"
	CardStatsSchedule    = "0 20 * * 0" // Sunday 20:00
)

type Jobs struct {
	DB            *gorm.DB
	Mailer        *email.EmailService
	ClientBaseURL string
	Now           func() time.Time
}

func (j Jobs) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

func (j Jobs) PlanExpiry() {
	checkExpiringPlans(j.DB, j.Mailer, j.now())
	n, err := downgradeExpiredPlans(j.DB, j.Mailer, j.now())
	if err != nil {
		log.Errorf("[Cron] downgrading expired plans: %v", err)
		return
	}
	if n > 0 {
		log.Infof("[Cron] downgraded %d expired plans", n)
	}
}

func (j Jobs) RewardExpiry() {
	n, err := expireRewards(j.DB, j.now())
	if err != nil {
		log.Errorf("[Cron] expiring rewards: %v", err)
		return
	}
	if n > 0 {
		log.Infof("[Cron] %d rewards expired", n)
	}
}

func (j Jobs) CardStats() {
	sendWeeklyCardStats(j.DB, j.Mailer, j.ClientBaseURL, j.now())
}

// Start registers every job on a new scheduler and starts it. The caller
// stops it on shutdown.
func Start(jobs Jobs) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))

	entries := []struct {
		expr string
		fn   func()
	}{
		{PlanExpirySchedule, jobs.PlanExpiry},
		{RewardExpirySchedule, jobs.RewardExpiry},
		{CardStatsSchedule, jobs.CardStats},
	}
	for _, e := range entries {
		if _, err := c.AddFunc(e.expr, e.fn); err != nil {
			return nil, err
		}
	}

	c.Start()
	log.Infof("[Cron] scheduler started with %d jobs", len(entries))
	return c, nil
}
