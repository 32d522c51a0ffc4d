package cron

import (
	"time"

	"gorm.io/gorm"

	"qrcard_backend/internal/model"
	"qrcard_backend/pkg/rewards"
)

// expireRewards marks unlocked rewards whose claim window has passed.
func expireRewards(db *gorm.DB, now time.Time) (int64, error) {
	res := db.Model(&model.UserReward{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", string(rewards.StatusUnlocked), now).
		Update("status", string(rewards.StatusExpired))
	return res.RowsAffected, res.Error
}
