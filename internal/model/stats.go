package model

import (
	"time"

	"gorm.io/gorm"
)

// UniqueViewWindow is how long repeat views from one IP count once.
const UniqueViewWindow = 24 * time.Hour

// CardView is one visit to a public card.
type CardView struct {
	gorm.Model
	UserID    uint      `json:"user_id" gorm:"index"`
	IP        string    `json:"ip" gorm:"index"`
	UserAgent string    `json:"user_agent"`
	Source    string    `json:"source"` // link | qr | nfc
	ViewedAt  time.Time `json:"viewed_at" gorm:"index"`
	IsUnique  bool      `json:"is_unique"`

	User User `json:"-" gorm:"foreignKey:UserID"`
}

// CardStats are the running counters for one card.
type CardStats struct {
	gorm.Model
	UserID          uint      `json:"user_id" gorm:"uniqueIndex"`
	TotalViews      int64     `json:"total_views"`
	UniqueViews     int64     `json:"unique_views"`
	WeeklyViews     int64     `json:"weekly_views"`
	LastUpdated     time.Time `json:"last_updated"`
	LastWeeklyReset time.Time `json:"last_weekly_reset"`
}

func (cv *CardView) BeforeCreate(tx *gorm.DB) error {
	if cv.ViewedAt.IsZero() {
		cv.ViewedAt = time.Now()
	}
	var count int64
	if err := tx.Model(&CardView{}).
		Where("user_id = ? AND ip = ? AND viewed_at > ?", cv.UserID, cv.IP, cv.ViewedAt.Add(-UniqueViewWindow)).
		Count(&count).Error; err != nil {
		return err
	}
	cv.IsUnique = count == 0
	return nil
}

func (cv *CardView) AfterCreate(tx *gorm.DB) error {
	var stats CardStats
	if err := tx.FirstOrCreate(&stats, CardStats{UserID: cv.UserID}).Error; err != nil {
		return err
	}

	updates := map[string]interface{}{
		"total_views":  gorm.Expr("total_views + ?", 1),
		"weekly_views": gorm.Expr("weekly_views + ?", 1),
		"last_updated": time.Now(),
	}
	if cv.IsUnique {
		updates["unique_views"] = gorm.Expr("unique_views + ?", 1)
	}
	return tx.Model(&stats).Updates(updates).Error
}
