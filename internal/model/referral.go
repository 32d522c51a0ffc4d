package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"qrcard_backend/pkg/rewards"
)

const (
	ReferralPending  = "pending"
	ReferralApproved = "approved"
	ReferralRejected = "rejected"
)

type Referral struct {
	gorm.Model
	ReferrerID   uint       `json:"referrer_id" gorm:"index;not null"`
	ReferredID   uint       `json:"referred_id" gorm:"uniqueIndex;not null"`
	Status       string     `json:"status" gorm:"index;default:'pending';not null"`
	ReviewedByID *uint      `json:"reviewed_by_id"`
	ReviewedAt   *time.Time `json:"reviewed_at"`
	Note         string     `json:"note"`

	Referrer User `json:"referrer" gorm:"foreignKey:ReferrerID"`
	Referred User `json:"referred" gorm:"foreignKey:ReferredID"`
}

// UserReward is the stored state of one reward level for one user.
type UserReward struct {
	gorm.Model
	UserID     uint       `json:"user_id" gorm:"uniqueIndex:idx_user_reward;not null"`
	RewardCode string     `json:"reward_code" gorm:"uniqueIndex:idx_user_reward;size:8;not null"`
	Status     string     `json:"status" gorm:"index;not null"`
	CouponCode string     `json:"coupon_code" gorm:"uniqueIndex"`
	UnlockedAt *time.Time `json:"unlocked_at"`
	ClaimedAt  *time.Time `json:"claimed_at"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

func (r UserReward) Record() rewards.Record {
	return rewards.Record{
		RewardCode: r.RewardCode,
		Status:     r.Status,
		CouponCode: r.CouponCode,
		UnlockedAt: r.UnlockedAt,
		ClaimedAt:  r.ClaimedAt,
		ExpiresAt:  r.ExpiresAt,
	}
}

const (
	WithdrawalPending  = "pending"
	WithdrawalPaid     = "paid"
	WithdrawalRejected = "rejected"
)

type Withdrawal struct {
	gorm.Model
	UserID       uint            `json:"user_id" gorm:"index;not null"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
	UPIID        string          `json:"upi_id" gorm:"not null"`
	Status       string          `json:"status" gorm:"index;default:'pending';not null"`
	ReviewedByID *uint           `json:"reviewed_by_id"`
	ReviewedAt   *time.Time      `json:"reviewed_at"`
	Note         string          `json:"note"`

	User User `json:"user" gorm:"foreignKey:UserID"`
}
