package model

import "time"

const (
	LoginMethodPassword = "password"
	LoginMethodOTP      = "otp"
)

type LoginHistory struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"index;not null"`
	Device    string    `json:"device" gorm:"size:255"`
	IP        string    `json:"ip" gorm:"size:50"`
	Method    string    `json:"method" gorm:"size:16"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
