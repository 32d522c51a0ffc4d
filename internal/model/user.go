package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"qrcard_backend/pkg/subscription"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	gorm.Model
	Email    string `json:"email" gorm:"uniqueIndex;not null"`
	Password string `json:"-" gorm:"not null"`
	Username string `json:"username" gorm:"uniqueIndex;not null"`
	Name     string `json:"name" gorm:"not null"`

	// Card profile
	Title         string `json:"title"`
	Bio           string `json:"bio" gorm:"type:text"`
	// A verified number belongs to one account only.
	Phone         string `json:"phone" gorm:"index;uniqueIndex:idx_users_verified_phone,where:phone_verified = true"`
	PhoneVerified bool   `json:"phone_verified" gorm:"default:false"`
	Avatar        string `json:"avatar"`

	// Company block on the card
	CompanyName  string `json:"company_name"`
	Designation  string `json:"designation"`
	Website      string `json:"website"`
	Address      string `json:"address"`
	CompanyEmail string `json:"company_email"`
	CompanyPhone string `json:"company_phone"`
	About        string `json:"about" gorm:"type:text"`

	// Account
	EmailVerified     bool       `json:"email_verified" gorm:"default:false"`
	VerificationToken string     `json:"-" gorm:"index"`
	ResetToken        string     `json:"-" gorm:"index"`
	ResetExpiresAt    *time.Time `json:"-"`
	Role              string     `json:"role" gorm:"default:'user';not null"`

	// Plan is stored canonical; older rows may hold a display name.
	Plan          string     `json:"plan" gorm:"default:'basic';not null"`
	PlanExpiresAt *time.Time `json:"plan_expires_at"`

	ReferralCode  string          `json:"referral_code" gorm:"uniqueIndex"`
	ReferredByID  *uint           `json:"referred_by_id"`
	WalletBalance decimal.Decimal `json:"wallet_balance" gorm:"type:numeric(12,2);not null;default:0"`

	QRStyle datatypes.JSON `json:"qr_style"`

	Gallery []GalleryItem `json:"-"`
}

func (u *User) PlanKey() subscription.Plan {
	return subscription.NormalizePlan(u.Plan)
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// FirstName is the part of Name before the first space.
func (u *User) FirstName() string {
	name := strings.TrimSpace(u.Name)
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i]
	}
	return name
}

func (u *User) GetPublicProfile() map[string]interface{} {
	return map[string]interface{}{
		"username": u.Username,
		"name":     u.Name,
		"title":    u.Title,
		"bio":      u.Bio,
		"phone":    u.Phone,
		"avatar":   u.Avatar,
		"plan":     u.PlanKey(),
		"company": map[string]interface{}{
			"name":        u.CompanyName,
			"designation": u.Designation,
			"website":     u.Website,
			"address":     u.Address,
			"email":       u.CompanyEmail,
			"phone":       u.CompanyPhone,
			"about":       u.About,
		},
	}
}
