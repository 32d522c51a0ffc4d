package seed

import (
	"errors"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"qrcard_backend/internal/model"
	"qrcard_backend/pkg/referral"
	"qrcard_backend/pkg/subscription"
)

// SeedAdmin creates the first admin account from ADMIN_EMAIL and
// ADMIN_PASSWORD. Existing accounts are promoted, never overwritten.
func SeedAdmin(db *gorm.DB) error {
	email := strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL")))
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		return nil
	}

	var existing model.User
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		if existing.Role != model.RoleAdmin {
			return db.Model(&existing).Update("role", model.RoleAdmin).Error
		}
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := model.User{
		Email:         email,
		Password:      string(hash),
		Username:      "admin",
		Name:          "Administrator",
		Role:          model.RoleAdmin,
		EmailVerified: true,
		Plan:          subscription.PremiumPlan.String(),
		ReferralCode:  referral.NewCode("admin"),
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	log.Infof("[Seed] admin account %s created", email)
	return nil
}
