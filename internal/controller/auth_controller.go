package controller

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"qrcard_backend/internal/model"
	"qrcard_backend/pkg/database"
	"qrcard_backend/pkg/email"
	"qrcard_backend/pkg/otp"
	"qrcard_backend/pkg/referral"
	"qrcard_backend/pkg/subscription"
	"qrcard_backend/pkg/utils/jwt"
	"qrcard_backend/pkg/utils/response"
)

const (
	resetTokenTTL    = time.Hour
	otpPurpose       = "login"
	otpVerifyPurpose = "verify-phone"
)

type RegisterInput struct {
	Name         string `json:"name" validate:"required,min=2,max=80"`
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=8,max=72"`
	Phone        string `json:"phone" validate:"omitempty,max=20"`
	ReferralCode string `json:"referral_code" validate:"omitempty,max=32"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type TokenInput struct {
	Token string `json:"token" validate:"required"`
}

type ForgotPasswordInput struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordInput struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type OTPSendInput struct {
	Phone string `json:"phone" validate:"required"`
}

type OTPVerifyInput struct {
	Phone string `json:"phone" validate:"required"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// AuthResult is what both login flows answer with.
type AuthResult struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// uniqueUsername slugs base and appends -2, -3... until it is free.
func uniqueUsername(db *gorm.DB, base string) (string, error) {
	root := slug.Make(base)
	if root == "" {
		root = "card"
	}
	if len(root) > 40 {
		root = strings.Trim(root[:40], "-")
	}

	candidate := root
	for i := 2; i < 1000; i++ {
		var n int64
		if err := db.Model(&model.User{}).Where("username = ?", candidate).Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", root, i)
	}
	return root + "-" + uuid.NewString()[:8], nil
}

func uniqueReferralCode(db *gorm.DB, seed string) (string, error) {
	for i := 0; i < 5; i++ {
		code := referral.NewCode(seed)
		var n int64
		if err := db.Model(&model.User{}).Where("referral_code = ?", code).Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return code, nil
		}
	}
	return "", errors.New("could not allocate a referral code")
}

func Register(c *fiber.Ctx) error {
	input := new(RegisterInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}

	db := database.GetDB()
	mail := normalizeEmail(input.Email)

	var existing int64
	if err := db.Model(&model.User{}).Where("email = ?", mail).Count(&existing).Error; err != nil {
		return response.Internal(c, "Could not create account")
	}
	if existing > 0 {
		return response.Fail(c, fiber.StatusConflict, response.ErrConflict, "An account with this email already exists")
	}

	phone := ""
	if strings.TrimSpace(input.Phone) != "" {
		p, err := otp.NormalizePhone(input.Phone)
		if err != nil {
			return response.BadRequest(c, "Invalid phone number")
		}
		phone = p
		taken, err := phoneTaken(db, phone, 0)
		if err != nil {
			return response.Internal(c, "Could not create account")
		}
		if taken {
			return response.Fail(c, fiber.StatusConflict, response.ErrConflict, "This phone number belongs to another account")
		}
	}

	var referrer *model.User
	if code := referral.NormalizeCode(input.ReferralCode); code != "" {
		var r model.User
		if err := db.Where("referral_code = ?", code).First(&r).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return response.BadRequest(c, "Invalid referral code")
			}
			return response.Internal(c, "Could not create account")
		}
		referrer = &r
	}

	username, err := uniqueUsername(db, input.Name)
	if err != nil {
		return response.Internal(c, "Could not create account")
	}
	code, err := uniqueReferralCode(db, username)
	if err != nil {
		return response.Internal(c, "Could not create account")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return response.Internal(c, "Could not create account")
	}

	user := model.User{
		Email:             mail,
		Password:          string(hash),
		Username:          username,
		Name:              strings.TrimSpace(input.Name),
		Phone:             phone,
		Role:              model.RoleUser,
		Plan:              subscription.BasicPlan.String(),
		ReferralCode:      code,
		VerificationToken: uuid.NewString(),
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if referrer != nil {
			user.ReferredByID = &referrer.ID
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		if referrer == nil {
			return nil
		}
		return tx.Create(&model.Referral{
			ReferrerID: referrer.ID,
			ReferredID: user.ID,
			Status:     model.ReferralPending,
		}).Error
	})
	if err != nil {
		log.Errorf("[Auth] creating user %s: %v", mail, err)
		return response.Internal(c, "Could not create account")
	}

	if email.GlobalEmailService != nil {
		if err := email.GlobalEmailService.SendVerificationEmail(user.Email, user.FirstName(), user.VerificationToken); err != nil {
			log.Errorf("[Auth] verification email to %s: %v", user.Email, err)
		}
	}

	log.Infof("[Auth] registered user %d (%s)", user.ID, user.Username)
	return response.Created(c, user)
}

func VerifyEmail(c *fiber.Ctx) error {
	input := new(TokenInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}

	db := database.GetDB()
	var user model.User
	if err := db.Where("verification_token = ?", input.Token).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.BadRequest(c, "Verification link is invalid or has already been used")
		}
		return response.Internal(c, "Could not verify email")
	}

	if err := db.Model(&user).Updates(map[string]interface{}{
		"email_verified":     true,
		"verification_token": "",
	}).Error; err != nil {
		return response.Internal(c, "Could not verify email")
	}
	return response.SuccessMessage(c, "Email verified. You can sign in now.", nil)
}

func Login(c *fiber.Ctx) error {
	input := new(LoginInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}

	var user model.User
	if err := database.GetDB().Where("email = ?", normalizeEmail(input.Email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.Fail(c, fiber.StatusUnauthorized, response.ErrInvalidCredentials, "Invalid email or password")
		}
		return response.Internal(c, "Could not sign in")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		return response.Fail(c, fiber.StatusUnauthorized, response.ErrInvalidCredentials, "Invalid email or password")
	}

	if !user.EmailVerified {
		return response.Fail(c, fiber.StatusForbidden, response.ErrEmailNotVerified, "Email address is not verified")
	}

	return issueToken(c, &user, model.LoginMethodPassword)
}

func issueToken(c *fiber.Ctx, user *model.User, method string) error {
	token, err := jwt.GenerateToken(user.ID, user.Email, user.Username, user.Role)
	if err != nil {
		return response.Internal(c, "Could not sign in")
	}

	entry := model.LoginHistory{
		UserID: user.ID,
		Device: c.Get(fiber.HeaderUserAgent),
		IP:     c.IP(),
		Method: method,
	}
	if err := database.GetDB().Create(&entry).Error; err != nil {
		log.Warnf("[Auth] login history for user %d: %v", user.ID, err)
	}

	return response.Success(c, AuthResult{Token: token, User: user})
}

// ForgotPassword always answers the same way so it cannot be used to probe
// which emails have accounts.
func ForgotPassword(c *fiber.Ctx) error {
	input := new(ForgotPasswordInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}

	const msg = "If an account exists for this email, a reset link has been sent."
	db := database.GetDB()

	var user model.User
	if err := db.Where("email = ?", normalizeEmail(input.Email)).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("[Auth] reset lookup: %v", err)
		}
		return response.SuccessMessage(c, msg, nil)
	}

	token := uuid.NewString()
	expires := time.Now().Add(resetTokenTTL)
	if err := db.Model(&user).Updates(map[string]interface{}{
		"reset_token":      token,
		"reset_expires_at": expires,
	}).Error; err != nil {
		return response.Internal(c, "Could not start password reset")
	}

	if email.GlobalEmailService != nil {
		if err := email.GlobalEmailService.SendPasswordResetEmail(user.Email, token); err != nil {
			log.Errorf("[Auth] reset email to %s: %v", user.Email, err)
		}
	}
	return response.SuccessMessage(c, msg, nil)
}

func ResetPassword(c *fiber.Ctx) error {
	input := new(ResetPasswordInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}

	db := database.GetDB()
	var user model.User
	err := db.Where("reset_token = ? AND reset_expires_at > ?", input.Token, time.Now()).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.BadRequest(c, "Reset link is invalid or has expired")
		}
		return response.Internal(c, "Could not reset password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return response.Internal(c, "Could not reset password")
	}

	if err := db.Model(&user).Updates(map[string]interface{}{
		"password":         string(hash),
		"reset_token":      "",
		"reset_expires_at": nil,
	}).Error; err != nil {
		return response.Internal(c, "Could not reset password")
	}

	if email.GlobalEmailService != nil {
		if err := email.GlobalEmailService.SendPasswordChangedEmail(user.Email); err != nil {
			log.Errorf("[Auth] password changed email to %s: %v", user.Email, err)
		}
	}
	return response.SuccessMessage(c, "Password updated. You can sign in now.", nil)
}

func SendOTP(c *fiber.Ctx) error {
	input := new(OTPSendInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}
	if deps.OTP == nil {
		return unavailable(c, "Phone sign-in")
	}

	phone, err := otp.NormalizePhone(input.Phone)
	if err != nil {
		return response.BadRequest(c, "Invalid phone number")
	}

	if _, err := userByVerifiedPhone(database.GetDB(), phone); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "No account has verified this phone number")
		}
		return response.Internal(c, "Could not send code")
	}

	if err := deps.OTP.Send(c.UserContext(), otpPurpose, phone); err != nil {
		if errors.Is(err, otp.ErrTooSoon) {
			return response.Fail(c, fiber.StatusTooManyRequests, response.ErrTooManyRequests, "Please wait before requesting another code")
		}
		log.Errorf("[Auth] sending otp: %v", err)
		return response.Internal(c, "Could not send code")
	}
	return response.SuccessMessage(c, "Code sent", fiber.Map{"expires_in": int(otp.TTL.Seconds())})
}

func VerifyOTP(c *fiber.Ctx) error {
	input := new(OTPVerifyInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}
	if deps.OTP == nil {
		return unavailable(c, "Phone sign-in")
	}

	phone, err := otp.NormalizePhone(input.Phone)
	if err != nil {
		return response.BadRequest(c, "Invalid phone number")
	}

	if err := deps.OTP.Verify(c.UserContext(), otpPurpose, phone, input.Code); err != nil {
		switch {
		case errors.Is(err, otp.ErrTooManyAttempts):
			return response.Fail(c, fiber.StatusTooManyRequests, response.ErrTooManyRequests, "Too many attempts. Request a new code.")
		case errors.Is(err, otp.ErrInvalidCode):
			return response.Fail(c, fiber.StatusUnauthorized, response.ErrOTPInvalid, "The code is invalid or has expired")
		}
		log.Errorf("[Auth] verifying otp: %v", err)
		return response.Internal(c, "Could not verify code")
	}

	user, err := userByVerifiedPhone(database.GetDB(), phone)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "No account has verified this phone number")
		}
		return response.Internal(c, "Could not sign in")
	}

	return issueToken(c, user, model.LoginMethodOTP)
}

// userByVerifiedPhone finds the account that proved ownership of phone.
// Unverified numbers never sign anyone in.
func userByVerifiedPhone(db *gorm.DB, phone string) (*model.User, error) {
	var user model.User
	if err := db.Where("phone = ? AND phone_verified = ?", phone, true).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// phoneTaken reports whether an account other than exceptID has verified phone.
func phoneTaken(db *gorm.DB, phone string, exceptID uint) (bool, error) {
	var n int64
	err := db.Model(&model.User{}).
		Where("phone = ? AND phone_verified = ? AND id <> ?", phone, true, exceptID).
		Count(&n).Error
	return n > 0, err
}

func GetMe(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	return response.Success(c, user)
}
