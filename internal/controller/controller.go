// Package controller holds the HTTP handlers. Handlers are plain fiber
// functions; their collaborators are set once at startup through Init.
package controller

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"qrcard_backend/internal/middleware"
	"qrcard_backend/internal/model"
	"qrcard_backend/pkg/config"
	"qrcard_backend/pkg/database"
	"qrcard_backend/pkg/otp"
	"qrcard_backend/pkg/payment"
	"qrcard_backend/pkg/utils/response"
	"qrcard_backend/pkg/utils/storage"
	"qrcard_backend/pkg/wallet"
)

// Deps are the services handlers call into. Any of them may be nil when the
// matching integration is not configured; handlers answer 503 in that case.
type Deps struct {
	Config   *config.Config
	Store    storage.ObjectStore
	OTP      *otp.Service
	Payments *payment.Registry
	Stripe   *payment.Stripe
}

var (
	deps     Deps
	validate = newValidator()
)

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func Init(d Deps) {
	if d.Config == nil {
		d.Config = config.Load()
	}
	deps = d
}

func cfg() *config.Config {
	if deps.Config == nil {
		deps.Config = config.Load()
	}
	return deps.Config
}

func walletRules() wallet.Rules {
	return wallet.Rules{
		MinWithdrawal: cfg().Referral.MinWithdrawal,
		ReferralBonus: cfg().Referral.BonusAmount,
	}
}

// parseBody decodes and validates the request body into out. On failure the
// 400 response has already been written and the returned error is the
// write result, so callers return it as is.
func parseBody(c *fiber.Ctx, out interface{}) (bool, error) {
	if err := c.BodyParser(out); err != nil {
		return false, response.BadRequest(c, "Invalid request body")
	}
	if err := validate.Struct(out); err != nil {
		return false, response.BadRequest(c, validationMessage(err))
	}
	return true, nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid input"
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid", field)
}

// currentUser loads the signed-in user. The error response is written when
// ok is false.
func currentUser(c *fiber.Ctx) (*model.User, bool, error) {
	claims := middleware.Claims(c)
	if claims == nil {
		return nil, false, response.Fail(c, fiber.StatusUnauthorized, response.ErrUnauthorized, "Not signed in")
	}
	var user model.User
	if err := database.GetDB().First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, response.NotFound(c, "User not found")
		}
		return nil, false, response.Internal(c, "Could not load user")
	}
	return &user, true, nil
}

func unavailable(c *fiber.Ctx, what string) error {
	return response.Fail(c, fiber.StatusServiceUnavailable, response.ErrInternal, what+" is not available right now")
}

func pageParams(c *fiber.Ctx) (page, pageSize, offset int) {
	page = c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	pageSize = c.QueryInt("page_size", 20)
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize, (page - 1) * pageSize
}
