package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"qrcard_backend/internal/model"
	"qrcard_backend/pkg/database"
	"qrcard_backend/pkg/gallery"
	"qrcard_backend/pkg/subscription"
	"qrcard_backend/pkg/utils/response"
)

// LookupUserPlan resolves the caller's current plan. Tests replace it.
var LookupUserPlan = func(userID uint) (subscription.Plan, error) {
	var user model.User
	if err := database.DB.Select("id", "plan").First(&user, userID).Error; err != nil {
		return subscription.BasicPlan, err
	}
	return user.PlanKey(), nil
}

// CountGalleryItems counts the caller's items of one kind. Tests replace it.
var CountGalleryItems = func(userID uint, kind gallery.Kind) (int64, error) {
	var n int64
	err := database.DB.Model(&model.GalleryItem{}).
		Where("user_id = ? AND kind = ?", userID, string(kind)).
		Count(&n).Error
	return n, err
}

func planRequired(c *fiber.Ctx, feature subscription.Feature) error {
	required := subscription.RequiredPlan(feature)
	return response.Fail(c, fiber.StatusForbidden, response.ErrPlanRequired,
		fmt.Sprintf("This feature requires the %s plan or higher", required.DisplayName()))
}

// RequireFeature gates a route on the caller's plan. The resolved plan is
// stored under c.Locals("plan").
func RequireFeature(feature subscription.Feature) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := Claims(c)
		if claims == nil {
			return response.Fail(c, fiber.StatusUnauthorized, response.ErrUnauthorized, "Not signed in")
		}

		plan, err := LookupUserPlan(claims.UserID)
		if err != nil {
			log.Errorf("[Middleware] plan lookup for user %d: %v", claims.UserID, err)
			return response.Internal(c, "Could not check your plan")
		}

		if !subscription.CanUseFeature(plan, feature) {
			return planRequired(c, feature)
		}

		c.Locals("plan", plan)
		return c.Next()
	}
}

// CheckGalleryLimit rejects the request outright when no slot of kind is
// left and otherwise stores the computed gallery.Slots under
// c.Locals("slots") for the handler to split the batch with.
func CheckGalleryLimit(kind gallery.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := Claims(c)
		if claims == nil {
			return response.Fail(c, fiber.StatusUnauthorized, response.ErrUnauthorized, "Not signed in")
		}

		plan, err := LookupUserPlan(claims.UserID)
		if err != nil {
			return response.Internal(c, "Could not check your plan")
		}
		feature := subscription.Gallery
		if kind == gallery.KindVideo {
			feature = subscription.VideoGallery
		}
		if !subscription.CanUseFeature(plan, feature) {
			return planRequired(c, feature)
		}

		current, err := CountGalleryItems(claims.UserID, kind)
		if err != nil {
			return response.Internal(c, "Could not count gallery items")
		}

		slots := gallery.SlotsFor(plan, kind, current)
		if slots.HasReachedLimit {
			msg := fmt.Sprintf("You have reached the %s plan limit of %s %ss. Upgrade to add more.",
				plan.DisplayName(), subscription.LimitLabel(slots.Max), kind)
			return c.Status(fiber.StatusForbidden).JSON(response.Response{
				Error:   response.ErrLimitReached,
				Message: msg,
				Data:    slots,
			})
		}

		c.Locals("plan", plan)
		c.Locals("slots", slots)
		return c.Next()
	}
}
