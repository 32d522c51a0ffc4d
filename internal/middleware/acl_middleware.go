package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"qrcard_backend/internal/model"
	"qrcard_backend/pkg/database"
	"qrcard_backend/pkg/utils/response"
)

// RequireAdmin lets only admin tokens through. Must run after AuthMiddleware.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := Claims(c)
		if claims == nil || !claims.IsAdmin() {
			return response.Fail(c, fiber.StatusForbidden, response.ErrForbidden, "Admin access required")
		}
		return c.Next()
	}
}

// findGalleryItem is swapped in tests.
var findGalleryItem = func(id string) (*model.GalleryItem, error) {
	var item model.GalleryItem
	if err := database.DB.First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// CheckGalleryOwnership loads the gallery item in :id, checks it belongs to
// the caller and stores it under c.Locals("galleryItem").
func CheckGalleryOwnership() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := Claims(c)
		if claims == nil {
			return response.Fail(c, fiber.StatusUnauthorized, response.ErrUnauthorized, "Not signed in")
		}

		item, err := findGalleryItem(c.Params("id"))
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Gallery item not found")
		}
		if err != nil {
			return response.Internal(c, "Could not load gallery item")
		}

		if item.UserID != claims.UserID {
			return response.Fail(c, fiber.StatusForbidden, response.ErrForbidden, "You don't have permission to change this item")
		}

		c.Locals("galleryItem", item)
		return c.Next()
	}
}
