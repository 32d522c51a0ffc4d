package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"qrcard_backend/pkg/utils/jwt"
	"qrcard_backend/pkg/utils/response"
)

// AuthMiddleware requires a valid bearer token and stores its claims under
// c.Locals("user").
func AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return response.Fail(c, fiber.StatusUnauthorized, response.ErrUnauthorized, "Missing or malformed token")
		}

		claims, err := jwt.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			return response.Fail(c, fiber.StatusUnauthorized, response.ErrUnauthorized, "Invalid or expired token")
		}

		c.Locals("user", claims)
		return c.Next()
	}
}

// Claims returns the claims AuthMiddleware stored, or nil.
func Claims(c *fiber.Ctx) *jwt.Claims {
	claims, _ := c.Locals("user").(*jwt.Claims)
	return claims
}
