package controller

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"qrcard_backend/internal/model"
	"qrcard_backend/pkg/database"
	"qrcard_backend/pkg/qr"
	"qrcard_backend/pkg/subscription"
	"qrcard_backend/pkg/utils/response"
)

// savedStyle decodes the user's stored style. Users whose plan no longer
// allows customisation get the default style.
func savedStyle(user *model.User) qr.Style {
	if len(user.QRStyle) == 0 || !subscription.CanUseFeature(user.PlanKey(), subscription.QRCustomization) {
		return qr.DefaultStyle()
	}
	var style qr.Style
	if err := json.Unmarshal(user.QRStyle, &style); err != nil {
		log.Warnf("[QR] bad stored style for user %d: %v", user.ID, err)
		return qr.DefaultStyle()
	}
	return style.WithDefaults()
}

func sendQR(c *fiber.Ctx, user *model.User) error {
	style := savedStyle(user)
	if size := c.QueryInt("size"); size != 0 {
		style.Size = size
	}
	png, err := qr.Render(CardURL(user.Username)+"?src=qr", style)
	if err != nil {
		if errors.Is(err, qr.ErrInvalidStyle) {
			return response.BadRequest(c, err.Error())
		}
		return response.Internal(c, "Could not render QR code")
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "public, max-age=300")
	return c.Send(png)
}

// GetMyQR renders the signed-in user's card QR with their saved style.
func GetMyQR(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	return sendQR(c, user)
}

func GetPublicQR(c *fiber.Ctx) error {
	user, err := loadByUsername(c.Params("username"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Card not found")
		}
		return response.Internal(c, "Could not load card")
	}
	return sendQR(c, user)
}

func GetQRStyle(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	return response.Success(c, savedStyle(user))
}

// UpdateQRStyle is mounted behind RequireFeature(QRCustomization).
func UpdateQRStyle(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	style := new(qr.Style)
	if ok, err := parseBody(c, style); !ok {
		return err
	}
	merged := style.WithDefaults()
	if err := merged.Validate(); err != nil {
		return response.BadRequest(c, err.Error())
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		return response.Internal(c, "Could not save style")
	}
	if err := database.GetDB().Model(user).Update("qr_style", datatypes.JSON(raw)).Error; err != nil {
		return response.Internal(c, "Could not save style")
	}
	return response.SuccessMessage(c, "QR style saved", merged)
}
