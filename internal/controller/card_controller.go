package controller

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"qrcard_backend/internal/model"
	"qrcard_backend/pkg/database"
	"qrcard_backend/pkg/gallery"
	"qrcard_backend/pkg/utils/response"
)

var viewSources = map[string]bool{"link": true, "qr": true, "nfc": true}

type RecordViewInput struct {
	Source string `json:"source" validate:"omitempty,oneof=link qr nfc"`
}

// CardURL is the public address a card's QR code points at.
func CardURL(username string) string {
	return strings.TrimRight(cfg().Server.ClientBaseURL, "/") + "/c/" + username
}

// GetPublicCard returns the profile, company block and gallery of a card.
func GetPublicCard(c *fiber.Ctx) error {
	user, err := loadByUsername(c.Params("username"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Card not found")
		}
		return response.Internal(c, "Could not load card")
	}

	var items []model.GalleryItem
	if err := database.GetDB().Where("user_id = ?", user.ID).
		Order("sort_order ASC, id ASC").
		Find(&items).Error; err != nil {
		return response.Internal(c, "Could not load card")
	}

	images := make([]model.GalleryItem, 0, len(items))
	videos := make([]model.GalleryItem, 0)
	for _, it := range items {
		if gallery.Kind(it.Kind) == gallery.KindVideo {
			videos = append(videos, it)
		} else {
			images = append(images, it)
		}
	}

	card := user.GetPublicProfile()
	card["card_url"] = CardURL(user.Username)
	card["gallery"] = fiber.Map{"images": images, "videos": videos}
	return response.Success(c, card)
}

// RecordCardView stores one visit. Repeat visits from the same IP inside
// model.UniqueViewWindow are kept but not counted as unique.
func RecordCardView(c *fiber.Ctx) error {
	user, err := loadByUsername(c.Params("username"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Card not found")
		}
		return response.Internal(c, "Could not record view")
	}

	source := "link"
	input := new(RecordViewInput)
	if len(c.Body()) > 0 {
		if ok, err := parseBody(c, input); !ok {
			return err
		}
	}
	if input.Source != "" {
		source = input.Source
	} else if q := c.Query("src"); viewSources[q] {
		source = q
	}

	view := model.CardView{
		UserID:    user.ID,
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Source:    source,
	}
	if err := database.GetDB().Create(&view).Error; err != nil {
		log.Errorf("[Card] recording view for %s: %v", user.Username, err)
		return response.Internal(c, "Could not record view")
	}
	return response.Success(c, fiber.Map{"unique": view.IsUnique})
}
