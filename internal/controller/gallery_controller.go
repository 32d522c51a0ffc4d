package controller

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qrcard_backend/internal/middleware"
	"qrcard_backend/internal/model"
	"qrcard_backend/pkg/database"
	"qrcard_backend/pkg/gallery"
	"qrcard_backend/pkg/subscription"
	imageutil "qrcard_backend/pkg/utils/image"
	"qrcard_backend/pkg/utils/response"
	"qrcard_backend/pkg/utils/storage"
)

const maxBatchFiles = 20

type VideoInput struct {
	URL   string `json:"url" validate:"required,url,max=500"`
	Title string `json:"title" validate:"max=120"`
}

type ReorderInput struct {
	IDs []uint `json:"ids" validate:"required,min=1,dive,gt=0"`
}

// UploadResult reports every file of a batch. Rejected files were never
// attempted because the plan limit was reached.
type UploadResult struct {
	Entries   []gallery.Entry `json:"entries"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Rejected  []string        `json:"rejected,omitempty"`
	Slots     gallery.Slots   `json:"slots"`
}

func ListGallery(c *fiber.Ctx) error {
	claims := middleware.Claims(c)

	var items []model.GalleryItem
	if err := database.GetDB().Where("user_id = ?", claims.UserID).
		Order("sort_order ASC, id ASC").
		Find(&items).Error; err != nil {
		return response.Internal(c, "Could not load gallery")
	}

	plan, err := middleware.LookupUserPlan(claims.UserID)
	if err != nil {
		return response.Internal(c, "Could not load gallery")
	}
	var images, videos int64
	for _, it := range items {
		if gallery.Kind(it.Kind) == gallery.KindVideo {
			videos++
		} else {
			images++
		}
	}

	return response.Success(c, fiber.Map{
		"items": items,
		"slots": GalleryUsage{
			Images: gallery.SlotsFor(plan, gallery.KindImage, images),
			Videos: gallery.SlotsFor(plan, gallery.KindVideo, videos),
		},
		"can_add_videos": subscription.CanUseFeature(plan, subscription.VideoGallery),
	})
}

// UploadGallery is mounted behind CheckGalleryLimit(KindImage), which leaves
// the plan and slots in Locals. Files beyond the remaining slots are refused
// up front; the rest are uploaded one by one.
func UploadGallery(c *fiber.Ctx) error {
	if deps.Store == nil {
		return unavailable(c, "File storage")
	}
	claims := middleware.Claims(c)
	plan, _ := c.Locals("plan").(subscription.Plan)
	slots, _ := c.Locals("slots").(gallery.Slots)

	form, err := c.MultipartForm()
	if err != nil {
		return response.BadRequest(c, "Expected a multipart form")
	}
	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		return response.BadRequest(c, "No files provided")
	}
	if len(files) > maxBatchFiles {
		return response.BadRequest(c, "Too many files in one upload")
	}

	accepted, rejected, splitErr := gallery.SplitBatch(files, slots, plan, gallery.KindImage)

	var user model.User
	if err := database.GetDB().Select("id", "username").First(&user, claims.UserID).Error; err != nil {
		return response.NotFound(c, "User not found")
	}

	entries := gallery.UploadBatch(c.UserContext(), accepted, galleryUploader(&user, plan))
	succeeded, failed := gallery.Counts(entries)

	result := UploadResult{
		Entries:   entries,
		Succeeded: succeeded,
		Failed:    failed,
		Slots:     gallery.SlotsFor(plan, gallery.KindImage, slots.Current+int64(succeeded)),
	}
	for _, f := range rejected {
		result.Rejected = append(result.Rejected, f.Filename)
	}

	message := ""
	if splitErr != nil {
		message = splitErr.Error()
	}
	log.Infof("[Gallery] user %d uploaded %d/%d files", claims.UserID, succeeded, len(files))
	return response.SuccessMessage(c, message, result)
}

// galleryUploader stores one file and creates its row. Photos are re-encoded
// to webp; documents are stored as uploaded.
func galleryUploader(user *model.User, plan subscription.Plan) gallery.UploadFunc {
	return func(ctx context.Context, file *multipart.FileHeader) (uint, error) {
		contentType := file.Header.Get(fiber.HeaderContentType)

		var body io.Reader
		ext := ""
		if imageutil.Reencodable(contentType) {
			buf, err := imageutil.ToWebP(file)
			if err != nil {
				return 0, err
			}
			body, contentType, ext = buf, imageutil.ContentTypeWebP, ".webp"
		} else {
			src, err := file.Open()
			if err != nil {
				return 0, err
			}
			defer src.Close()
			body = src
		}

		key := storage.ObjectKey(user.Username, "gallery", file.Filename, ext)
		url, err := deps.Store.Put(ctx, key, body, contentType)
		if err != nil {
			log.Errorf("[Gallery] storing %s: %v", file.Filename, err)
			return 0, errors.New("could not store file")
		}

		item := model.GalleryItem{
			UserID:    user.ID,
			Kind:      string(gallery.KindImage),
			URL:       url,
			ObjectKey: key,
			Title:     strings.TrimSuffix(file.Filename, ext),
			MimeType:  contentType,
			Size:      file.Size,
		}
		if err := insertGalleryItem(database.GetDB(), plan, &item); err != nil {
			if derr := deps.Store.Delete(ctx, url); derr != nil {
				log.Warnf("[Gallery] cleaning up %s: %v", url, derr)
			}
			if errors.Is(err, gallery.ErrLimitReached) {
				return 0, err
			}
			return 0, errors.New("could not save file")
		}
		return item.ID, nil
	}
}

// insertGalleryItem re-counts the owner's items of the same kind under the
// user row lock and creates item only while a slot is free. New items go to
// the end of the gallery.
func insertGalleryItem(db *gorm.DB, plan subscription.Plan, item *model.GalleryItem) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var owner model.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&owner, item.UserID).Error; err != nil {
			return err
		}
		var current int64
		if err := tx.Model(&model.GalleryItem{}).
			Where("user_id = ? AND kind = ?", item.UserID, item.Kind).
			Count(&current).Error; err != nil {
			return err
		}
		if gallery.SlotsFor(plan, gallery.Kind(item.Kind), current).HasReachedLimit {
			return gallery.ErrLimitReached
		}
		item.SortOrder = int(current)
		return tx.Create(item).Error
	})
}

// AddVideo is mounted behind CheckGalleryLimit(KindVideo).
func AddVideo(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	input := new(VideoInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}
	plan, _ := c.Locals("plan").(subscription.Plan)

	item := model.GalleryItem{
		UserID: claims.UserID,
		Kind:   string(gallery.KindVideo),
		URL:    strings.TrimSpace(input.URL),
		Title:  strings.TrimSpace(input.Title),
	}
	if err := insertGalleryItem(database.GetDB(), plan, &item); err != nil {
		if errors.Is(err, gallery.ErrLimitReached) {
			return response.Fail(c, fiber.StatusForbidden, response.ErrLimitReached, "You have no video slots left")
		}
		return response.Internal(c, "Could not add video")
	}
	return response.Created(c, item)
}

// DeleteGalleryItem is mounted behind CheckGalleryOwnership.
func DeleteGalleryItem(c *fiber.Ctx) error {
	item, _ := c.Locals("galleryItem").(*model.GalleryItem)
	if item == nil {
		return response.NotFound(c, "Item not found")
	}

	if err := database.GetDB().Delete(item).Error; err != nil {
		return response.Internal(c, "Could not delete item")
	}
	if item.ObjectKey != "" && deps.Store != nil {
		if err := deps.Store.Delete(c.UserContext(), item.URL); err != nil {
			log.Warnf("[Gallery] deleting object %s: %v", item.URL, err)
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ReorderGallery sets sort_order from the position of each id in the list.
// Ids that are not the caller's are ignored.
func ReorderGallery(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	input := new(ReorderInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}

	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		for i, id := range input.IDs {
			if err := tx.Model(&model.GalleryItem{}).
				Where("id = ? AND user_id = ?", id, claims.UserID).
				Update("sort_order", i).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return response.Internal(c, "Could not reorder gallery")
	}
	return response.SuccessMessage(c, "Gallery order saved", nil)
}
