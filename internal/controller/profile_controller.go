package controller

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qrcard_backend/internal/model"
	"qrcard_backend/pkg/database"
	"qrcard_backend/pkg/otp"
	imageutil "qrcard_backend/pkg/utils/image"
	"qrcard_backend/pkg/utils/response"
	"qrcard_backend/pkg/utils/storage"
	"qrcard_backend/pkg/utils/validation"
)

// ProfileUpdateInput is a partial update; nil fields are left alone.
type ProfileUpdateInput struct {
	Name  *string `json:"name" validate:"omitempty,min=2,max=80"`
	Title *string `json:"title" validate:"omitempty,max=120"`
	Bio   *string `json:"bio" validate:"omitempty,max=1000"`
	Phone *string `json:"phone" validate:"omitempty,max=20"`
}

type PhoneCodeInput struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

type CompanyUpdateInput struct {
	CompanyName  string `json:"company_name" validate:"max=120"`
	Designation  string `json:"designation" validate:"max=120"`
	Website      string `json:"website" validate:"omitempty,url"`
	Address      string `json:"address" validate:"max=300"`
	CompanyEmail string `json:"company_email" validate:"omitempty,email"`
	CompanyPhone string `json:"company_phone" validate:"max=20"`
	About        string `json:"about" validate:"max=2000"`
}

func GetProfile(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	return response.Success(c, user)
}

func UpdateProfile(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	input := new(ProfileUpdateInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Title != nil {
		updates["title"] = strings.TrimSpace(*input.Title)
	}
	if input.Bio != nil {
		updates["bio"] = strings.TrimSpace(*input.Bio)
	}
	if input.Phone != nil {
		phone := strings.TrimSpace(*input.Phone)
		if phone != "" {
			if phone, err = otp.NormalizePhone(phone); err != nil {
				return response.BadRequest(c, "Invalid phone number")
			}
		}
		if phone != user.Phone {
			if phone != "" {
				taken, err := phoneTaken(database.GetDB(), phone, user.ID)
				if err != nil {
					return response.Internal(c, "Could not update profile")
				}
				if taken {
					return response.Fail(c, fiber.StatusConflict, response.ErrConflict, "This phone number belongs to another account")
				}
			}
			updates["phone"] = phone
			updates["phone_verified"] = false
		}
	}
	if len(updates) == 0 {
		return response.Success(c, user)
	}

	if err := database.GetDB().Model(user).Updates(updates).Error; err != nil {
		return response.Internal(c, "Could not update profile")
	}
	return response.SuccessMessage(c, "Profile updated", user)
}

// SendPhoneVerification texts a code to the phone saved on the profile.
func SendPhoneVerification(c *fiber.Ctx) error {
	if deps.OTP == nil {
		return unavailable(c, "Phone verification")
	}
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	if user.Phone == "" {
		return response.BadRequest(c, "Add a phone number to your profile first")
	}
	if user.PhoneVerified {
		return response.SuccessMessage(c, "Phone already verified", user)
	}

	taken, err := phoneTaken(database.GetDB(), user.Phone, user.ID)
	if err != nil {
		return response.Internal(c, "Could not send code")
	}
	if taken {
		return response.Fail(c, fiber.StatusConflict, response.ErrConflict, "This phone number belongs to another account")
	}

	if err := deps.OTP.Send(c.UserContext(), otpVerifyPurpose, user.Phone); err != nil {
		if errors.Is(err, otp.ErrTooSoon) {
			return response.Fail(c, fiber.StatusTooManyRequests, response.ErrTooManyRequests, "Please wait before requesting another code")
		}
		log.Errorf("[Profile] sending verification code to user %d: %v", user.ID, err)
		return response.Internal(c, "Could not send code")
	}
	return response.SuccessMessage(c, "Code sent", fiber.Map{"expires_in": int(otp.TTL.Seconds())})
}

// VerifyPhone marks the profile phone verified once the texted code matches.
func VerifyPhone(c *fiber.Ctx) error {
	if deps.OTP == nil {
		return unavailable(c, "Phone verification")
	}
	input := new(PhoneCodeInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	if user.Phone == "" {
		return response.BadRequest(c, "Add a phone number to your profile first")
	}

	if err := deps.OTP.Verify(c.UserContext(), otpVerifyPurpose, user.Phone, input.Code); err != nil {
		switch {
		case errors.Is(err, otp.ErrTooManyAttempts):
			return response.Fail(c, fiber.StatusTooManyRequests, response.ErrTooManyRequests, "Too many attempts. Request a new code.")
		case errors.Is(err, otp.ErrInvalidCode):
			return response.Fail(c, fiber.StatusUnauthorized, response.ErrOTPInvalid, "The code is invalid or has expired")
		}
		log.Errorf("[Profile] verifying phone for user %d: %v", user.ID, err)
		return response.Internal(c, "Could not verify code")
	}

	if err := markPhoneVerified(database.GetDB(), user); err != nil {
		if errors.Is(err, errPhoneTaken) {
			return response.Fail(c, fiber.StatusConflict, response.ErrConflict, "This phone number belongs to another account")
		}
		return response.Internal(c, "Could not verify phone")
	}
	return response.SuccessMessage(c, "Phone verified", user)
}

var errPhoneTaken = errors.New("phone verified by another account")

// markPhoneVerified flips phone_verified under a row lock so two accounts
// cannot both claim the same number.
func markPhoneVerified(db *gorm.DB, user *model.User) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var locked model.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, user.ID).Error; err != nil {
			return err
		}
		taken, err := phoneTaken(tx, locked.Phone, locked.ID)
		if err != nil {
			return err
		}
		if taken {
			return errPhoneTaken
		}
		if err := tx.Model(&locked).Update("phone_verified", true).Error; err != nil {
			return err
		}
		*user = locked
		return nil
	})
}

func UpdateCompany(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	input := new(CompanyUpdateInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}

	updates := map[string]interface{}{
		"company_name":  strings.TrimSpace(input.CompanyName),
		"designation":   strings.TrimSpace(input.Designation),
		"website":       strings.TrimSpace(input.Website),
		"address":       strings.TrimSpace(input.Address),
		"company_email": strings.TrimSpace(input.CompanyEmail),
		"company_phone": strings.TrimSpace(input.CompanyPhone),
		"about":         strings.TrimSpace(input.About),
	}
	if err := database.GetDB().Model(user).Updates(updates).Error; err != nil {
		return response.Internal(c, "Could not update company details")
	}
	return response.SuccessMessage(c, "Company details updated", user)
}

// UploadAvatar stores the photo as webp and replaces the previous avatar.
func UploadAvatar(c *fiber.Ctx) error {
	if deps.Store == nil {
		return unavailable(c, "File storage")
	}
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}

	file, err := c.FormFile("avatar")
	if err != nil {
		return response.BadRequest(c, "No avatar image provided")
	}
	contentType := file.Header.Get(fiber.HeaderContentType)
	if !validation.IsImage(contentType, file.Filename) {
		return response.BadRequest(c, "Avatar must be an image")
	}
	if file.Size > validation.MaxGalleryFileSize {
		return response.BadRequest(c, validation.ErrFileSize.Error())
	}
	if detected, err := validation.SniffFile(file); err != nil || !strings.HasPrefix(detected, "image/") {
		return response.BadRequest(c, "Avatar must be an image")
	}

	var body io.Reader
	ext := ""
	if imageutil.Reencodable(contentType) {
		buf, err := imageutil.ToWebP(file)
		if err != nil {
			return response.BadRequest(c, "Could not read the image")
		}
		body, contentType, ext = buf, imageutil.ContentTypeWebP, ".webp"
	} else {
		src, err := file.Open()
		if err != nil {
			return response.Internal(c, "Could not read upload")
		}
		defer src.Close()
		raw, err := io.ReadAll(src)
		if err != nil {
			return response.Internal(c, "Could not read upload")
		}
		body = bytes.NewReader(raw)
	}

	key := storage.ObjectKey(user.Username, "avatar", file.Filename, ext)
	url, err := deps.Store.Put(c.UserContext(), key, body, contentType)
	if err != nil {
		log.Errorf("[Profile] avatar upload for user %d: %v", user.ID, err)
		return response.Internal(c, "Could not upload avatar")
	}

	old := user.Avatar
	if err := database.GetDB().Model(user).Update("avatar", url).Error; err != nil {
		return response.Internal(c, "Could not update avatar")
	}
	if old != "" {
		if err := deps.Store.Delete(c.UserContext(), old); err != nil {
			log.Warnf("[Profile] deleting old avatar %s: %v", old, err)
		}
	}

	return response.SuccessMessage(c, "Avatar uploaded", fiber.Map{"avatar": url})
}

// loadByUsername finds a card owner by public username.
func loadByUsername(username string) (*model.User, error) {
	var user model.User
	err := database.GetDB().Where("username = ?", strings.ToLower(strings.TrimSpace(username))).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}
