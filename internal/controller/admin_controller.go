package controller

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qrcard_backend/internal/middleware"
	"qrcard_backend/internal/model"
	"qrcard_backend/pkg/database"
	"qrcard_backend/pkg/email"
	"qrcard_backend/pkg/subscription"
	"qrcard_backend/pkg/utils/response"
	"qrcard_backend/pkg/wallet"
)

var errAlreadyReviewed = errors.New("already reviewed")

type ReviewInput struct {
	Note string `json:"note" validate:"max=500"`
}

type SetPlanInput struct {
	Plan string `json:"plan" validate:"required"`
	Days int    `json:"days" validate:"omitempty,min=1,max=3650"`
}

func parseReview(c *fiber.Ctx) (*ReviewInput, bool, error) {
	input := new(ReviewInput)
	if len(c.Body()) == 0 {
		return input, true, nil
	}
	ok, err := parseBody(c, input)
	return input, ok, err
}

func reviewFailed(c *fiber.Ctx, err error, what string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return response.NotFound(c, what+" not found")
	case errors.Is(err, errAlreadyReviewed):
		return response.Fail(c, fiber.StatusConflict, response.ErrConflict, "This "+strings.ToLower(what)+" has already been reviewed")
	}
	log.Errorf("[Admin] reviewing %s: %v", strings.ToLower(what), err)
	return response.Internal(c, "Could not update "+strings.ToLower(what))
}

func AdminListReferrals(c *fiber.Ctx) error {
	page, pageSize, offset := pageParams(c)
	q := database.GetDB().Model(&model.Referral{})
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return response.Internal(c, "Could not load referrals")
	}
	var rows []model.Referral
	if err := q.Preload("Referrer").Preload("Referred").
		Order("created_at DESC").
		Offset(offset).Limit(pageSize).
		Find(&rows).Error; err != nil {
		return response.Internal(c, "Could not load referrals")
	}
	return response.Paginated(c, rows, page, pageSize, total)
}

// ApproveReferral credits the referrer's wallet and unlocks any reward level
// the new count reaches.
func ApproveReferral(c *fiber.Ctx) error {
	input, ok, err := parseReview(c)
	if !ok {
		return err
	}
	reviewer := middleware.Claims(c).UserID

	var (
		ref      model.Referral
		referrer model.User
		created  []model.UserReward
	)
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ref, c.Params("id")).Error; err != nil {
			return err
		}
		if ref.Status != model.ReferralPending {
			return errAlreadyReviewed
		}

		now := time.Now()
		if err := tx.Model(&ref).Updates(map[string]interface{}{
			"status":         model.ReferralApproved,
			"reviewed_by_id": reviewer,
			"reviewed_at":    now,
			"note":           input.Note,
		}).Error; err != nil {
			return err
		}

		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&referrer, ref.ReferrerID).Error; err != nil {
			return err
		}
		balance := wallet.Credit(referrer.WalletBalance, cfg().Referral.BonusAmount)
		if err := tx.Model(&referrer).Update("wallet_balance", balance).Error; err != nil {
			return err
		}

		var err error
		_, created, err = syncRewards(tx, referrer.ID, now)
		return err
	})
	if err != nil {
		return reviewFailed(c, err, "Referral")
	}

	notifyRewards(&referrer, created)
	log.Infof("[Admin] referral %d approved by %d; %d reward(s) unlocked", ref.ID, reviewer, len(created))
	return response.SuccessMessage(c, "Referral approved", ref)
}

func RejectReferral(c *fiber.Ctx) error {
	input, ok, err := parseReview(c)
	if !ok {
		return err
	}
	reviewer := middleware.Claims(c).UserID

	var ref model.Referral
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ref, c.Params("id")).Error; err != nil {
			return err
		}
		if ref.Status != model.ReferralPending {
			return errAlreadyReviewed
		}
		return tx.Model(&ref).Updates(map[string]interface{}{
			"status":         model.ReferralRejected,
			"reviewed_by_id": reviewer,
			"reviewed_at":    time.Now(),
			"note":           input.Note,
		}).Error
	})
	if err != nil {
		return reviewFailed(c, err, "Referral")
	}
	return response.SuccessMessage(c, "Referral rejected", ref)
}

func AdminListWithdrawals(c *fiber.Ctx) error {
	page, pageSize, offset := pageParams(c)
	q := database.GetDB().Model(&model.Withdrawal{})
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return response.Internal(c, "Could not load withdrawals")
	}
	var rows []model.Withdrawal
	if err := q.Preload("User").
		Order("created_at ASC").
		Offset(offset).Limit(pageSize).
		Find(&rows).Error; err != nil {
		return response.Internal(c, "Could not load withdrawals")
	}
	return response.Paginated(c, rows, page, pageSize, total)
}

// reviewWithdrawal marks a pending withdrawal paid or rejected. A rejection
// returns the amount to the wallet.
func reviewWithdrawal(c *fiber.Ctx, paid bool) error {
	input, ok, err := parseReview(c)
	if !ok {
		return err
	}
	reviewer := middleware.Claims(c).UserID

	status := model.WithdrawalPaid
	if !paid {
		status = model.WithdrawalRejected
	}

	var w model.Withdrawal
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&w, c.Params("id")).Error; err != nil {
			return err
		}
		if w.Status != model.WithdrawalPending {
			return errAlreadyReviewed
		}
		if err := tx.Model(&w).Updates(map[string]interface{}{
			"status":         status,
			"reviewed_by_id": reviewer,
			"reviewed_at":    time.Now(),
			"note":           input.Note,
		}).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&w.User, w.UserID).Error; err != nil {
			return err
		}
		if paid {
			return nil
		}
		balance := wallet.Credit(w.User.WalletBalance, w.Amount)
		return tx.Model(&w.User).Update("wallet_balance", balance).Error
	})
	if err != nil {
		return reviewFailed(c, err, "Withdrawal")
	}

	if email.GlobalEmailService != nil {
		if err := email.GlobalEmailService.SendWithdrawalStatusEmail(w.User.Email, w.User.FirstName(), w.Amount, w.UPIID, paid, input.Note); err != nil {
			log.Errorf("[Admin] withdrawal email to %s: %v", w.User.Email, err)
		}
	}
	log.Infof("[Admin] withdrawal %d marked %s by %d", w.ID, status, reviewer)
	return response.SuccessMessage(c, "Withdrawal "+status, w)
}

func ApproveWithdrawal(c *fiber.Ctx) error { return reviewWithdrawal(c, true) }

func RejectWithdrawal(c *fiber.Ctx) error { return reviewWithdrawal(c, false) }

func AdminListUsers(c *fiber.Ctx) error {
	page, pageSize, offset := pageParams(c)
	q := database.GetDB().Model(&model.User{})
	if search := strings.TrimSpace(c.Query("q")); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("LOWER(email) LIKE ? OR LOWER(username) LIKE ? OR LOWER(name) LIKE ?", like, like, like)
	}
	if plan := c.Query("plan"); plan != "" {
		q = q.Where("plan = ?", subscription.NormalizePlan(plan).String())
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return response.Internal(c, "Could not load users")
	}
	var users []model.User
	if err := q.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&users).Error; err != nil {
		return response.Internal(c, "Could not load users")
	}
	return response.Paginated(c, users, page, pageSize, total)
}

// AdminSetPlan grants a plan without payment, e.g. for support cases.
func AdminSetPlan(c *fiber.Ctx) error {
	input := new(SetPlanInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}

	var user model.User
	if err := database.GetDB().First(&user, c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "User not found")
		}
		return response.Internal(c, "Could not load user")
	}

	plan := subscription.NormalizePlan(input.Plan)
	updates := map[string]interface{}{"plan": plan.String(), "plan_expires_at": nil}
	if plan != subscription.BasicPlan {
		days := input.Days
		if days == 0 {
			days = subscription.PlanDurationDays
		}
		updates["plan_expires_at"] = time.Now().AddDate(0, 0, days)
	}
	if err := database.GetDB().Model(&user).Updates(updates).Error; err != nil {
		return response.Internal(c, "Could not update plan")
	}
	log.Infof("[Admin] user %d set to %s by %d", user.ID, plan, middleware.Claims(c).UserID)
	return response.SuccessMessage(c, "Plan updated", user)
}
