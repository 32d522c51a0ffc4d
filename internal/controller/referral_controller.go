package controller

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qrcard_backend/internal/middleware"
	"qrcard_backend/internal/model"
	"qrcard_backend/pkg/database"
	"qrcard_backend/pkg/email"
	"qrcard_backend/pkg/referral"
	"qrcard_backend/pkg/rewards"
	"qrcard_backend/pkg/utils/response"
	"qrcard_backend/pkg/wallet"
)

type WithdrawInput struct {
	Amount decimal.Decimal `json:"amount"`
	UPIID  string          `json:"upi_id" validate:"required,max=256"`
}

// ReferralEntry is one person the caller referred.
type ReferralEntry struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type RewardsResponse struct {
	ReferralCount int                 `json:"referral_count"`
	Levels        []rewards.LevelView `json:"levels"`
}

func claimWindow() time.Duration {
	return time.Duration(cfg().Referral.ClaimWindowDays) * 24 * time.Hour
}

func approvedReferrals(db *gorm.DB, userID uint) (int64, error) {
	var n int64
	err := db.Model(&model.Referral{}).
		Where("referrer_id = ? AND status = ?", userID, model.ReferralApproved).
		Count(&n).Error
	return n, err
}

// syncRewards creates the reward rows the user has newly reached and returns
// every stored row plus the ones just created.
func syncRewards(tx *gorm.DB, userID uint, now time.Time) (all, created []model.UserReward, err error) {
	count, err := approvedReferrals(tx, userID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Where("user_id = ?", userID).Find(&all).Error; err != nil {
		return nil, nil, err
	}

	records := make([]rewards.Record, 0, len(all))
	for _, r := range all {
		records = append(records, r.Record())
	}

	for _, g := range rewards.Sync(int(count), records, now, claimWindow()) {
		unlocked, expires := g.UnlockedAt, g.ExpiresAt
		row := model.UserReward{
			UserID:     userID,
			RewardCode: g.Level.RewardCode,
			Status:     string(rewards.StatusUnlocked),
			CouponCode: g.CouponCode,
			UnlockedAt: &unlocked,
			ExpiresAt:  &expires,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return nil, nil, err
		}
		if row.ID != 0 {
			created = append(created, row)
			all = append(all, row)
		}
	}
	return all, created, nil
}

func rewardsView(count int64, rows []model.UserReward) []rewards.LevelView {
	records := make([]rewards.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.Record())
	}
	return rewards.BuildRewardsView(rewards.Input{
		ReferralCount: int(count),
		APILevels:     records,
		ShopBaseURL:   cfg().Referral.ShopURL,
	})
}

func notifyRewards(user *model.User, created []model.UserReward) {
	if email.GlobalEmailService == nil {
		return
	}
	for _, r := range created {
		level, ok := rewards.LevelByCode(r.RewardCode)
		if !ok || r.ExpiresAt == nil {
			continue
		}
		view := rewards.LevelView{Status: rewards.StatusUnlocked, CouponCode: r.CouponCode, ProductID: level.ProductID}
		shop := rewards.ShopURL(cfg().Referral.ShopURL, view)
		if err := email.GlobalEmailService.SendRewardUnlockedEmail(user.Email, user.FirstName(), level.Label, r.CouponCode, *r.ExpiresAt, shop); err != nil {
			log.Errorf("[Referral] reward email to %s: %v", user.Email, err)
		}
	}
}

func GetReferralCode(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	return response.Success(c, fiber.Map{
		"code":       user.ReferralCode,
		"share_link": referral.ShareLink(cfg().Server.ClientBaseURL, user.ReferralCode),
		"bonus":      cfg().Referral.BonusAmount,
	})
}

func GetReferralStats(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	db := database.GetDB()
	page, pageSize, offset := pageParams(c)

	var total int64
	if err := db.Model(&model.Referral{}).Where("referrer_id = ?", claims.UserID).Count(&total).Error; err != nil {
		return response.Internal(c, "Could not load referrals")
	}

	var rows []model.Referral
	if err := db.Preload("Referred").
		Where("referrer_id = ?", claims.UserID).
		Order("created_at DESC").
		Offset(offset).Limit(pageSize).
		Find(&rows).Error; err != nil {
		return response.Internal(c, "Could not load referrals")
	}

	entries := make([]ReferralEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, ReferralEntry{
			ID:        r.ID,
			Name:      r.Referred.Name,
			Username:  r.Referred.Username,
			Status:    r.Status,
			CreatedAt: r.CreatedAt,
		})
	}
	return response.Paginated(c, entries, page, pageSize, total)
}

// GetRewards syncs newly reached levels and returns the three-level table.
func GetRewards(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	db := database.GetDB()

	var rows, created []model.UserReward
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		rows, created, err = syncRewards(tx, user.ID, time.Now())
		return err
	})
	if err != nil {
		log.Errorf("[Referral] syncing rewards for user %d: %v", user.ID, err)
		return response.Internal(c, "Could not load rewards")
	}
	notifyRewards(user, created)

	count, err := approvedReferrals(db, user.ID)
	if err != nil {
		return response.Internal(c, "Could not load rewards")
	}
	return response.Success(c, RewardsResponse{ReferralCount: int(count), Levels: rewardsView(count, rows)})
}

// ClaimReward marks an UNLOCKED level CLAIMED and hands back its coupon and
// shop link.
func ClaimReward(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	level, found := rewards.LevelByCode(c.Params("code"))
	if !found {
		return response.NotFound(c, "Unknown reward")
	}

	var row model.UserReward
	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND reward_code = ?", claims.UserID, level.RewardCode).
			First(&row).Error; err != nil {
			return err
		}

		now := time.Now()
		if rewards.ParseStatus(row.Status) == rewards.StatusUnlocked && row.ExpiresAt != nil && row.ExpiresAt.Before(now) {
			row.Status = string(rewards.StatusExpired)
			return tx.Model(&row).Update("status", row.Status).Error
		}

		view := rewards.BuildRewardsView(rewards.Input{APILevels: []rewards.Record{row.Record()}})[level.Number-1]
		if !rewards.IsClaimEnabled(view) {
			return nil
		}
		row.Status = string(rewards.StatusClaimed)
		row.ClaimedAt = &now
		return tx.Model(&row).Updates(map[string]interface{}{"status": row.Status, "claimed_at": now}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.Fail(c, fiber.StatusConflict, response.ErrConflict, "This reward is not unlocked yet")
		}
		return response.Internal(c, "Could not claim reward")
	}

	if rewards.ParseStatus(row.Status) != rewards.StatusClaimed || row.ClaimedAt == nil {
		return response.Fail(c, fiber.StatusConflict, response.ErrConflict, "This reward cannot be claimed")
	}

	view := rewards.BuildRewardsView(rewards.Input{
		APILevels:   []rewards.Record{row.Record()},
		ShopBaseURL: cfg().Referral.ShopURL,
	})[level.Number-1]
	return response.SuccessMessage(c, "Reward claimed", fiber.Map{
		"coupon_code": row.CouponCode,
		"shop_url":    rewards.ShopURL(cfg().Referral.ShopURL, rewards.LevelView{CouponCode: row.CouponCode, ProductID: level.ProductID}),
		"level":       view,
	})
}

func GetWallet(c *fiber.Ctx) error {
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	db := database.GetDB()

	pending := decimal.Zero
	if err := db.Model(&model.Withdrawal{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND status = ?", user.ID, model.WithdrawalPending).
		Row().Scan(&pending); err != nil {
		return response.Internal(c, "Could not load wallet")
	}
	approved, err := approvedReferrals(db, user.ID)
	if err != nil {
		return response.Internal(c, "Could not load wallet")
	}

	var history []model.Withdrawal
	if err := db.Where("user_id = ?", user.ID).Order("created_at DESC").Limit(20).Find(&history).Error; err != nil {
		return response.Internal(c, "Could not load wallet")
	}

	return response.Success(c, fiber.Map{
		"summary":     walletRules().Summarize(user.WalletBalance, pending, approved),
		"withdrawals": history,
	})
}

// RequestWithdrawal debits the wallet immediately; an admin rejection refunds.
func RequestWithdrawal(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	input := new(WithdrawInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}

	var w model.Withdrawal
	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, claims.UserID).Error; err != nil {
			return err
		}
		if err := walletRules().ValidateWithdrawal(user.WalletBalance, input.Amount, input.UPIID); err != nil {
			return err
		}
		balance, err := wallet.Debit(user.WalletBalance, input.Amount)
		if err != nil {
			return err
		}
		if err := tx.Model(&user).Update("wallet_balance", balance).Error; err != nil {
			return err
		}
		w = model.Withdrawal{
			UserID: user.ID,
			Amount: input.Amount,
			UPIID:  input.UPIID,
			Status: model.WithdrawalPending,
		}
		return tx.Create(&w).Error
	})
	switch {
	case err == nil:
	case errors.Is(err, wallet.ErrBelowMinimum):
		return response.Fail(c, fiber.StatusBadRequest, response.ErrBelowMinimum,
			"The minimum withdrawal is "+walletRules().MinWithdrawal.StringFixed(2))
	case errors.Is(err, wallet.ErrInsufficientBalance):
		return response.Fail(c, fiber.StatusBadRequest, response.ErrInsufficientBalance, "Your wallet balance is too low")
	case errors.Is(err, wallet.ErrInvalidAmount), errors.Is(err, wallet.ErrInvalidUPI):
		return response.BadRequest(c, err.Error())
	default:
		log.Errorf("[Wallet] withdrawal for user %d: %v", claims.UserID, err)
		return response.Internal(c, "Could not request withdrawal")
	}

	log.Infof("[Wallet] user %d requested withdrawal %d of %s", claims.UserID, w.ID, w.Amount.StringFixed(2))
	return response.Created(c, w)
}
