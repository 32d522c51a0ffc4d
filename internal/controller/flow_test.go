package controller

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"qrcard_backend/internal/middleware"
	"qrcard_backend/internal/model"
	"qrcard_backend/pkg/database"
	"qrcard_backend/pkg/gallery"
	"qrcard_backend/pkg/otp"
	"qrcard_backend/pkg/referral"
	"qrcard_backend/pkg/rewards"
	"qrcard_backend/pkg/subscription"
	"qrcard_backend/pkg/utils/response"
)

// setupDB connects to TEST_DATABASE_URL and migrates. Tests that need a
// database skip without it.
func setupDB(t *testing.T) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, database.InitDB(dsn))
	require.NoError(t, database.MigrateDatabase(model.All()...))
}

func createUser(t *testing.T, name, role string) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	suffix := uuid.NewString()[:8]
	u := &model.User{
		Email:         strings.ToLower(name) + "-" + suffix + "@example.com",
		Password:      string(hash),
		Username:      strings.ToLower(name) + "-" + suffix,
		Name:          name,
		Role:          role,
		EmailVerified: true,
		Plan:          "basic",
		ReferralCode:  referral.NewCode(name + suffix),
	}
	require.NoError(t, database.GetDB().Create(u).Error)
	return u
}

func flowApp() *fiber.App {
	app := newApp()
	auth := middleware.AuthMiddleware()
	app.Post("/auth/register", Register)
	app.Post("/auth/verify-email", VerifyEmail)
	app.Post("/auth/login", Login)
	app.Get("/rewards", auth, GetRewards)
	app.Post("/rewards/:code/claim", auth, ClaimReward)
	app.Get("/refer/wallet", auth, GetWallet)
	app.Post("/refer/withdraw", auth, RequestWithdrawal)
	admin := app.Group("/admin", auth, middleware.RequireAdmin())
	admin.Put("/referrals/:id/approve", ApproveReferral)
	admin.Put("/withdrawals/:id/reject", RejectWithdrawal)
	app.Post("/c/:username/view", RecordCardView)
	app.Put("/user/profile", auth, UpdateProfile)
	app.Post("/auth/otp/send", SendOTP)
	return app
}

func TestRegisterVerifyLogin(t *testing.T) {
	setupDB(t)
	withDeps(t, Deps{})
	app := flowApp()

	mail := "flow-" + uuid.NewString()[:8] + "@example.com"
	status, body := do(t, app, "POST", "/auth/register", "", map[string]string{
		"name": "Flow Tester", "email": mail, "password": "password123",
	})
	require.Equal(t, 201, status, body.Message)

	status, body = do(t, app, "POST", "/auth/register", "", map[string]string{
		"name": "Flow Tester", "email": mail, "password": "password123",
	})
	assert.Equal(t, 409, status)
	assert.Equal(t, response.ErrConflict, body.Error)

	status, body = do(t, app, "POST", "/auth/login", "", map[string]string{"email": mail, "password": "password123"})
	assert.Equal(t, 403, status)
	assert.Equal(t, response.ErrEmailNotVerified, body.Error)

	status, body = do(t, app, "POST", "/auth/login", "", map[string]string{"email": mail, "password": "wrong-password"})
	assert.Equal(t, 401, status)
	assert.Equal(t, response.ErrInvalidCredentials, body.Error)

	var u model.User
	require.NoError(t, database.GetDB().Where("email = ?", mail).First(&u).Error)
	require.NotEmpty(t, u.VerificationToken)

	status, _ = do(t, app, "POST", "/auth/verify-email", "", map[string]string{"token": u.VerificationToken})
	require.Equal(t, 200, status)

	status, body = do(t, app, "POST", "/auth/login", "", map[string]string{"email": strings.ToUpper(mail), "password": "password123"})
	require.Equal(t, 200, status)
	data := body.Data.(map[string]interface{})
	assert.NotEmpty(t, data["token"])
	assert.Equal(t, mail, data["user"].(map[string]interface{})["email"])
}

func TestReferralRewardWalletFlow(t *testing.T) {
	setupDB(t)
	withDeps(t, Deps{})
	app := flowApp()
	db := database.GetDB()

	referrer := createUser(t, "Asha", model.RoleUser)
	admin := createUser(t, "Admin", model.RoleAdmin)
	adminTok := bearer(t, admin.ID, model.RoleAdmin)
	userTok := bearer(t, referrer.ID, model.RoleUser)

	for i := 0; i < 2; i++ {
		status, body := do(t, app, "POST", "/auth/register", "", map[string]string{
			"name":          "Friend",
			"email":         "friend-" + uuid.NewString()[:8] + "@example.com",
			"password":      "password123",
			"referral_code": strings.ToLower(referrer.ReferralCode),
		})
		require.Equal(t, 201, status, body.Message)
	}

	var pending []model.Referral
	require.NoError(t, db.Where("referrer_id = ?", referrer.ID).Find(&pending).Error)
	require.Len(t, pending, 2)

	status, body := do(t, app, "GET", "/rewards", userTok, nil)
	require.Equal(t, 200, status)
	levels := body.Data.(map[string]interface{})["levels"].([]interface{})
	assert.Equal(t, "LOCKED", levels[0].(map[string]interface{})["status"])

	for _, r := range pending {
		status, body = do(t, app, "PUT", "/admin/referrals/"+itoa(r.ID)+"/approve", adminTok, nil)
		require.Equal(t, 200, status, body.Message)
	}
	status, body = do(t, app, "PUT", "/admin/referrals/"+itoa(pending[0].ID)+"/approve", adminTok, nil)
	assert.Equal(t, 409, status)

	status, body = do(t, app, "GET", "/rewards", userTok, nil)
	require.Equal(t, 200, status)
	data := body.Data.(map[string]interface{})
	assert.EqualValues(t, 2, data["referral_count"])
	l1 := data["levels"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "UNLOCKED", l1["status"])
	assert.Equal(t, true, l1["claim_enabled"])
	assert.Equal(t, "LOCKED", data["levels"].([]interface{})[1].(map[string]interface{})["status"])

	status, body = do(t, app, "POST", "/rewards/l2/claim", userTok, nil)
	assert.Equal(t, 409, status)

	status, body = do(t, app, "POST", "/rewards/L1/claim", userTok, nil)
	require.Equal(t, 200, status, body.Message)
	claim := body.Data.(map[string]interface{})
	assert.Contains(t, claim["shop_url"], "coupon="+claim["coupon_code"].(string))

	status, body = do(t, app, "POST", "/rewards/L1/claim", userTok, nil)
	require.Equal(t, 200, status, body.Message)
	again := body.Data.(map[string]interface{})
	assert.Equal(t, claim["coupon_code"], again["coupon_code"])
	assert.Equal(t, claim["shop_url"], again["shop_url"])

	lapsed := time.Now().Add(-time.Hour)
	unlocked := lapsed.Add(-30 * 24 * time.Hour)
	require.NoError(t, db.Create(&model.UserReward{
		UserID:     referrer.ID,
		RewardCode: "L2",
		Status:     string(rewards.StatusUnlocked),
		CouponCode: "L2-" + strings.ToUpper(uuid.NewString()[:8]),
		UnlockedAt: &unlocked,
		ExpiresAt:  &lapsed,
	}).Error)

	status, body = do(t, app, "POST", "/rewards/L2/claim", userTok, nil)
	assert.Equal(t, 409, status)
	assert.Equal(t, response.ErrConflict, body.Error)
	var l2 model.UserReward
	require.NoError(t, db.Where("user_id = ? AND reward_code = ?", referrer.ID, "L2").First(&l2).Error)
	assert.Equal(t, string(rewards.StatusExpired), l2.Status)
	assert.Nil(t, l2.ClaimedAt)

	var fresh model.User
	require.NoError(t, db.First(&fresh, referrer.ID).Error)
	assert.True(t, fresh.WalletBalance.Equal(decimal.NewFromInt(100)), fresh.WalletBalance.String())

	status, body = do(t, app, "POST", "/refer/withdraw", userTok, map[string]interface{}{"amount": 50, "upi_id": "asha@upi"})
	assert.Equal(t, 400, status)
	assert.Equal(t, response.ErrBelowMinimum, body.Error)

	status, body = do(t, app, "POST", "/refer/withdraw", userTok, map[string]interface{}{"amount": 100, "upi_id": "asha@upi"})
	require.Equal(t, 201, status, body.Message)
	wid := uint(body.Data.(map[string]interface{})["ID"].(float64))

	status, body = do(t, app, "POST", "/refer/withdraw", userTok, map[string]interface{}{"amount": 100, "upi_id": "asha@upi"})
	assert.Equal(t, 400, status)
	assert.Equal(t, response.ErrInsufficientBalance, body.Error)

	status, _ = do(t, app, "PUT", "/admin/withdrawals/"+itoa(wid)+"/reject", adminTok, map[string]string{"note": "UPI id bounced"})
	require.Equal(t, 200, status)

	require.NoError(t, db.First(&fresh, referrer.ID).Error)
	assert.True(t, fresh.WalletBalance.Equal(decimal.NewFromInt(100)), fresh.WalletBalance.String())
}

func TestRepeatViewsCountOnce(t *testing.T) {
	setupDB(t)
	withDeps(t, Deps{})
	app := flowApp()
	db := database.GetDB()

	owner := createUser(t, "Viewed", model.RoleUser)
	for i := 0; i < 3; i++ {
		status, body := do(t, app, "POST", "/c/"+owner.Username+"/view", "", map[string]string{"source": "qr"})
		require.Equal(t, 200, status, body.Message)
		assert.Equal(t, i == 0, body.Data.(map[string]interface{})["unique"])
	}

	var total, unique int64
	require.NoError(t, db.Model(&model.CardView{}).Where("user_id = ?", owner.ID).Count(&total).Error)
	require.NoError(t, db.Model(&model.CardView{}).Where("user_id = ? AND is_unique", owner.ID).Count(&unique).Error)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, int64(1), unique)

	var stats model.CardStats
	require.NoError(t, db.Where("user_id = ?", owner.ID).First(&stats).Error)
	assert.Equal(t, int64(3), stats.TotalViews)
	assert.Equal(t, int64(1), stats.UniqueViews)
}

func testPhone() string {
	return fmt.Sprintf("+9198%08d", time.Now().UnixNano()%100000000)
}

func TestOTPSignInNeedsVerifiedPhone(t *testing.T) {
	setupDB(t)
	// The code is never sent: every request here is refused before redis.
	withDeps(t, Deps{OTP: otp.NewService(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), nil)})
	app := flowApp()
	db := database.GetDB()

	phone, err := otp.NormalizePhone(testPhone())
	require.NoError(t, err)

	owner := createUser(t, "Owner", model.RoleUser)
	other := createUser(t, "Other", model.RoleUser)

	// An unverified number typed into a profile signs nobody in.
	status, body := do(t, app, "PUT", "/user/profile", bearer(t, other.ID, model.RoleUser), map[string]string{"phone": phone})
	require.Equal(t, 200, status, body.Message)
	status, body = do(t, app, "POST", "/auth/otp/send", "", map[string]string{"phone": phone})
	assert.Equal(t, 404, status)
	assert.Equal(t, response.ErrNotFound, body.Error)

	_, err = userByVerifiedPhone(db, phone)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, db.Model(owner).Updates(map[string]interface{}{"phone": phone}).Error)
	require.NoError(t, markPhoneVerified(db, owner))
	assert.True(t, owner.PhoneVerified)

	found, err := userByVerifiedPhone(db, phone)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, found.ID)

	// The other account can no longer verify or re-save the number.
	require.NoError(t, db.First(other, other.ID).Error)
	assert.ErrorIs(t, markPhoneVerified(db, other), errPhoneTaken)

	third := createUser(t, "Third", model.RoleUser)
	status, body = do(t, app, "PUT", "/user/profile", bearer(t, third.ID, model.RoleUser), map[string]string{"phone": phone})
	assert.Equal(t, 409, status)
	assert.Equal(t, response.ErrConflict, body.Error)

	status, body = do(t, app, "POST", "/auth/register", "", map[string]string{
		"name":     "Late Comer",
		"email":    "late-" + uuid.NewString()[:8] + "@example.com",
		"password": "password123",
		"phone":    phone,
	})
	assert.Equal(t, 409, status)
	assert.Equal(t, response.ErrConflict, body.Error)
}

func TestGalleryInsertStopsAtPlanLimit(t *testing.T) {
	setupDB(t)
	db := database.GetDB()
	owner := createUser(t, "Gallery", model.RoleUser)
	limit := int(subscription.GetPlanLimits(subscription.BasicPlan).MaxImages)

	var (
		wg             sync.WaitGroup
		mu             sync.Mutex
		stored, denied int
	)
	for i := 0; i < limit+7; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := insertGalleryItem(db, subscription.BasicPlan, &model.GalleryItem{
				UserID: owner.ID,
				Kind:   string(gallery.KindImage),
				URL:    fmt.Sprintf("https://cdn.qrcard.test/%d.webp", i),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				stored++
			case errors.Is(err, gallery.ErrLimitReached):
				denied++
			default:
				t.Errorf("insert %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, limit, stored)
	assert.Equal(t, 7, denied)

	var items []model.GalleryItem
	require.NoError(t, db.Where("user_id = ?", owner.ID).Find(&items).Error)
	require.Len(t, items, limit)
	orders := make([]int, 0, len(items))
	for _, it := range items {
		orders = append(orders, it.SortOrder)
	}
	sort.Ints(orders)
	for i, o := range orders {
		assert.Equal(t, i, o)
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
