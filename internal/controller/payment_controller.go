package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qrcard_backend/internal/middleware"
	"qrcard_backend/internal/model"
	"qrcard_backend/pkg/database"
	"qrcard_backend/pkg/email"
	"qrcard_backend/pkg/payment"
	"qrcard_backend/pkg/subscription"
	"qrcard_backend/pkg/utils/response"
)

const gatewayTimeout = 15 * time.Second

type CheckoutInput struct {
	Plan    string `json:"plan" validate:"required"`
	Gateway string `json:"gateway" validate:"omitempty,max=32"`
}

// CheckoutResult is the shape both checkout and status answer with.
type CheckoutResult struct {
	MerchantRef string `json:"merchant_ref"`
	GatewayRef  string `json:"gateway_ref"`
	RedirectURL string `json:"redirect_url,omitempty"`
	Status      string `json:"status"`
	Plan        string `json:"plan"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
}

func resultOf(p *model.Payment, redirect string) CheckoutResult {
	return CheckoutResult{
		MerchantRef: p.MerchantRef,
		GatewayRef:  p.GatewayRef,
		RedirectURL: redirect,
		Status:      p.Status,
		Plan:        p.Plan,
		Amount:      p.Amount.StringFixed(2),
		Currency:    p.Currency,
	}
}

// newMerchantRef fits PhonePe's 35 character transaction id limit.
func newMerchantRef() string {
	return "QRC" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func ListPlans(c *fiber.Ctx) error {
	var gateways []string
	if deps.Payments != nil {
		gateways = deps.Payments.Names()
	}
	return response.Success(c, fiber.Map{
		"plans":    subscription.Catalog(),
		"gateways": gateways,
	})
}

func CreateCheckout(c *fiber.Ctx) error {
	if deps.Payments == nil || len(deps.Payments.Names()) == 0 {
		return unavailable(c, "Payments")
	}
	user, ok, err := currentUser(c)
	if !ok {
		return err
	}
	input := new(CheckoutInput)
	if ok, err := parseBody(c, input); !ok {
		return err
	}

	target := subscription.NormalizePlan(input.Plan)
	if !subscription.CanUpgrade(user.Plan, target.String()) {
		return response.Fail(c, fiber.StatusConflict, response.ErrConflict,
			"You are already on the "+user.PlanKey().DisplayName()+" plan or higher")
	}

	name := strings.ToLower(strings.TrimSpace(input.Gateway))
	if name == "" {
		name = deps.Payments.Names()[0]
	}
	gw, err := deps.Payments.Get(name)
	if err != nil {
		return response.BadRequest(c, "Unknown payment method")
	}

	p := model.Payment{
		UserID:      user.ID,
		Gateway:     gw.Name(),
		Plan:        target.String(),
		Amount:      subscription.PriceOf(target),
		Currency:    "INR",
		MerchantRef: newMerchantRef(),
		Status:      string(payment.StatusPending),
	}
	db := database.GetDB()
	if err := db.Create(&p).Error; err != nil {
		return response.Internal(c, "Could not start checkout")
	}

	s := cfg().Server
	order := payment.Order{
		MerchantRef:   p.MerchantRef,
		UserID:        user.ID,
		CustomerEmail: user.Email,
		CustomerPhone: user.Phone,
		Plan:          p.Plan,
		Amount:        p.Amount,
		Currency:      p.Currency,
		RedirectURL:   strings.TrimRight(s.ClientBaseURL, "/") + "/payment/return?ref=" + url.QueryEscape(p.MerchantRef),
		CallbackURL:   strings.TrimRight(s.APIBaseURL, "/") + "/payments/" + p.MerchantRef + "/callback",
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), gatewayTimeout)
	defer cancel()
	checkout, err := gw.CreateOrder(ctx, order)
	if err != nil {
		log.Errorf("[Payment] %s order %s: %v", gw.Name(), p.MerchantRef, err)
		db.Model(&p).Update("status", string(payment.StatusFailed))
		if errors.Is(err, payment.ErrNotConfigured) {
			return unavailable(c, "This payment method")
		}
		return response.Fail(c, fiber.StatusBadGateway, response.ErrInternal, "The payment provider could not start the checkout")
	}

	updates := map[string]interface{}{"gateway_ref": checkout.GatewayRef}
	if json.Valid(checkout.Raw) {
		updates["payload"] = datatypes.JSON(checkout.Raw)
	}
	if err := db.Model(&p).Updates(updates).Error; err != nil {
		log.Warnf("[Payment] saving gateway ref for %s: %v", p.MerchantRef, err)
	}
	p.GatewayRef = checkout.GatewayRef

	log.Infof("[Payment] user %d started %s checkout %s for %s", user.ID, gw.Name(), p.MerchantRef, p.Plan)
	return response.Created(c, resultOf(&p, checkout.RedirectURL))
}

func findPayment(merchantRef string) (*model.Payment, error) {
	var p model.Payment
	if err := database.GetDB().Where("merchant_ref = ?", merchantRef).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPaymentStatus asks the gateway once, or with ?wait=true keeps polling
// on the standard schedule before answering.
func GetPaymentStatus(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	p, err := findPayment(c.Params("ref"))
	if err != nil || p.UserID != claims.UserID {
		return response.NotFound(c, "Payment not found")
	}
	if payment.Status(p.Status).Terminal() {
		return response.Success(c, resultOf(p, ""))
	}
	if deps.Payments == nil {
		return response.Success(c, resultOf(p, ""))
	}
	gw, err := deps.Payments.Get(p.Gateway)
	if err != nil {
		return response.Success(c, resultOf(p, ""))
	}

	ref := payment.Ref{MerchantRef: p.MerchantRef, GatewayRef: p.GatewayRef}
	var status payment.Status
	if c.QueryBool("wait") {
		status, err = payment.PollPaymentStatus(c.UserContext(), gw, ref, payment.DefaultPollOptions())
	} else {
		ctx, cancel := context.WithTimeout(c.UserContext(), gatewayTimeout)
		status, err = gw.Status(ctx, ref)
		cancel()
	}
	if err != nil {
		log.Warnf("[Payment] status of %s: %v", p.MerchantRef, err)
		return response.Success(c, resultOf(p, ""))
	}

	updated, err := settlePayment(p.MerchantRef, status, nil)
	if err != nil {
		return response.Internal(c, "Could not update payment")
	}
	if status == payment.StatusPending && c.QueryBool("wait") {
		return c.Status(fiber.StatusAccepted).JSON(response.Response{
			Error:   response.ErrPaymentPending,
			Message: "Payment is still being processed",
			Data:    resultOf(updated, ""),
		})
	}
	return response.Success(c, resultOf(updated, ""))
}

// PaymentCallback is the gateway's server-to-server notification. The body
// is not trusted; the gateway is asked for the status instead.
func PaymentCallback(c *fiber.Ctx) error {
	p, err := findPayment(c.Params("ref"))
	if err != nil {
		return response.NotFound(c, "Payment not found")
	}
	if payment.Status(p.Status).Terminal() || deps.Payments == nil {
		return response.Success(c, nil)
	}
	gw, err := deps.Payments.Get(p.Gateway)
	if err != nil {
		return response.Success(c, nil)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), gatewayTimeout)
	defer cancel()
	status, err := gw.Status(ctx, payment.Ref{MerchantRef: p.MerchantRef, GatewayRef: p.GatewayRef})
	if err != nil {
		log.Warnf("[Payment] callback status of %s: %v", p.MerchantRef, err)
		return response.Success(c, nil)
	}
	if _, err := settlePayment(p.MerchantRef, status, nil); err != nil {
		return response.Internal(c, "Could not update payment")
	}
	return response.Success(c, nil)
}

func HandleStripeWebhook(c *fiber.Ctx) error {
	if deps.Stripe == nil {
		return unavailable(c, "Stripe")
	}
	result, err := deps.Stripe.ParseWebhook(c.Body(), c.Get("Stripe-Signature"))
	if err != nil {
		log.Warnf("[Payment] rejected stripe webhook: %v", err)
		return response.BadRequest(c, "Invalid webhook signature")
	}
	log.Infof("[Payment] stripe webhook %s for %s", result.EventType, result.MerchantRef)
	if !result.Handled || result.MerchantRef == "" {
		return c.SendStatus(fiber.StatusOK)
	}

	if _, err := settlePayment(result.MerchantRef, result.Status, func(p *model.Payment) {
		if p.GatewayRef == "" {
			p.GatewayRef = result.GatewayRef
		}
	}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.SendStatus(fiber.StatusOK)
		}
		return response.Internal(c, "Could not update payment")
	}
	return c.SendStatus(fiber.StatusOK)
}

func ListMyPayments(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	page, pageSize, offset := pageParams(c)
	db := database.GetDB()

	var total int64
	if err := db.Model(&model.Payment{}).Where("user_id = ?", claims.UserID).Count(&total).Error; err != nil {
		return response.Internal(c, "Could not load payments")
	}
	var rows []model.Payment
	if err := db.Where("user_id = ?", claims.UserID).
		Order("created_at DESC").
		Offset(offset).Limit(pageSize).
		Find(&rows).Error; err != nil {
		return response.Internal(c, "Could not load payments")
	}
	return response.Paginated(c, rows, page, pageSize, total)
}

// planExpiry extends an unexpired purchase of the same plan, otherwise the
// term starts now.
func planExpiry(user *model.User, plan subscription.Plan, now time.Time) time.Time {
	start := now
	if user.PlanKey() == plan && user.PlanExpiresAt != nil && user.PlanExpiresAt.After(now) {
		start = *user.PlanExpiresAt
	}
	return start.AddDate(0, 0, subscription.PlanDurationDays)
}

// settlePayment moves a pending payment to status. A success activates the
// plan. Terminal payments are never changed, so repeated notifications are
// harmless.
func settlePayment(merchantRef string, status payment.Status, mutate func(*model.Payment)) (*model.Payment, error) {
	var (
		p         model.Payment
		user      model.User
		activated bool
		expires   time.Time
	)

	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("merchant_ref = ?", merchantRef).First(&p).Error; err != nil {
			return err
		}
		if payment.Status(p.Status).Terminal() || !status.Terminal() {
			return nil
		}

		if mutate != nil {
			mutate(&p)
		}
		p.Status = string(status)
		if err := tx.Model(&p).Updates(map[string]interface{}{
			"status":      p.Status,
			"gateway_ref": p.GatewayRef,
		}).Error; err != nil {
			return err
		}
		if status != payment.StatusSuccess {
			return nil
		}

		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, p.UserID).Error; err != nil {
			return err
		}
		plan := subscription.NormalizePlan(p.Plan)
		expires = planExpiry(&user, plan, time.Now())
		if err := tx.Model(&user).Updates(map[string]interface{}{
			"plan":            plan.String(),
			"plan_expires_at": expires,
		}).Error; err != nil {
			return err
		}
		activated = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if activated {
		log.Infof("[Payment] %s paid, user %d now on %s until %s", p.MerchantRef, user.ID, p.Plan, expires.Format(time.DateOnly))
		if email.GlobalEmailService != nil {
			plan := subscription.NormalizePlan(p.Plan)
			features := make([]string, 0)
			for _, f := range subscription.FeaturesFor(plan) {
				features = append(features, string(f))
			}
			if err := email.GlobalEmailService.SendPlanActivatedEmail(user.Email, user.FirstName(), plan.DisplayName(), p.Amount, p.Currency, expires, features); err != nil {
				log.Errorf("[Payment] activation email to %s: %v", user.Email, err)
			}
		}
	}
	return &p, nil
}
