package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/checkout/session"
	"github.com/stripe/stripe-go/v74/webhook"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// Stripe charges cards through a hosted Checkout Session in payment mode.
type Stripe struct {
	cfg StripeConfig
}

func NewStripe(cfg StripeConfig) *Stripe {
	return &Stripe{cfg: cfg}
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) CreateOrder(ctx context.Context, order Order) (Checkout, error) {
	if s.cfg.SecretKey == "" {
		return Checkout{}, fmt.Errorf("stripe: %w", ErrNotConfigured)
	}
	stripe.Key = s.cfg.SecretKey

	currency := strings.ToLower(order.Currency)
	if currency == "" {
		currency = "inr"
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(order.RedirectURL),
		CancelURL:         stripe.String(order.RedirectURL),
		ClientReferenceID: stripe.String(order.MerchantRef),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("QR Card %s plan", order.Plan)),
					},
					UnitAmount: stripe.Int64(toMinorUnits(order.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if order.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(order.CustomerEmail)
	}
	params.AddMetadata("merchant_ref", order.MerchantRef)
	params.AddMetadata("plan", order.Plan)
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return Checkout{}, fmt.Errorf("stripe: creating checkout session: %w", err)
	}
	return Checkout{GatewayRef: sess.ID, RedirectURL: sess.URL}, nil
}

// Status reads the Checkout Session issued at order time. The session id is
// the only key Stripe can look it up by.
func (s *Stripe) Status(ctx context.Context, ref Ref) (Status, error) {
	if s.cfg.SecretKey == "" {
		return StatusPending, fmt.Errorf("stripe: %w", ErrNotConfigured)
	}
	if ref.GatewayRef == "" {
		return StatusPending, fmt.Errorf("stripe: missing checkout session id for %s", ref.MerchantRef)
	}
	stripe.Key = s.cfg.SecretKey

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := session.Get(ref.GatewayRef, params)
	if err != nil {
		return StatusPending, fmt.Errorf("stripe: fetching checkout session: %w", err)
	}
	return stripeSessionStatus(sess), nil
}

func stripeSessionStatus(sess *stripe.CheckoutSession) Status {
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return StatusSuccess
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		return StatusFailed
	default:
		return StatusPending
	}
}

// WebhookResult is the payment outcome carried by a Stripe event.
type WebhookResult struct {
	EventType   string
	MerchantRef string
	GatewayRef  string
	Status      Status
	Handled     bool
}

// ParseWebhook verifies the Stripe-Signature header and extracts the
// checkout outcome. Events that don't settle a checkout come back with
// Handled false.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (WebhookResult, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.cfg.WebhookSecret)
	if err != nil {
		return WebhookResult{}, fmt.Errorf("stripe: invalid webhook signature: %w", err)
	}

	res := WebhookResult{EventType: string(event.Type)}
	switch event.Type {
	case "checkout.session.completed",
		"checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed",
		"checkout.session.expired":
	default:
		return res, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return res, fmt.Errorf("stripe: decoding checkout session: %w", err)
	}

	res.Handled = true
	res.MerchantRef = sess.ClientReferenceID
	if res.MerchantRef == "" {
		res.MerchantRef = sess.Metadata["merchant_ref"]
	}
	res.GatewayRef = sess.ID

	switch event.Type {
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		res.Status = StatusFailed
	default:
		res.Status = stripeSessionStatus(&sess)
	}
	return res, nil
}
