package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type ChainPayConfig struct {
	BaseURL string
	APIKey  string
}

// ChainPay is the crypto-coin gateway. Orders are invoices priced in fiat and
// settled on-chain; the gateway reports paid/pending/expired.
type ChainPay struct {
	cfg    ChainPayConfig
	client *http.Client
}

func NewChainPay(cfg ChainPayConfig, client *http.Client) *ChainPay {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ChainPay{cfg: cfg, client: client}
}

func (c *ChainPay) Name() string { return "chainpay" }

type chainPayInvoiceRequest struct {
	OrderID     string `json:"order_id"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	Email       string `json:"email,omitempty"`
	SuccessURL  string `json:"success_url"`
	WebhookURL  string `json:"webhook_url,omitempty"`
}

type chainPayInvoice struct {
	ID         string `json:"id"`
	OrderID    string `json:"order_id"`
	Status     string `json:"status"`
	PaymentURL string `json:"payment_url"`
}

type chainPayEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    chainPayInvoice `json:"data"`
}

func (c *ChainPay) CreateOrder(ctx context.Context, order Order) (Checkout, error) {
	if c.cfg.APIKey == "" || c.cfg.BaseURL == "" {
		return Checkout{}, fmt.Errorf("chainpay: %w", ErrNotConfigured)
	}

	body, err := json.Marshal(chainPayInvoiceRequest{
		OrderID:     order.MerchantRef,
		Amount:      order.Amount.StringFixed(2),
		Currency:    order.Currency,
		Description: fmt.Sprintf("%s plan", order.Plan),
		Email:       order.CustomerEmail,
		SuccessURL:  order.RedirectURL,
		WebhookURL:  order.CallbackURL,
	})
	if err != nil {
		return Checkout{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/v1/invoices", bytes.NewReader(body))
	if err != nil {
		return Checkout{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	env, raw, err := c.do(req)
	if err != nil {
		return Checkout{}, err
	}
	if !env.Success {
		return Checkout{}, fmt.Errorf("chainpay: invoice rejected: %s", env.Message)
	}
	return Checkout{GatewayRef: env.Data.ID, RedirectURL: env.Data.PaymentURL, Raw: raw}, nil
}

func (c *ChainPay) Status(ctx context.Context, ref Ref) (Status, error) {
	if c.cfg.APIKey == "" || c.cfg.BaseURL == "" {
		return StatusPending, fmt.Errorf("chainpay: %w", ErrNotConfigured)
	}
	endpoint := c.cfg.BaseURL + "/api/v1/invoices/by-order/" + url.PathEscape(ref.MerchantRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return StatusPending, err
	}

	env, _, err := c.do(req)
	if err != nil {
		return StatusPending, err
	}
	switch strings.ToLower(env.Data.Status) {
	case "paid", "confirmed", "completed":
		return StatusSuccess, nil
	case "expired", "cancelled", "canceled", "failed":
		return StatusFailed, nil
	default:
		return StatusPending, nil
	}
}

func (c *ChainPay) do(req *http.Request) (*chainPayEnvelope, []byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("chainpay: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("chainpay: reading response: %w", err)
	}
	if res.StatusCode >= 400 {
		return nil, raw, fmt.Errorf("chainpay: unexpected status %d", res.StatusCode)
	}

	var env chainPayEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, raw, fmt.Errorf("chainpay: decoding response: %w", err)
	}
	return &env, raw, nil
}
