package payment

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const phonePePayPath = "/pg/v1/pay"

type PhonePeConfig struct {
	BaseURL    string
	MerchantID string
	SaltKey    string
	SaltIndex  string
}

// PhonePe is the UPI gateway (PG checkout, pay page mode).
type PhonePe struct {
	cfg    PhonePeConfig
	client *http.Client
}

func NewPhonePe(cfg PhonePeConfig, client *http.Client) *PhonePe {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.SaltIndex == "" {
		cfg.SaltIndex = "1"
	}
	return &PhonePe{cfg: cfg, client: client}
}

func (p *PhonePe) Name() string { return "phonepe" }

type phonePePayRequest struct {
	MerchantID            string                   `json:"merchantId"`
	MerchantTransactionID string                   `json:"merchantTransactionId"`
	MerchantUserID        string                   `json:"merchantUserId"`
	Amount                int64                    `json:"amount"`
	RedirectURL           string                   `json:"redirectUrl"`
	RedirectMode          string                   `json:"redirectMode"`
	CallbackURL           string                   `json:"callbackUrl"`
	MobileNumber          string                   `json:"mobileNumber,omitempty"`
	PaymentInstrument     phonePePaymentInstrument `json:"paymentInstrument"`
}

type phonePePaymentInstrument struct {
	Type string `json:"type"`
}

type phonePeResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
		State                 string `json:"state"`
		InstrumentResponse    struct {
			RedirectInfo struct {
				URL string `json:"url"`
			} `json:"redirectInfo"`
		} `json:"instrumentResponse"`
	} `json:"data"`
}

// Checksum computes the X-VERIFY header value for a body (may be empty) and
// API path.
func (p *PhonePe) Checksum(body, path string) string {
	sum := sha256.Sum256([]byte(body + path + p.cfg.SaltKey))
	return hex.EncodeToString(sum[:]) + "###" + p.cfg.SaltIndex
}

func (p *PhonePe) configured() bool {
	return p.cfg.MerchantID != "" && p.cfg.SaltKey != "" && p.cfg.BaseURL != ""
}

func (p *PhonePe) CreateOrder(ctx context.Context, order Order) (Checkout, error) {
	if !p.configured() {
		return Checkout{}, fmt.Errorf("phonepe: %w", ErrNotConfigured)
	}

	payload, err := json.Marshal(phonePePayRequest{
		MerchantID:            p.cfg.MerchantID,
		MerchantTransactionID: order.MerchantRef,
		MerchantUserID:        fmt.Sprintf("U%d", order.UserID),
		Amount:                toMinorUnits(order.Amount),
		RedirectURL:           order.RedirectURL,
		RedirectMode:          "REDIRECT",
		CallbackURL:           order.CallbackURL,
		MobileNumber:          order.CustomerPhone,
		PaymentInstrument:     phonePePaymentInstrument{Type: "PAY_PAGE"},
	})
	if err != nil {
		return Checkout{}, err
	}
	encoded := base64.StdEncoding.EncodeToString(payload)
	body, err := json.Marshal(map[string]string{"request": encoded})
	if err != nil {
		return Checkout{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+phonePePayPath, bytes.NewReader(body))
	if err != nil {
		return Checkout{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VERIFY", p.Checksum(encoded, phonePePayPath))

	resp, raw, err := p.do(req)
	if err != nil {
		return Checkout{}, err
	}
	if !resp.Success {
		return Checkout{}, fmt.Errorf("phonepe: pay request rejected: %s (%s)", resp.Message, resp.Code)
	}
	return Checkout{
		GatewayRef:  resp.Data.TransactionID,
		RedirectURL: resp.Data.InstrumentResponse.RedirectInfo.URL,
		Raw:         raw,
	}, nil
}

func (p *PhonePe) Status(ctx context.Context, ref Ref) (Status, error) {
	if !p.configured() {
		return StatusPending, fmt.Errorf("phonepe: %w", ErrNotConfigured)
	}
	path := fmt.Sprintf("/pg/v1/status/%s/%s", p.cfg.MerchantID, ref.MerchantRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+path, nil)
	if err != nil {
		return StatusPending, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VERIFY", p.Checksum("", path))
	req.Header.Set("X-MERCHANT-ID", p.cfg.MerchantID)

	resp, _, err := p.do(req)
	if err != nil {
		return StatusPending, err
	}
	return phonePeStatus(resp.Code), nil
}

func phonePeStatus(code string) Status {
	switch code {
	case "PAYMENT_SUCCESS":
		return StatusSuccess
	case "PAYMENT_ERROR", "PAYMENT_DECLINED", "TIMED_OUT", "AUTHORIZATION_FAILED", "TRANSACTION_NOT_FOUND":
		return StatusFailed
	default:
		return StatusPending
	}
}

func (p *PhonePe) do(req *http.Request) (*phonePeResponse, []byte, error) {
	res, err := p.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("phonepe: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("phonepe: reading response: %w", err)
	}
	if res.StatusCode >= 500 {
		return nil, raw, fmt.Errorf("phonepe: unexpected status %d", res.StatusCode)
	}

	var out phonePeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, raw, fmt.Errorf("phonepe: decoding response: %w", err)
	}
	return &out, raw, nil
}
