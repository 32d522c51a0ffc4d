package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"
)

type scriptedGateway struct {
	calls   int32
	replies []Status
	errs    []error
}

func (g *scriptedGateway) Name() string { return "scripted" }

func (g *scriptedGateway) CreateOrder(context.Context, Order) (Checkout, error) {
	return Checkout{}, nil
}

func (g *scriptedGateway) Status(context.Context, Ref) (Status, error) {
	i := int(atomic.AddInt32(&g.calls, 1)) - 1
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	if err != nil {
		return StatusPending, err
	}
	if i < len(g.replies) {
		return g.replies[i], nil
	}
	return StatusPending, nil
}

func fastPoll(attempts int) PollOptions {
	return PollOptions{Attempts: attempts, Interval: time.Millisecond}
}

func TestPollStopsAtFirstTerminalStatus(t *testing.T) {
	gw := &scriptedGateway{replies: []Status{StatusPending, StatusPending, StatusSuccess, StatusFailed}}
	s, err := PollPaymentStatus(context.Background(), gw, Ref{MerchantRef: "m1"}, fastPoll(15))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, s)
	assert.EqualValues(t, 3, gw.calls)
}

func TestPollGivesUpAfterAttempts(t *testing.T) {
	gw := &scriptedGateway{}
	s, err := PollPaymentStatus(context.Background(), gw, Ref{MerchantRef: "m1"}, fastPoll(DefaultPollAttempts))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, s)
	assert.EqualValues(t, 15, gw.calls)
}

func TestPollSurvivesTransientErrors(t *testing.T) {
	boom := errors.New("gateway hiccup")
	gw := &scriptedGateway{
		errs:    []error{boom, boom, nil},
		replies: []Status{"", "", StatusFailed},
	}
	s, err := PollPaymentStatus(context.Background(), gw, Ref{MerchantRef: "m1"}, fastPoll(5))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, s)
}

func TestPollReturnsLastErrorWhenEveryAttemptFails(t *testing.T) {
	boom := errors.New("down")
	gw := &scriptedGateway{errs: []error{boom, boom, boom}}
	s, err := PollPaymentStatus(context.Background(), gw, Ref{MerchantRef: "m1"}, fastPoll(3))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StatusPending, s)
}

func TestPollHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gw := &scriptedGateway{}
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := PollPaymentStatus(ctx, gw, Ref{MerchantRef: "m1"}, PollOptions{Attempts: 15, Interval: time.Second})
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 1, gw.calls)
}

func TestDefaultPollOptions(t *testing.T) {
	opts := DefaultPollOptions()
	assert.Equal(t, 15, opts.Attempts)
	assert.Equal(t, 2*time.Second, opts.Interval)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(NewChainPay(ChainPayConfig{}, nil), NewPhonePe(PhonePeConfig{}, nil), nil)
	gw, err := reg.Get(" PhonePe ")
	require.NoError(t, err)
	assert.Equal(t, "phonepe", gw.Name())

	_, err = reg.Get("paypal")
	assert.ErrorIs(t, err, ErrUnknownGateway)
	assert.ElementsMatch(t, []string{"phonepe", "chainpay"}, reg.Names())
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(49900), toMinorUnits(decimal.NewFromInt(499)))
	assert.Equal(t, int64(1999), toMinorUnits(decimal.RequireFromString("19.99")))
}

func TestPhonePeChecksum(t *testing.T) {
	p := NewPhonePe(PhonePeConfig{MerchantID: "M1", SaltKey: "salt"}, nil)
	sum := sha256.Sum256([]byte("body/pg/v1/paysalt"))
	assert.Equal(t, hex.EncodeToString(sum[:])+"###1", p.Checksum("body", "/pg/v1/pay"))
}

func TestPhonePeCreateOrderAndStatus(t *testing.T) {
	var p *PhonePe
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/pg/v1/pay":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, p.Checksum(body["request"], "/pg/v1/pay"), r.Header.Get("X-VERIFY"))

			raw, err := base64.StdEncoding.DecodeString(body["request"])
			require.NoError(t, err)
			var req phonePePayRequest
			require.NoError(t, json.Unmarshal(raw, &req))
			assert.Equal(t, int64(49900), req.Amount)
			assert.Equal(t, "ord_1", req.MerchantTransactionID)

			fmt.Fprint(w, `{"success":true,"code":"PAYMENT_INITIATED","data":{"transactionId":"T1","instrumentResponse":{"redirectInfo":{"url":"https://pay.example/x"}}}}`)
		case r.Method == http.MethodGet && r.URL.Path == "/pg/v1/status/M1/ord_1":
			assert.Equal(t, "M1", r.Header.Get("X-MERCHANT-ID"))
			fmt.Fprint(w, `{"success":true,"code":"PAYMENT_SUCCESS"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p = NewPhonePe(PhonePeConfig{BaseURL: srv.URL + "/", MerchantID: "M1", SaltKey: "salt"}, srv.Client())

	co, err := p.CreateOrder(context.Background(), Order{MerchantRef: "ord_1", UserID: 4, Amount: decimal.NewFromInt(499)})
	require.NoError(t, err)
	assert.Equal(t, "T1", co.GatewayRef)
	assert.Equal(t, "https://pay.example/x", co.RedirectURL)

	s, err := p.Status(context.Background(), Ref{MerchantRef: "ord_1"})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, s)
}

func TestPhonePeStatusCodes(t *testing.T) {
	assert.Equal(t, StatusSuccess, phonePeStatus("PAYMENT_SUCCESS"))
	assert.Equal(t, StatusFailed, phonePeStatus("PAYMENT_ERROR"))
	assert.Equal(t, StatusPending, phonePeStatus("PAYMENT_PENDING"))
	assert.Equal(t, StatusPending, phonePeStatus(""))
}

func TestPhonePeNotConfigured(t *testing.T) {
	_, err := NewPhonePe(PhonePeConfig{}, nil).Status(context.Background(), Ref{MerchantRef: "x"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestChainPayFlow(t *testing.T) {
	status := "pending"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/invoices":
			var req chainPayInvoiceRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "999.00", req.Amount)
			fmt.Fprint(w, `{"success":true,"data":{"id":"inv_9","order_id":"ord_2","status":"pending","payment_url":"https://chain.example/inv_9"}}`)
		case strings.HasPrefix(r.URL.Path, "/api/v1/invoices/by-order/"):
			fmt.Fprintf(w, `{"success":true,"data":{"id":"inv_9","status":%q}}`, status)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewChainPay(ChainPayConfig{BaseURL: srv.URL, APIKey: "key"}, srv.Client())
	co, err := c.CreateOrder(context.Background(), Order{MerchantRef: "ord_2", Amount: decimal.NewFromInt(999), Currency: "INR", Plan: "premium"})
	require.NoError(t, err)
	assert.Equal(t, "inv_9", co.GatewayRef)

	s, err := c.Status(context.Background(), Ref{MerchantRef: "ord_2"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, s)

	status = "confirmed"
	s, err = c.Status(context.Background(), Ref{MerchantRef: "ord_2"})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, s)

	status = "expired"
	s, err = c.Status(context.Background(), Ref{MerchantRef: "ord_2"})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, s)
}

func TestChainPayHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewChainPay(ChainPayConfig{BaseURL: srv.URL, APIKey: "bad"}, srv.Client()).
		Status(context.Background(), Ref{MerchantRef: "x"})
	assert.Error(t, err)
}

func signStripePayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeParseWebhook(t *testing.T) {
	s := NewStripe(StripeConfig{WebhookSecret: "whsec_test"})
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"api_version": %q,
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_1", "object": "checkout.session", "client_reference_id": "ord_3", "payment_status": "paid", "status": "complete"}}
	}`, stripe.APIVersion))

	res, err := s.ParseWebhook(payload, signStripePayload(payload, "whsec_test"))
	require.NoError(t, err)
	assert.True(t, res.Handled)
	assert.Equal(t, "ord_3", res.MerchantRef)
	assert.Equal(t, "cs_1", res.GatewayRef)
	assert.Equal(t, StatusSuccess, res.Status)

	_, err = s.ParseWebhook(payload, signStripePayload(payload, "other"))
	assert.Error(t, err)
}

func TestStripeParseWebhookIgnoresOtherEvents(t *testing.T) {
	s := NewStripe(StripeConfig{WebhookSecret: "whsec_test"})
	payload := []byte(fmt.Sprintf(`{"id":"evt_2","object":"event","api_version":%q,"type":"customer.created","data":{"object":{}}}`, stripe.APIVersion))

	res, err := s.ParseWebhook(payload, signStripePayload(payload, "whsec_test"))
	require.NoError(t, err)
	assert.False(t, res.Handled)
}

func TestStripeStatusRequiresSession(t *testing.T) {
	_, err := NewStripe(StripeConfig{}).Status(context.Background(), Ref{MerchantRef: "x"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewStripe(StripeConfig{SecretKey: "sk_test"}).Status(context.Background(), Ref{MerchantRef: "x"})
	assert.Error(t, err)
}
