// Package apiclient is the Go client for the qrcard REST API. It keeps an
// explicit Session instead of ambient global state.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"qrcard_backend/pkg/payment"
	"qrcard_backend/pkg/rewards"
	"qrcard_backend/pkg/utils/response"
)

// APIError is a failure envelope returned by the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error (%d %s): %s", e.Status, e.Code, e.Message)
}

// FriendlyMessage is the text to show a person for err. Login failures with a
// known code get a fixed message; anything else falls back to the API message.
func FriendlyMessage(err error) string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		if err == nil {
			return ""
		}
		return "Something went wrong. Please try again."
	}
	switch apiErr.Code {
	case response.ErrInvalidCredentials:
		return "Incorrect email or password. Please try again."
	case response.ErrEmailNotVerified:
		return "Please verify your email address first. Check your inbox for the verification link."
	}
	if apiErr.Message != "" {
		return apiErr.Message
	}
	return "Something went wrong. Please try again."
}

type Client struct {
	baseURL string
	http    *http.Client
	session *Session
}

func NewClient(baseURL string, session *Session, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	if session == nil {
		session = NewSession(nil)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		session: session,
	}
}

func (c *Client) Session() *Session { return c.session }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

// do sends body as JSON and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return &APIError{Status: res.StatusCode, Message: http.StatusText(res.StatusCode)}
	}
	if !env.Success || res.StatusCode >= 400 {
		return &APIError{Status: res.StatusCode, Code: env.Error, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("apiclient: decoding %s: %w", path, err)
		}
	}
	return nil
}

// Restore loads the persisted session and, when a token was found, refreshes
// the user from the API. A rejected token clears the session.
func (c *Client) Restore(ctx context.Context) (State, error) {
	state, err := c.session.Restore()
	if err != nil || state != StateAuthenticated {
		return state, err
	}
	if _, err := c.Me(ctx); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return StateAnonymous, c.session.Clear()
		}
		return state, err
	}
	return c.session.State(), nil
}

type loginResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	var out loginResult
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	if err := c.session.SignIn(out.Token, out.User); err != nil {
		return nil, err
	}
	return out.User, nil
}

// LoginWithOTP signs in with a phone code previously requested by SendOTP.
func (c *Client) LoginWithOTP(ctx context.Context, phone, code string) (*User, error) {
	var out loginResult
	err := c.do(ctx, http.MethodPost, "/auth/otp/verify", map[string]string{
		"phone": phone,
		"code":  code,
	}, &out)
	if err != nil {
		return nil, err
	}
	if err := c.session.SignIn(out.Token, out.User); err != nil {
		return nil, err
	}
	return out.User, nil
}

func (c *Client) SendOTP(ctx context.Context, phone string) error {
	return c.do(ctx, http.MethodPost, "/auth/otp/send", map[string]string{"phone": phone}, nil)
}

type SignupRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Phone        string `json:"phone,omitempty"`
	ReferralCode string `json:"referral_code,omitempty"`
}

// Signup creates an account. The account must verify its email before Login
// succeeds, so no session is started here.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodPost, "/auth/register", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Me(ctx context.Context) (*User, error) {
	if !c.session.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	var out User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	if err := c.session.SetUser(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

type ProfileUpdate struct {
	Name  *string `json:"name,omitempty"`
	Title *string `json:"title,omitempty"`
	Bio   *string `json:"bio,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*User, error) {
	if !c.session.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	var out User
	if err := c.do(ctx, http.MethodPut, "/user/profile", update, &out); err != nil {
		return nil, err
	}
	if err := c.session.SetUser(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout ends the session locally. Tokens are stateless, so there is no
// server call.
func (c *Client) Logout() error {
	return c.session.Clear()
}

func (c *Client) Rewards(ctx context.Context) ([]rewards.LevelView, error) {
	var out struct {
		ReferralCount int                 `json:"referral_count"`
		Levels        []rewards.LevelView `json:"levels"`
	}
	if err := c.do(ctx, http.MethodGet, "/rewards", nil, &out); err != nil {
		return nil, err
	}
	return out.Levels, nil
}

type CheckoutResult struct {
	MerchantRef string `json:"merchant_ref"`
	GatewayRef  string `json:"gateway_ref"`
	RedirectURL string `json:"redirect_url"`
	Status      string `json:"status"`
}

func (c *Client) Checkout(ctx context.Context, plan, gateway string) (*CheckoutResult, error) {
	var out CheckoutResult
	err := c.do(ctx, http.MethodPost, "/payments/checkout", map[string]string{
		"plan":    plan,
		"gateway": gateway,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PaymentStatus asks the API once for the state of a payment.
func (c *Client) PaymentStatus(ctx context.Context, merchantRef string) (payment.Status, error) {
	var out CheckoutResult
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(merchantRef)+"/status", nil, &out); err != nil {
		return payment.StatusPending, err
	}
	return payment.Status(out.Status), nil
}

// WaitForPayment polls PaymentStatus with the standard 15 x 2s schedule after
// the customer returns from the gateway. On success the user is refreshed so
// the session carries the new plan.
func (c *Client) WaitForPayment(ctx context.Context, merchantRef string, opts payment.PollOptions) (payment.Status, error) {
	status, err := payment.PollPaymentStatus(ctx, apiGateway{c}, payment.Ref{MerchantRef: merchantRef}, opts)
	if err != nil {
		return status, err
	}
	if status == payment.StatusSuccess {
		if _, err := c.Me(ctx); err != nil {
			return status, err
		}
	}
	return status, nil
}

// apiGateway adapts the API's payment endpoints to payment.Gateway so the
// shared poller can drive them.
type apiGateway struct{ c *Client }

func (apiGateway) Name() string { return "api" }

func (g apiGateway) CreateOrder(ctx context.Context, order payment.Order) (payment.Checkout, error) {
	res, err := g.c.Checkout(ctx, order.Plan, "")
	if err != nil {
		return payment.Checkout{}, err
	}
	return payment.Checkout{GatewayRef: res.GatewayRef, RedirectURL: res.RedirectURL}, nil
}

func (g apiGateway) Status(ctx context.Context, ref payment.Ref) (payment.Status, error) {
	return g.c.PaymentStatus(ctx, ref.MerchantRef)
}
