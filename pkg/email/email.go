package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
)

const resendEndpoint = "https://api.resend.com/emails"

type EmailService struct {
	apiKey    string
	from      string
	endpoint  string
	baseURL   string
	client    *http.Client
	templates *template.Template
}

type EmailData struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Html    string `json:"html"`
}

type VerificationEmailData struct {
	Name       string
	VerifyLink string
}

type PasswordResetData struct {
	ResetLink string
}

type PasswordChangedData struct {
	Email string
}

type PlanActivatedData struct {
	Name      string
	PlanName  string
	Price     string
	Currency  string
	ExpiresAt time.Time
	Features  []string
}

type PlanExpiryWarningData struct {
	Name       string
	PlanName   string
	DaysLeft   int
	ExpiryDate time.Time
	RenewLink  string
}

type PlanDowngradedData struct {
	Name      string
	PlanName  string
	RenewLink string
}

type WithdrawalStatusData struct {
	Name   string
	Amount string
	UPIID  string
	Paid   bool
	Note   string
}

type RewardUnlockedData struct {
	Name       string
	Label      string
	CouponCode string
	ExpiresAt  time.Time
	ShopLink   string
}

type WeeklyCardStatsData struct {
	Name        string
	TotalViews  int64
	UniqueViews int64
	WeekStart   time.Time
	CardLink    string
}

type Option func(*EmailService)

// WithEndpoint points the service at another Resend-compatible URL.
func WithEndpoint(endpoint string) Option {
	return func(s *EmailService) { s.endpoint = endpoint }
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *EmailService) { s.client = c }
}

// NewEmailService needs the Resend API key. baseURL is the client app root
// used for links inside emails.
func NewEmailService(apiKey, from, baseURL string, opts ...Option) (*EmailService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}

	templates, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("error loading email templates: %w", err)
	}

	s := &EmailService{
		apiKey:    apiKey,
		from:      from,
		endpoint:  resendEndpoint,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 15 * time.Second},
		templates: templates,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *EmailService) render(templateName string, data interface{}) (string, error) {
	var body bytes.Buffer
	if err := s.templates.ExecuteTemplate(&body, templateName, data); err != nil {
		return "", fmt.Errorf("template execution error: %w", err)
	}
	return body.String(), nil
}

func (s *EmailService) sendTemplateEmail(to, subject, templateName string, data interface{}) error {
	html, err := s.render(templateName, data)
	if err != nil {
		return err
	}

	jsonData, err := json.Marshal(EmailData{
		From:    s.from,
		To:      to,
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		return fmt.Errorf("error marshaling email data: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("resend API error (%d): %s", resp.StatusCode, string(respBody))
	}

	log.Debugf("[Email] %q sent to %s", subject, to)
	return nil
}

func (s *EmailService) link(path string) string {
	return s.baseURL + path
}

func (s *EmailService) SendVerificationEmail(email, name, token string) error {
	data := VerificationEmailData{
		Name:       name,
		VerifyLink: s.link("/verify-email?token=" + token),
	}
	return s.sendTemplateEmail(email, "Verify your QRCard email ✉️", "verify_email.html", data)
}

func (s *EmailService) SendPasswordResetEmail(email, resetToken string) error {
	data := PasswordResetData{
		ResetLink: s.link("/reset-password?token=" + resetToken),
	}
	return s.sendTemplateEmail(email, "Reset Your Password 🔒", "password_reset.html", data)
}

func (s *EmailService) SendPasswordChangedEmail(email string) error {
	return s.sendTemplateEmail(email, "Your Password Has Been Changed 🔐", "password_changed.html", PasswordChangedData{Email: email})
}

func (s *EmailService) SendPlanActivatedEmail(email, name, planName string, price decimal.Decimal, currency string, expiresAt time.Time, features []string) error {
	data := PlanActivatedData{
		Name:      name,
		PlanName:  planName,
		Price:     price.StringFixed(2),
		Currency:  currency,
		ExpiresAt: expiresAt,
		Features:  features,
	}
	return s.sendTemplateEmail(email, fmt.Sprintf("Your %s plan is active 🎉", planName), "plan_activated.html", data)
}

func (s *EmailService) SendPlanExpiryWarning(email, name, planName string, expiryDate time.Time, daysLeft int) error {
	data := PlanExpiryWarningData{
		Name:       name,
		PlanName:   planName,
		DaysLeft:   daysLeft,
		ExpiryDate: expiryDate,
		RenewLink:  s.link("/pricing"),
	}
	return s.sendTemplateEmail(
		email,
		fmt.Sprintf("Your %s plan expires in %d days ⚠️", planName, daysLeft),
		"plan_expiry_warning.html",
		data,
	)
}

func (s *EmailService) SendPlanDowngradedEmail(email, name, planName string) error {
	data := PlanDowngradedData{Name: name, PlanName: planName, RenewLink: s.link("/pricing")}
	return s.sendTemplateEmail(email, "Your plan has expired", "plan_downgraded.html", data)
}

func (s *EmailService) SendWithdrawalStatusEmail(email, name string, amount decimal.Decimal, upiID string, paid bool, note string) error {
	data := WithdrawalStatusData{
		Name:   name,
		Amount: amount.StringFixed(2),
		UPIID:  upiID,
		Paid:   paid,
		Note:   note,
	}
	subject := "Your withdrawal has been paid 💸"
	if !paid {
		subject = "Your withdrawal was not approved"
	}
	return s.sendTemplateEmail(email, subject, "withdrawal_status.html", data)
}

func (s *EmailService) SendRewardUnlockedEmail(email, name, label, couponCode string, expiresAt time.Time, shopLink string) error {
	data := RewardUnlockedData{
		Name:       name,
		Label:      label,
		CouponCode: couponCode,
		ExpiresAt:  expiresAt,
		ShopLink:   shopLink,
	}
	return s.sendTemplateEmail(email, fmt.Sprintf("You unlocked: %s 🎁", label), "reward_unlocked.html", data)
}

func (s *EmailService) SendWeeklyCardStats(email, name string, totalViews, uniqueViews int64, weekStart time.Time, cardLink string) error {
	data := WeeklyCardStatsData{
		Name:        name,
		TotalViews:  totalViews,
		UniqueViews: uniqueViews,
		WeekStart:   weekStart,
		CardLink:    cardLink,
	}
	return s.sendTemplateEmail(email, "Your card this week 📊", "weekly_card_stats.html", data)
}
