package email

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmailServiceRequiresKey(t *testing.T) {
	_, err := NewEmailService("", "from", "https://qrcard.app")
	assert.Error(t, err)
}

func TestSendsThroughResend(t *testing.T) {
	var got EmailData
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"email_1"}`))
	}))
	defer srv.Close()

	s, err := NewEmailService("re_test", "QRCard <noreply@qrcard.app>", "https://qrcard.app", WithEndpoint(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	require.NoError(t, s.SendVerificationEmail("asha@example.com", "Asha", "tok123"))
	assert.Equal(t, "asha@example.com", got.To)
	assert.Contains(t, got.Html, "https://qrcard.app/verify-email?token=tok123")
	assert.Contains(t, got.Html, "Hi Asha")
}

func TestResendErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"invalid from"}`))
	}))
	defer srv.Close()

	s, err := NewEmailService("re_test", "bad", "https://qrcard.app", WithEndpoint(srv.URL))
	require.NoError(t, err)
	assert.Error(t, s.SendPasswordChangedEmail("asha@example.com"))
}

func TestTemplatesRender(t *testing.T) {
	s, err := NewEmailService("re_test", "from", "https://qrcard.app")
	require.NoError(t, err)
	expiry := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	cases := map[string]interface{}{
		"password_reset.html":      PasswordResetData{ResetLink: "https://x"},
		"plan_activated.html":      PlanActivatedData{Name: "A", PlanName: "Premium", Price: decimal.NewFromInt(999).StringFixed(2), Currency: "INR", ExpiresAt: expiry, Features: []string{"gallery"}},
		"plan_expiry_warning.html": PlanExpiryWarningData{Name: "A", PlanName: "Premium", DaysLeft: 3, ExpiryDate: expiry},
		"plan_downgraded.html":     PlanDowngradedData{Name: "A", PlanName: "Premium"},
		"withdrawal_status.html":   WithdrawalStatusData{Name: "A", Amount: "100.00", UPIID: "a@ybl", Paid: true},
		"reward_unlocked.html":     RewardUnlockedData{Name: "A", Label: "Free NFC business card", CouponCode: "L1-X", ExpiresAt: expiry},
		"weekly_card_stats.html":   WeeklyCardStatsData{Name: "A", TotalViews: 10, UniqueViews: 4, WeekStart: expiry},
	}
	for name, data := range cases {
		html, err := s.render(name, data)
		require.NoError(t, err, name)
		assert.Contains(t, html, "QRCard", name)
	}

	html, err := s.render("plan_activated.html", cases["plan_activated.html"])
	require.NoError(t, err)
	assert.Contains(t, html, "04 Mar 2026")
	assert.Contains(t, html, "INR 999.00")
}
