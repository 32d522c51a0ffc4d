package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("MIN_WITHDRAWAL_AMOUNT", "")
	t.Setenv("REWARD_CLAIM_WINDOW_DAYS", "")

	cfg := Load()
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.True(t, decimal.NewFromInt(100).Equal(cfg.Referral.MinWithdrawal))
	assert.Equal(t, 30, cfg.Referral.ClaimWindowDays)
	assert.Equal(t, "1", cfg.PhonePe.SaltIndex)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("REFERRAL_BONUS_AMOUNT", "75.50")
	t.Setenv("REWARD_CLAIM_WINDOW_DAYS", "14")

	cfg := Load()
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "75.5", cfg.Referral.BonusAmount.String())
	assert.Equal(t, 14, cfg.Referral.ClaimWindowDays)
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("MIN_WITHDRAWAL_AMOUNT", "-3")
	t.Setenv("REWARD_CLAIM_WINDOW_DAYS", "soon")

	cfg := Load()
	assert.True(t, decimal.NewFromInt(100).Equal(cfg.Referral.MinWithdrawal))
	assert.Equal(t, 30, cfg.Referral.ClaimWindowDays)
}
