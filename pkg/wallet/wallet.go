// Package wallet holds the referral wallet money rules. Amounts are decimal
// rupees, never floats.
package wallet

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrBelowMinimum        = errors.New("amount is below the minimum withdrawal")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidUPI          = errors.New("invalid UPI id")
)

var upiPattern = regexp.MustCompile(`^[a-zA-Z0-9.\-_]{2,256}@[a-zA-Z]{2,64}$`)

// Rules are the configured withdrawal limits.
type Rules struct {
	MinWithdrawal decimal.Decimal
	ReferralBonus decimal.Decimal
}

// ValidateWithdrawal checks a request against the balance and the minimum.
func (r Rules) ValidateWithdrawal(balance, amount decimal.Decimal, upiID string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if amount.LessThan(r.MinWithdrawal) {
		return fmt.Errorf("%w of ₹%s", ErrBelowMinimum, r.MinWithdrawal.StringFixed(2))
	}
	if amount.GreaterThan(balance) {
		return ErrInsufficientBalance
	}
	if !upiPattern.MatchString(strings.TrimSpace(upiID)) {
		return ErrInvalidUPI
	}
	return nil
}

// Debit returns the balance after a withdrawal has been accepted.
func Debit(balance, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.GreaterThan(balance) {
		return balance, ErrInsufficientBalance
	}
	return balance.Sub(amount), nil
}

// Credit adds amount to balance; non-positive amounts leave it unchanged.
func Credit(balance, amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return balance
	}
	return balance.Add(amount)
}

// Summary is the wallet card shown to the user.
type Summary struct {
	Balance           decimal.Decimal `json:"balance"`
	PendingPayout     decimal.Decimal `json:"pending_payout"`
	TotalEarned       decimal.Decimal `json:"total_earned"`
	MinWithdrawal     decimal.Decimal `json:"min_withdrawal"`
	CanWithdraw       bool            `json:"can_withdraw"`
	ApprovedReferrals int64           `json:"approved_referrals"`
}

func (r Rules) Summarize(balance, pending decimal.Decimal, approved int64) Summary {
	return Summary{
		Balance:           balance,
		PendingPayout:     pending,
		TotalEarned:       r.ReferralBonus.Mul(decimal.NewFromInt(approved)),
		MinWithdrawal:     r.MinWithdrawal,
		CanWithdraw:       balance.GreaterThanOrEqual(r.MinWithdrawal) && balance.IsPositive(),
		ApprovedReferrals: approved,
	}
}
