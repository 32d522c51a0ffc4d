package rewards

import (
	"strings"
	"time"
)

// EmptyDate is rendered for missing or unparseable timestamps.
const EmptyDate = "—"

const dateLayout = "02 Jan 2006"

// Record is a per-level reward entry as stored by the backend.
type Record struct {
	RewardCode string     `json:"reward_code"`
	Status     string     `json:"status"`
	CouponCode string     `json:"coupon_code"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Input collects everything the view builder may receive. APILevels is the
// authoritative per-level shape; APIRewards is the older flat shape.
type Input struct {
	ReferralCount    int
	APILevels        []Record
	APIRewards       []Record
	ProgressOverride *int
	ShopBaseURL      string
}

// StatusSource records where a level's status comes from. Authoritative
// statuses always win over the locally derived one.
type StatusSource struct {
	authoritative bool
	status        Status
}

func Derived() StatusSource { return StatusSource{} }

func Authoritative(s Status) StatusSource {
	return StatusSource{authoritative: true, status: s}
}

func (s StatusSource) IsAuthoritative() bool { return s.authoritative }

// Resolve returns the authoritative status if there is one, otherwise derived.
func (s StatusSource) Resolve(derived Status) Status {
	if s.authoritative {
		return s.status
	}
	return derived
}

func (s StatusSource) label() string {
	if s.authoritative {
		return "backend"
	}
	return "derived"
}

// LevelView is one row of the rewards table.
type LevelView struct {
	Level         int    `json:"level"`
	RewardCode    string `json:"reward_code"`
	Label         string `json:"label"`
	ProductID     string `json:"product_id"`
	Threshold     int    `json:"threshold"`
	ReferralCount int    `json:"referral_count"`
	Remaining     int    `json:"remaining"`
	Progress      int    `json:"progress"`
	Status        Status `json:"status"`
	Source        string `json:"source"`
	CouponCode    string `json:"coupon_code,omitempty"`
	UnlockedAt    string `json:"unlocked_at"`
	ClaimedAt     string `json:"claimed_at"`
	ExpiresAt     string `json:"expires_at"`
	ClaimEnabled  bool   `json:"claim_enabled"`
	ShopURL       string `json:"shop_url,omitempty"`
}

// BuildRewardsView merges the fixed level definitions with backend or derived
// status. It always returns exactly len(Levels) rows.
func BuildRewardsView(in Input) []LevelView {
	count := in.ReferralCount
	if in.ProgressOverride != nil && *in.ProgressOverride >= 0 {
		count = *in.ProgressOverride
	}
	if count < 0 {
		count = 0
	}

	views := make([]LevelView, 0, len(Levels))

	if len(in.APILevels) > 0 {
		byCode := indexRecords(in.APILevels)
		for _, level := range Levels {
			rec, ok := byCode[level.RewardCode]
			source := Authoritative(StatusLocked)
			if ok {
				source = Authoritative(ParseStatus(rec.Status))
			}
			views = append(views, newLevelView(level, count, source, StatusLocked, rec, in.ShopBaseURL))
		}
		return views
	}

	byCode := indexRecords(in.APIRewards)
	previousGateOpen := true
	for _, level := range Levels {
		derived := StatusLocked
		if previousGateOpen && count >= level.Threshold {
			derived = StatusUnlocked
		}

		rec, ok := byCode[level.RewardCode]
		source := Derived()
		if ok && strings.TrimSpace(rec.Status) != "" {
			source = Authoritative(ParseStatus(rec.Status))
		}

		view := newLevelView(level, count, source, derived, rec, in.ShopBaseURL)
		views = append(views, view)
		previousGateOpen = view.Status != StatusLocked
	}
	return views
}

func indexRecords(records []Record) map[string]Record {
	out := make(map[string]Record, len(records))
	for _, r := range records {
		code := NormalizeCode(r.RewardCode)
		if code == "" {
			continue
		}
		if _, dup := out[code]; !dup {
			out[code] = r
		}
	}
	return out
}

func newLevelView(level Level, count int, source StatusSource, derived Status, rec Record, shopBase string) LevelView {
	status := source.Resolve(derived)
	remaining := level.Threshold - count
	if remaining < 0 {
		remaining = 0
	}

	view := LevelView{
		Level:         level.Number,
		RewardCode:    level.RewardCode,
		Label:         level.Label,
		ProductID:     level.ProductID,
		Threshold:     level.Threshold,
		ReferralCount: count,
		Remaining:     remaining,
		Progress:      progressPercent(count, level.Threshold),
		Status:        status,
		Source:        source.label(),
		CouponCode:    strings.TrimSpace(rec.CouponCode),
		UnlockedAt:    FormatDate(rec.UnlockedAt),
		ClaimedAt:     FormatDate(rec.ClaimedAt),
		ExpiresAt:     FormatDate(rec.ExpiresAt),
	}
	view.ClaimEnabled = IsClaimEnabled(view)
	if shopBase != "" {
		view.ShopURL = ShopURL(shopBase, view)
	}
	return view
}

func progressPercent(count, threshold int) int {
	if threshold <= 0 {
		return 100
	}
	if count >= threshold {
		return 100
	}
	return count * 100 / threshold
}

// FormatDate renders t for display, or EmptyDate when t is missing.
func FormatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return EmptyDate
	}
	return t.Format(dateLayout)
}
