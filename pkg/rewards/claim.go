package rewards

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IsClaimEnabled is true iff the level is UNLOCKED and carries a coupon.
func IsClaimEnabled(row LevelView) bool {
	return row.Status == StatusUnlocked && strings.TrimSpace(row.CouponCode) != ""
}

// ShopURL attaches the coupon and product id to the shop checkout URL. The
// bare base is returned when there is no coupon.
func ShopURL(base string, row LevelView) string {
	coupon := strings.TrimSpace(row.CouponCode)
	if coupon == "" {
		return base
	}

	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("coupon", coupon)
	if row.ProductID != "" {
		q.Set("productId", row.ProductID)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// NewCouponCode returns a fresh coupon for level, e.g. "L2-7F3A9C1B".
func NewCouponCode(level Level) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return level.RewardCode + "-" + strings.ToUpper(id[:8])
}

// Grant is a level that has just become reachable and needs a stored reward.
type Grant struct {
	Level      Level
	CouponCode string
	UnlockedAt time.Time
	ExpiresAt  time.Time
}

// Sync walks the levels with sequential gating against the stored records and
// returns grants for levels that are reachable but have no record yet.
func Sync(count int, existing []Record, now time.Time, claimWindow time.Duration) []Grant {
	byCode := indexRecords(existing)
	var grants []Grant

	previousGateOpen := true
	for _, level := range Levels {
		status := StatusLocked
		if rec, ok := byCode[level.RewardCode]; ok {
			status = ParseStatus(rec.Status)
		} else if previousGateOpen && count >= level.Threshold {
			status = StatusUnlocked
			grants = append(grants, Grant{
				Level:      level,
				CouponCode: NewCouponCode(level),
				UnlockedAt: now,
				ExpiresAt:  now.Add(claimWindow),
			})
		}
		previousGateOpen = status != StatusLocked
	}
	return grants
}
