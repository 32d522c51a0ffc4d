package rewards

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statuses(views []LevelView) []Status {
	out := make([]Status, 0, len(views))
	for _, v := range views {
		out = append(out, v.Status)
	}
	return out
}

func TestBuildRewardsViewSequentialGating(t *testing.T) {
	views := BuildRewardsView(Input{ReferralCount: 6})
	require.Len(t, views, 3)
	assert.Equal(t, []Status{StatusUnlocked, StatusUnlocked, StatusLocked}, statuses(views))
	assert.Equal(t, "derived", views[0].Source)
	assert.Equal(t, 4, views[2].Remaining)
	assert.Equal(t, 60, views[2].Progress)

	views = BuildRewardsView(Input{ReferralCount: 0})
	assert.Equal(t, []Status{StatusLocked, StatusLocked, StatusLocked}, statuses(views))
}

func TestBuildRewardsViewLegacyOverrideKeepsGate(t *testing.T) {
	// L1 is forced LOCKED by the backend, so L2 cannot unlock even with 6 referrals.
	views := BuildRewardsView(Input{
		ReferralCount: 6,
		APIRewards:    []Record{{RewardCode: " l1 ", Status: "locked"}},
	})
	assert.Equal(t, []Status{StatusLocked, StatusLocked, StatusLocked}, statuses(views))
	assert.Equal(t, "backend", views[0].Source)
	assert.Equal(t, "derived", views[1].Source)
}

func TestBuildRewardsViewLegacyClaimedOpensGate(t *testing.T) {
	views := BuildRewardsView(Input{
		ReferralCount: 5,
		APIRewards:    []Record{{RewardCode: "L1", Status: "CLAIMED", CouponCode: "ABC"}},
	})
	assert.Equal(t, []Status{StatusClaimed, StatusUnlocked, StatusLocked}, statuses(views))
	assert.False(t, views[0].ClaimEnabled)
}

func TestBuildRewardsViewBackendAuthority(t *testing.T) {
	views := BuildRewardsView(Input{
		ReferralCount: 0,
		APILevels:     []Record{{RewardCode: "L1", Status: "CLAIMED"}},
	})
	require.Len(t, views, 3)
	assert.Equal(t, StatusClaimed, views[0].Status)
	assert.Equal(t, StatusLocked, views[1].Status)
	assert.Equal(t, StatusLocked, views[2].Status)
	assert.Equal(t, "backend", views[2].Source)
}

func TestBuildRewardsViewBackendSkipsGating(t *testing.T) {
	views := BuildRewardsView(Input{
		ReferralCount: 1,
		APILevels: []Record{
			{RewardCode: "L1", Status: "LOCKED"},
			{RewardCode: "l3", Status: "unlocked", CouponCode: "X1"},
		},
	})
	assert.Equal(t, []Status{StatusLocked, StatusLocked, StatusUnlocked}, statuses(views))
	assert.True(t, views[2].ClaimEnabled)
}

func TestBuildRewardsViewMalformedInput(t *testing.T) {
	views := BuildRewardsView(Input{
		ReferralCount: -4,
		APIRewards:    []Record{{RewardCode: "", Status: "??"}, {RewardCode: "L9", Status: "CLAIMED"}},
	})
	require.Len(t, views, 3)
	for _, v := range views {
		assert.Equal(t, StatusLocked, v.Status)
		assert.Equal(t, 0, v.ReferralCount)
		assert.Equal(t, EmptyDate, v.UnlockedAt)
		assert.Equal(t, EmptyDate, v.ClaimedAt)
	}
}

func TestBuildRewardsViewProgressOverride(t *testing.T) {
	override := 10
	views := BuildRewardsView(Input{ReferralCount: 1, ProgressOverride: &override})
	assert.Equal(t, []Status{StatusUnlocked, StatusUnlocked, StatusUnlocked}, statuses(views))

	negative := -1
	views = BuildRewardsView(Input{ReferralCount: 2, ProgressOverride: &negative})
	assert.Equal(t, StatusUnlocked, views[0].Status)
}

func TestBuildRewardsViewDatesAndShopURL(t *testing.T) {
	unlocked := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	views := BuildRewardsView(Input{
		ReferralCount: 2,
		APILevels:     []Record{{RewardCode: "L1", Status: "UNLOCKED", CouponCode: "SAVE10", UnlockedAt: &unlocked, ClaimedAt: &time.Time{}}},
		ShopBaseURL:   "https://shop.example.com/checkout",
	})
	assert.Equal(t, "04 Mar 2026", views[0].UnlockedAt)
	assert.Equal(t, EmptyDate, views[0].ClaimedAt)
	assert.Equal(t, "https://shop.example.com/checkout?coupon=SAVE10&productId=nfc-card-classic", views[0].ShopURL)
	assert.Equal(t, "https://shop.example.com/checkout", views[1].ShopURL)
}

func TestStatusSourceResolve(t *testing.T) {
	assert.Equal(t, StatusUnlocked, Derived().Resolve(StatusUnlocked))
	assert.Equal(t, StatusExpired, Authoritative(StatusExpired).Resolve(StatusUnlocked))
	assert.True(t, Authoritative(StatusLocked).IsAuthoritative())
	assert.False(t, Derived().IsAuthoritative())
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusUnlocked, ParseStatus(" unlocked "))
	assert.Equal(t, StatusExpired, ParseStatus("Expired"))
	assert.Equal(t, StatusLocked, ParseStatus(""))
	assert.Equal(t, StatusLocked, ParseStatus("pending"))
}
