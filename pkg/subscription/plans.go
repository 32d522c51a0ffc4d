package subscription

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Plan string

const (
	BasicPlan    Plan = "basic"
	StandardPlan Plan = "standard"
	PremiumPlan  Plan = "premium"
)

// planOrder is the rank order; a plan's rank is its index.
var planOrder = []Plan{BasicPlan, StandardPlan, PremiumPlan}

// planAliases maps every historical or display name to its canonical plan.
// Keys are lowercase and trimmed.
var planAliases = map[string]Plan{
	"basic":   BasicPlan,
	"free":    BasicPlan,
	"starter": BasicPlan,
	"silver":  BasicPlan,
	"lite":    BasicPlan,
	"trial":   BasicPlan,

	"standard":     StandardPlan,
	"gold":         StandardPlan,
	"growth":       StandardPlan,
	"pro":          StandardPlan,
	"professional": StandardPlan,
	"plus":         StandardPlan,

	"premium":    PremiumPlan,
	"platinum":   PremiumPlan,
	"enterprise": PremiumPlan,
	"elite":      PremiumPlan,
	"business":   PremiumPlan,
	"ultimate":   PremiumPlan,
}

func lookupPlan(name string) (Plan, bool) {
	p, ok := planAliases[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// NormalizePlan maps a raw plan key to a canonical plan. When planKey is not
// recognised the optional fallback name is tried the same way. Unknown and
// empty input resolves to BasicPlan.
func NormalizePlan(planKey string, fallbackName ...string) Plan {
	if p, ok := lookupPlan(planKey); ok {
		return p
	}
	for _, name := range fallbackName {
		if p, ok := lookupPlan(name); ok {
			return p
		}
	}
	return BasicPlan
}

// GetPlanRank returns the zero-based rank of planKey after normalization.
func GetPlanRank(planKey string) int {
	return NormalizePlan(planKey).Rank()
}

func (p Plan) Rank() int {
	for i, candidate := range planOrder {
		if candidate == p {
			return i
		}
	}
	return 0
}

// AtLeast reports whether p ranks at or above required.
func (p Plan) AtLeast(required Plan) bool {
	return p.Rank() >= required.Rank()
}

func (p Plan) String() string { return string(p) }

// CanUpgrade reports whether moving from current to target is a paid upgrade.
func CanUpgrade(current, target string) bool {
	return GetPlanRank(target) > GetPlanRank(current)
}

// CatalogEntry is a purchasable plan as shown on the pricing page.
type CatalogEntry struct {
	Plan         Plan            `json:"plan"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	DurationDays int             `json:"duration_days"`
	Limits       PlanLimits      `json:"limits"`
	Features     []Feature       `json:"features"`
}

var planPrices = map[Plan]string{
	BasicPlan:    "0",
	StandardPlan: "499",
	PremiumPlan:  "999",
}

var planNames = map[Plan]string{
	BasicPlan:    "Basic",
	StandardPlan: "Standard",
	PremiumPlan:  "Premium",
}

const PlanDurationDays = 365

// DisplayName is the plan's name on the pricing page.
func (p Plan) DisplayName() string {
	return planNames[NormalizePlan(string(p))]
}

func Catalog() []CatalogEntry {
	entries := make([]CatalogEntry, 0, len(planOrder))
	for _, p := range planOrder {
		entries = append(entries, CatalogEntry{
			Plan:         p,
			Name:         planNames[p],
			Price:        decimal.RequireFromString(planPrices[p]),
			Currency:     "INR",
			DurationDays: PlanDurationDays,
			Limits:       GetPlanLimits(p),
			Features:     FeaturesFor(p),
		})
	}
	return entries
}

// PriceOf returns the catalog price of plan.
func PriceOf(plan Plan) decimal.Decimal {
	return decimal.RequireFromString(planPrices[NormalizePlan(string(plan))])
}
