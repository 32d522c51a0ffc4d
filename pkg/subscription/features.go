package subscription

import (
	"fmt"
	"math"
)

type Feature string

const (
	Gallery         Feature = "gallery"
	VideoGallery    Feature = "video_gallery"
	QRCustomization Feature = "qr_customization"
	PrioritySupport Feature = "priority_support"
)

// Unlimited is the sentinel max for plans without a cap.
const Unlimited int64 = math.MaxInt64

var featureRequirements = map[Feature]Plan{
	Gallery:         BasicPlan,
	VideoGallery:    StandardPlan,
	QRCustomization: StandardPlan,
	PrioritySupport: PremiumPlan,
}

type PlanLimits struct {
	MaxImages int64 `json:"max_images"`
	MaxVideos int64 `json:"max_videos"`
}

var PlanFeatures = map[Plan]PlanLimits{
	BasicPlan: {
		MaxImages: 5,
		MaxVideos: 1,
	},
	StandardPlan: {
		MaxImages: 25,
		MaxVideos: 5,
	},
	PremiumPlan: {
		MaxImages: Unlimited,
		MaxVideos: Unlimited,
	},
}

// IsUnlimited reports whether a configured max means "no cap".
func IsUnlimited(max int64) bool {
	return max >= Unlimited
}

// RequiredPlan returns the lowest plan that unlocks feature. Unknown features
// require the top plan.
func RequiredPlan(feature Feature) Plan {
	if p, ok := featureRequirements[feature]; ok {
		return p
	}
	return planOrder[len(planOrder)-1]
}

func CanUseFeature(plan Plan, feature Feature) bool {
	return plan.AtLeast(RequiredPlan(feature))
}

func FeaturesFor(plan Plan) []Feature {
	var out []Feature
	for _, f := range []Feature{Gallery, VideoGallery, QRCustomization, PrioritySupport} {
		if CanUseFeature(plan, f) {
			out = append(out, f)
		}
	}
	return out
}

func GetPlanLimits(plan Plan) PlanLimits {
	if limits, ok := PlanFeatures[plan]; ok {
		return limits
	}
	return PlanFeatures[BasicPlan]
}

// LimitLabel renders a max for user-facing messages.
func LimitLabel(max int64) string {
	if IsUnlimited(max) {
		return "unlimited"
	}
	return fmt.Sprintf("%d", max)
}
