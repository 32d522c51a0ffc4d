package controller

import (
	"github.com/gofiber/fiber/v2"

	"qrcard_backend/pkg/rewards"
	"qrcard_backend/pkg/utils/response"
)

// GetClientConfig is the public runtime configuration the web client reads
// on start.
func GetClientConfig(c *fiber.Ctx) error {
	conf := cfg()

	var gateways []string
	if deps.Payments != nil {
		gateways = deps.Payments.Names()
	}

	levels := make([]fiber.Map, 0, len(rewards.Levels))
	for _, l := range rewards.Levels {
		levels = append(levels, fiber.Map{
			"level":       l.Number,
			"reward_code": l.RewardCode,
			"threshold":   l.Threshold,
			"label":       l.Label,
		})
	}

	return response.Success(c, fiber.Map{
		"api_base_url": conf.Server.APIBaseURL,
		"firebase": fiber.Map{
			"project_id": conf.Firebase.ProjectID,
			"api_key":    conf.Firebase.APIKey,
		},
		"referral": fiber.Map{
			"bonus_amount":      conf.Referral.BonusAmount,
			"min_withdrawal":    conf.Referral.MinWithdrawal,
			"claim_window_days": conf.Referral.ClaimWindowDays,
			"levels":            levels,
		},
		"payment_gateways": gateways,
		"otp_enabled":      deps.OTP != nil,
	})
}

func Health(c *fiber.Ctx) error {
	return response.Success(c, fiber.Map{"status": "ok"})
}
