// Package rewards derives the referral reward tiers shown on the referral page
// and decides whether a tier can be claimed.
package rewards

import "strings"

type Status string

const (
	StatusLocked   Status = "LOCKED"
	StatusUnlocked Status = "UNLOCKED"
	StatusClaimed  Status = "CLAIMED"
	StatusExpired  Status = "EXPIRED"
)

// ParseStatus maps a backend status string to a Status. Unknown or empty
// values are LOCKED.
func ParseStatus(s string) Status {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusUnlocked:
		return StatusUnlocked
	case StatusClaimed:
		return StatusClaimed
	case StatusExpired:
		return StatusExpired
	default:
		return StatusLocked
	}
}

// Level is one fixed referral milestone.
type Level struct {
	Number     int
	RewardCode string
	Threshold  int
	Label      string
	ProductID  string
}

// Levels are ordered; a level can only unlock after the previous one.
var Levels = [3]Level{
	{Number: 1, RewardCode: "L1", Threshold: 2, Label: "Free NFC business card", ProductID: "nfc-card-classic"},
	{Number: 2, RewardCode: "L2", Threshold: 5, Label: "Metal NFC business card", ProductID: "nfc-card-metal"},
	{Number: 3, RewardCode: "L3", Threshold: 10, Label: "One year of Premium", ProductID: "plan-premium-1y"},
}

// NormalizeCode trims and uppercases a reward code for matching.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// LevelByCode finds a fixed level by its reward code.
func LevelByCode(code string) (Level, bool) {
	code = NormalizeCode(code)
	for _, l := range Levels {
		if l.RewardCode == code {
			return l, true
		}
	}
	return Level{}, false
}
