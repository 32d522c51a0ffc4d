// Package gallery implements plan-limited slot accounting and the per-file
// bookkeeping of a gallery upload batch.
package gallery

import (
	"errors"
	"fmt"

	"qrcard_backend/pkg/subscription"
)

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

var ErrLimitReached = errors.New("gallery limit reached")

// Slots describes how many more items of one kind a user may add.
type Slots struct {
	Max             int64 `json:"max"`
	Current         int64 `json:"current"`
	Remaining       int64 `json:"remaining"`
	HasReachedLimit bool  `json:"has_reached_limit"`
	Unlimited       bool  `json:"unlimited"`
}

func ComputeSlots(max, current int64) Slots {
	if current < 0 {
		current = 0
	}
	if subscription.IsUnlimited(max) {
		return Slots{Max: subscription.Unlimited, Current: current, Remaining: subscription.Unlimited, Unlimited: true}
	}
	if max < 0 {
		max = 0
	}
	remaining := max - current
	if remaining < 0 {
		remaining = 0
	}
	return Slots{
		Max:             max,
		Current:         current,
		Remaining:       remaining,
		HasReachedLimit: remaining == 0,
	}
}

// SlotsFor computes the slots of kind for plan given the current count.
func SlotsFor(plan subscription.Plan, kind Kind, current int64) Slots {
	limits := subscription.GetPlanLimits(plan)
	if kind == KindVideo {
		return ComputeSlots(limits.MaxVideos, current)
	}
	return ComputeSlots(limits.MaxImages, current)
}

// SplitBatch accepts at most slots.Remaining items. When anything is rejected
// the returned error wraps ErrLimitReached and names the plan's limit.
func SplitBatch[T any](items []T, slots Slots, plan subscription.Plan, kind Kind) (accepted, rejected []T, err error) {
	if slots.Unlimited || int64(len(items)) <= slots.Remaining {
		return items, nil, nil
	}

	n := slots.Remaining
	if n < 0 {
		n = 0
	}
	accepted = items[:n]
	rejected = items[n:]
	err = fmt.Errorf("%w: the %s plan allows %s %ss; %d file(s) were not uploaded",
		ErrLimitReached, plan, subscription.LimitLabel(slots.Max), kind, len(rejected))
	return accepted, rejected, err
}
