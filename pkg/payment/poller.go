package payment

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

const (
	DefaultPollAttempts = 15
	DefaultPollInterval = 2 * time.Second
)

type PollOptions struct {
	Attempts int
	Interval time.Duration
}

func DefaultPollOptions() PollOptions {
	return PollOptions{Attempts: DefaultPollAttempts, Interval: DefaultPollInterval}
}

// PollPaymentStatus asks the gateway for the payment status up to
// opts.Attempts times, opts.Interval apart, with no backoff. It returns at
// the first terminal status. A status error on one attempt is logged and the
// next attempt proceeds; if every attempt fails the last error is returned.
func PollPaymentStatus(ctx context.Context, gw Gateway, ref Ref, opts PollOptions) (Status, error) {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultPollAttempts
	}
	if opts.Interval < 0 {
		opts.Interval = 0
	}

	var (
		lastErr error
		status  = StatusPending
	)
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		s, err := gw.Status(ctx, ref)
		if err != nil {
			lastErr = err
			log.Warnf("[Payment] %s status check %d/%d for %s failed: %v", gw.Name(), attempt, opts.Attempts, ref.MerchantRef, err)
		} else {
			lastErr = nil
			status = s
			if s.Terminal() {
				return s, nil
			}
		}

		if attempt == opts.Attempts {
			break
		}
		timer := time.NewTimer(opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return status, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr != nil {
		return status, lastErr
	}
	return status, nil
}
