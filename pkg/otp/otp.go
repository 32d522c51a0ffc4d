// Package otp issues and checks one-time phone verification codes. Codes live
// in redis under otp:<purpose>:<phone> with a bounded number of attempts.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	CodeLength  = 6
	TTL         = 5 * time.Minute
	MaxAttempts = 5
	// ResendAfter is the minimum gap between two codes for the same phone.
	ResendAfter = 30 * time.Second
)

var (
	ErrInvalidCode     = errors.New("otp: invalid or expired code")
	ErrTooManyAttempts = errors.New("otp: too many attempts")
	ErrTooSoon         = errors.New("otp: code requested too recently")
	ErrInvalidPhone    = errors.New("otp: invalid phone number")
)

// Sender delivers a code to a phone number.
type Sender interface {
	Send(ctx context.Context, phone, code string) error
}

// LogSender writes codes to the application log. Used when no SMS provider
// is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, phone, code string) error {
	log.Infof("[OTP] code for %s: %s", maskPhone(phone), code)
	return nil
}

type Service struct {
	rdb    redis.Cmdable
	sender Sender
}

func NewService(rdb redis.Cmdable, sender Sender) *Service {
	if sender == nil {
		sender = LogSender{}
	}
	return &Service{rdb: rdb, sender: sender}
}

func codeKey(purpose, phone string) string     { return fmt.Sprintf("otp:%s:%s", purpose, phone) }
func attemptsKey(purpose, phone string) string { return fmt.Sprintf("otp:%s:%s:attempts", purpose, phone) }
func resendKey(purpose, phone string) string   { return fmt.Sprintf("otp:%s:%s:resend", purpose, phone) }

// NormalizePhone strips spaces, dashes and parentheses and requires 10 to 15
// digits with an optional leading +.
func NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", ErrInvalidPhone
		}
	}
	out := b.String()
	digits := len(strings.TrimPrefix(out, "+"))
	if digits < 10 || digits > 15 {
		return "", ErrInvalidPhone
	}
	return out, nil
}

// GenerateCode returns a uniformly random numeric code of CodeLength digits.
func GenerateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < CodeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// Send issues a new code for phone and purpose and delivers it.
func (s *Service) Send(ctx context.Context, purpose, phone string) error {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return err
	}

	ok, err := s.rdb.SetNX(ctx, resendKey(purpose, phone), 1, ResendAfter).Result()
	if err != nil {
		return fmt.Errorf("otp: reserving resend slot: %w", err)
	}
	if !ok {
		return ErrTooSoon
	}

	code, err := GenerateCode()
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, codeKey(purpose, phone), code, TTL)
	pipe.Del(ctx, attemptsKey(purpose, phone))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("otp: storing code: %w", err)
	}

	return s.sender.Send(ctx, phone, code)
}

// Verify checks code for phone and purpose. A correct code is consumed.
func (s *Service) Verify(ctx context.Context, purpose, phone, code string) error {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return err
	}

	attempts, err := s.rdb.Incr(ctx, attemptsKey(purpose, phone)).Result()
	if err != nil {
		return fmt.Errorf("otp: counting attempt: %w", err)
	}
	if attempts == 1 {
		s.rdb.Expire(ctx, attemptsKey(purpose, phone), TTL)
	}
	if attempts > MaxAttempts {
		s.rdb.Del(ctx, codeKey(purpose, phone))
		return ErrTooManyAttempts
	}

	stored, err := s.rdb.Get(ctx, codeKey(purpose, phone)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrInvalidCode
	}
	if err != nil {
		return fmt.Errorf("otp: reading code: %w", err)
	}
	if strings.TrimSpace(code) != stored {
		return ErrInvalidCode
	}

	s.rdb.Del(ctx, codeKey(purpose, phone), attemptsKey(purpose, phone))
	return nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
