// Package payment wraps the plan checkout gateways and the status poll used
// to confirm a payment once the customer returns from the gateway.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

var (
	ErrUnknownGateway = errors.New("unknown payment gateway")
	ErrNotConfigured  = errors.New("payment gateway is not configured")
)

// Order is what the service asks a gateway to charge.
type Order struct {
	MerchantRef   string
	UserID        uint
	CustomerEmail string
	CustomerPhone string
	Plan          string
	Amount        decimal.Decimal
	Currency      string
	RedirectURL   string
	CallbackURL   string
}

// Checkout is where the customer must be sent to pay.
type Checkout struct {
	GatewayRef  string
	RedirectURL string
	Raw         []byte
}

// Ref identifies a payment on both sides. Gateways look it up by whichever
// id they issued or accepted.
type Ref struct {
	MerchantRef string
	GatewayRef  string
}

type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, order Order) (Checkout, error)
	Status(ctx context.Context, ref Ref) (Status, error)
}

// Registry resolves gateways by name.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, gw := range gateways {
		if gw != nil {
			r.gateways[gw.Name()] = gw
		}
	}
	return r
}

func (r *Registry) Get(name string) (Gateway, error) {
	gw, ok := r.gateways[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, name)
	}
	return gw, nil
}

// Names lists the registered gateways alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// toMinorUnits converts an amount to paise/cents.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
