package gateway

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Domenick1991/carrental/internal/domain"
	"github.com/Domenick1991/carrental/internal/logger"
)

// ErrUnavailable means the provider could not be reached; the outcome of the call is unknown.
var ErrUnavailable = errors.New("payment gateway unavailable")

// Gateway captures and refunds money at an external provider. Calls are at-most-once:
// implementations never retry, and a business decline is (false, nil), not an error.
type Gateway interface {
	Capture(ctx context.Context, amount decimal.Decimal, method domain.PaymentMethod, reference string) (transactionID string, succeeded bool, err error)
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal) (succeeded bool, err error)
}

type Options struct {
	SuccessRate float64
	Latency     time.Duration
	Outage      bool
}

// Simulated stands in for a card/PayPal provider: it approves a configurable share of
// calls and can be switched into an outage.
type Simulated struct {
	opts Options

	mu   sync.Mutex
	roll func() float64
}

func NewSimulated(opts Options) *Simulated {
	return &Simulated{opts: opts, roll: rand.Float64}
}

// SetOutage toggles the provider outage at runtime.
func (g *Simulated) SetOutage(down bool) {
	g.mu.Lock()
	g.opts.Outage = down
	g.mu.Unlock()
}

func (g *Simulated) Capture(ctx context.Context, amount decimal.Decimal, method domain.PaymentMethod, reference string) (string, bool, error) {
	logger.ExternalServiceCall("payment-gateway", "capture", "amount", amount.StringFixed(2), "method", method, "reference", reference)
	if err := g.wait(ctx); err != nil {
		logger.ExternalServiceResult("payment-gateway", "capture", err)
		return "", false, err
	}

	txID := "PAY-" + strings.ToUpper(uuid.NewString())
	ok := g.approve()
	logger.ExternalServiceResult("payment-gateway", "capture", nil, "transaction_id", txID, "succeeded", ok)
	return txID, ok, nil
}

func (g *Simulated) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) (bool, error) {
	logger.ExternalServiceCall("payment-gateway", "refund", "transaction_id", transactionID, "amount", amount.StringFixed(2))
	if err := g.wait(ctx); err != nil {
		logger.ExternalServiceResult("payment-gateway", "refund", err)
		return false, err
	}

	ok := g.approve()
	logger.ExternalServiceResult("payment-gateway", "refund", nil, "transaction_id", transactionID, "succeeded", ok)
	return ok, nil
}

func (g *Simulated) wait(ctx context.Context) error {
	g.mu.Lock()
	down, latency := g.opts.Outage, g.opts.Latency
	g.mu.Unlock()

	if down {
		return ErrUnavailable
	}
	if latency <= 0 {
		if err := ctx.Err(); err != nil {
			return errors.Join(ErrUnavailable, err)
		}
		return nil
	}

	t := time.NewTimer(latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return errors.Join(ErrUnavailable, ctx.Err())
	}
}

func (g *Simulated) approve() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.roll() < g.opts.SuccessRate
}

var _ Gateway = (*Simulated)(nil)
