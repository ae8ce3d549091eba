package orders

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/cartflow/internal/domain"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type Placer interface {
	SubmitOrder(ctx context.Context, checkoutID uuid.UUID, data domain.CheckoutData) (domain.OrderConfirmation, error)
}

type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// BreakerPlacer stops submitting orders after repeated failures so a dead
// database fails checkouts fast instead of holding each one for the full
// order timeout.
type BreakerPlacer struct {
	next Placer
	cb   *gobreaker.CircuitBreaker[domain.OrderConfirmation]
}

func NewBreakerPlacer(next Placer, settings BreakerSettings, logger *zap.Logger) *BreakerPlacer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[domain.OrderConfirmation](gobreaker.Settings{
		Name:        "order-placement",
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// a caller giving up says nothing about the database
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerPlacer{next: next, cb: cb}
}

func (b *BreakerPlacer) SubmitOrder(ctx context.Context, checkoutID uuid.UUID, data domain.CheckoutData) (domain.OrderConfirmation, error) {
	confirmation, err := b.cb.Execute(func() (domain.OrderConfirmation, error) {
		return b.next.SubmitOrder(ctx, checkoutID, data)
	})
	if err != nil {
		return domain.OrderConfirmation{}, domain.Wrap(domain.ErrOrder, err)
	}
	return confirmation, nil
}

func (b *BreakerPlacer) State() gobreaker.State {
	return b.cb.State()
}
