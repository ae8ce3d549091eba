package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fjod/cartflow/internal/domain"
	"github.com/fjod/cartflow/internal/publisher"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const consumerGroup = "cartflow-reconciler"

// CartClearer removes the ordered lines of a cart when they are still
// exactly what the cart holds. It is satisfied by *service.CartService.
type CartClearer interface {
	ClearOrdered(ctx context.Context, scope domain.Scope, ordered []domain.CartLineItem) (bool, error)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Reconciler consumes order placed events and clears carts whose
// post-order clear did not happen.
type Reconciler struct {
	reader  messageReader
	carts   CartClearer
	logger  *zap.Logger
	backoff time.Duration
}

func NewReconciler(carts CartClearer, topic string, logger *zap.Logger, brokers ...string) *Reconciler {
	if topic == "" {
		topic = publisher.OrdersPlacedTopic
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  consumerGroup,
		MaxBytes: 10e6, // 10MB
	})
	return newReconciler(reader, carts, logger)
}

func newReconciler(reader messageReader, carts CartClearer, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		reader:  reader,
		carts:   carts,
		logger:  logger.Named("reconciler"),
		backoff: time.Second,
	}
}

// Run blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := r.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("error reading message", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.backoff):
			}
			continue
		}
		r.handle(ctx, m)
	}
}

func (r *Reconciler) Close() {
	if err := r.reader.Close(); err != nil {
		r.logger.Warn("error closing reader", zap.Error(err))
	}
}

func (r *Reconciler) handle(ctx context.Context, m kafka.Message) {
	if eventType := header(m, "event_type"); eventType != "" && eventType != publisher.EventTypeOrderPlaced {
		return
	}

	var event domain.OrderPlacedEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		r.logger.Error("error parsing message", zap.Error(err), zap.Int64("offset", m.Offset))
		return
	}
	if event.UserID == "" {
		r.logger.Error("order placed event without user_id", zap.String("checkout_id", event.CheckoutID.String()))
		return
	}

	cleared, err := r.carts.ClearOrdered(ctx, domain.Scope(event.UserID), event.Items)
	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		r.logger.Error("failed to clear ordered cart",
			zap.String("user_id", event.UserID),
			zap.String("order_id", event.OrderID.String()),
			zap.Error(err),
		)
	case cleared:
		r.logger.Info("cleared cart left behind by order",
			zap.String("user_id", event.UserID),
			zap.String("order_id", event.OrderID.String()),
		)
	}
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
