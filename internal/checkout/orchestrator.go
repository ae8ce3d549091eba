package checkout

import (
	"context"
	"time"

	"github.com/fjod/cartflow/internal/domain"
	"github.com/fjod/cartflow/internal/result"
	"github.com/fjod/cartflow/internal/stream"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CartSource is the cart side of checkout. It is satisfied by
// *service.CartService.
type CartSource interface {
	Snapshot(ctx context.Context, scope domain.Scope) (domain.CartSnapshot, error)
	Subscribe(ctx context.Context, scope domain.Scope) <-chan result.Result[domain.CartSnapshot]
	ClearAll(ctx context.Context, scope domain.Scope) error
	BeginCommit(scope domain.Scope) (release func(), err error)
}

type IdentityProvider interface {
	CurrentUser(ctx context.Context) (domain.UserIdentity, error)
}

type PricingProvider interface {
	PriceRules(ctx context.Context, user domain.UserIdentity, cart domain.CartSnapshot) ([]domain.PriceBreakdownItem, error)
}

type OrderPlacer interface {
	SubmitOrder(ctx context.Context, checkoutID uuid.UUID, data domain.CheckoutData) (domain.OrderConfirmation, error)
}

type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event domain.OrderPlacedEvent) error
}

type Options struct {
	IdentityTimeout time.Duration
	PricingTimeout  time.Duration
	OrderTimeout    time.Duration
	// ClearTimeout bounds the cart clear after an accepted order. It runs on
	// a context detached from the caller.
	ClearTimeout   time.Duration
	PublishTimeout time.Duration

	// Publisher is optional.
	Publisher EventPublisher
}

func DefaultOptions() Options {
	return Options{
		IdentityTimeout: 2 * time.Second,
		PricingTimeout:  3 * time.Second,
		OrderTimeout:    10 * time.Second,
		ClearTimeout:    5 * time.Second,
		PublishTimeout:  5 * time.Second,
	}
}

// Orchestrator prices carts and commits them as orders.
type Orchestrator struct {
	cart     CartSource
	identity IdentityProvider
	pricing  PricingProvider
	orders   OrderPlacer
	events   EventPublisher
	opts     Options
	logger   *zap.Logger

	data    *stream.Hub[domain.CheckoutData]
	commits *stream.Hub[domain.Receipt]
}

func NewOrchestrator(
	cart CartSource,
	identity IdentityProvider,
	pricing PricingProvider,
	orders OrderPlacer,
	opts Options,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultOptions()
	if opts.IdentityTimeout <= 0 {
		opts.IdentityTimeout = def.IdentityTimeout
	}
	if opts.PricingTimeout <= 0 {
		opts.PricingTimeout = def.PricingTimeout
	}
	if opts.OrderTimeout <= 0 {
		opts.OrderTimeout = def.OrderTimeout
	}
	if opts.ClearTimeout <= 0 {
		opts.ClearTimeout = def.ClearTimeout
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = def.PublishTimeout
	}

	return &Orchestrator{
		cart:     cart,
		identity: identity,
		pricing:  pricing,
		orders:   orders,
		events:   opts.Publisher,
		opts:     opts,
		logger:   logger,
		data:     stream.NewHub[domain.CheckoutData](),
		commits:  stream.NewHub[domain.Receipt](),
	}
}
