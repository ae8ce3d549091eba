package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/cartflow/internal/domain"
	"github.com/fjod/cartflow/internal/service"
	"github.com/google/uuid"
)

// callLog records collaborator calls in the order they happen.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// recordingCart is a real CartService whose ClearAll is observed and can be
// made to fail.
type recordingCart struct {
	*service.CartService
	log      *callLog
	ClearErr error
}

func (c *recordingCart) ClearAll(ctx context.Context, scope domain.Scope) error {
	c.log.add("clear")
	if c.ClearErr != nil {
		return c.ClearErr
	}
	return c.CartService.ClearAll(ctx, scope)
}

// MockIdentity implements IdentityProvider for testing
type MockIdentity struct {
	User domain.UserIdentity
	Err  error
}

func (m *MockIdentity) CurrentUser(_ context.Context) (domain.UserIdentity, error) {
	return m.User, m.Err
}

// MockPricing implements PricingProvider with a flat shipping fee.
type MockPricing struct {
	mu       sync.Mutex
	Shipping int64
	Err      error
	Subtotal *int64 // overrides the reported subtotal when set
}

func (m *MockPricing) PriceRules(_ context.Context, _ domain.UserIdentity, cart domain.CartSnapshot) ([]domain.PriceBreakdownItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	subtotal := cart.TotalPrice()
	if m.Subtotal != nil {
		subtotal = *m.Subtotal
	}
	return []domain.PriceBreakdownItem{
		{Name: domain.BreakdownSubtotal, Amount: subtotal},
		{Name: domain.BreakdownShipping, Amount: m.Shipping},
	}, nil
}

func (m *MockPricing) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// MockOrderPlacer implements OrderPlacer. When Block is set, SubmitOrder
// signals Started and waits for Block to be closed.
type MockOrderPlacer struct {
	log     *callLog
	Err     error
	Started chan struct{}
	Block   chan struct{}

	mu        sync.Mutex
	submitted []domain.CheckoutData
}

func (m *MockOrderPlacer) SubmitOrder(ctx context.Context, checkoutID uuid.UUID, data domain.CheckoutData) (domain.OrderConfirmation, error) {
	if m.Block != nil {
		close(m.Started)
		select {
		case <-m.Block:
		case <-ctx.Done():
			return domain.OrderConfirmation{}, ctx.Err()
		}
	}

	m.mu.Lock()
	m.submitted = append(m.submitted, data)
	m.mu.Unlock()
	m.log.add("submit")

	if m.Err != nil {
		return domain.OrderConfirmation{}, m.Err
	}
	return domain.OrderConfirmation{
		OrderID:    uuid.New(),
		CheckoutID: checkoutID,
		PlacedAt:   time.Now(),
	}, nil
}

func (m *MockOrderPlacer) submissions() []domain.CheckoutData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.CheckoutData(nil), m.submitted...)
}

// MockPublisher implements EventPublisher for testing
type MockPublisher struct {
	mu     sync.Mutex
	Err    error
	events []domain.OrderPlacedEvent
}

func (m *MockPublisher) PublishOrderPlaced(_ context.Context, event domain.OrderPlacedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.Err
}

func (m *MockPublisher) published() []domain.OrderPlacedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OrderPlacedEvent(nil), m.events...)
}

// productTable implements service.ProductLookup from a fixed map.
type productTable map[int64]domain.Product

func (p productTable) GetProduct(_ context.Context, id int64) (domain.Product, error) {
	product, ok := p[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

var testProducts = productTable{
	1: {ID: 1, Name: "A", Price: 15000},
	2: {ID: 2, Name: "B", Price: 25000},
	3: {ID: 3, Name: "C", Price: 10},
}
