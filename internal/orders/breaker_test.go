package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/cartflow/internal/domain"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPlacer struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (m *mockPlacer) SubmitOrder(_ context.Context, checkoutID uuid.UUID, _ domain.CheckoutData) (domain.OrderConfirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return domain.OrderConfirmation{}, m.err
	}
	return domain.OrderConfirmation{OrderID: uuid.New(), CheckoutID: checkoutID, PlacedAt: time.Now()}, nil
}

func (m *mockPlacer) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockPlacer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestBreakerPlacer_PassesThrough(t *testing.T) {
	next := &mockPlacer{}
	sut := NewBreakerPlacer(next, BreakerSettings{}, nil)
	checkoutID := uuid.New()

	confirmation, err := sut.SubmitOrder(context.Background(), checkoutID, domain.CheckoutData{})

	require.NoError(t, err)
	assert.Equal(t, checkoutID, confirmation.CheckoutID)
	assert.Equal(t, gobreaker.StateClosed, sut.State())
}

func TestBreakerPlacer_OpensAfterConsecutiveFailures(t *testing.T) {
	next := &mockPlacer{err: errors.New("connection refused")}
	sut := NewBreakerPlacer(next, BreakerSettings{ConsecutiveFailures: 3, OpenTimeout: time.Minute}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := sut.SubmitOrder(ctx, uuid.New(), domain.CheckoutData{})
		assert.ErrorIs(t, err, domain.ErrOrder)
		assert.ErrorContains(t, err, "connection refused")
	}
	assert.Equal(t, gobreaker.StateOpen, sut.State())

	_, err := sut.SubmitOrder(ctx, uuid.New(), domain.CheckoutData{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.ErrorIs(t, err, domain.ErrOrder)
	assert.Equal(t, 3, next.callCount(), "open breaker must not reach the placer")
}

func TestBreakerPlacer_RecoversAfterTimeout(t *testing.T) {
	next := &mockPlacer{err: errors.New("connection refused")}
	sut := NewBreakerPlacer(next, BreakerSettings{ConsecutiveFailures: 1, OpenTimeout: 50 * time.Millisecond}, nil)
	ctx := context.Background()

	_, err := sut.SubmitOrder(ctx, uuid.New(), domain.CheckoutData{})
	require.Error(t, err)
	require.Equal(t, gobreaker.StateOpen, sut.State())

	next.setErr(nil)
	require.Eventually(t, func() bool {
		return sut.State() == gobreaker.StateHalfOpen
	}, time.Second, 10*time.Millisecond)

	_, err = sut.SubmitOrder(ctx, uuid.New(), domain.CheckoutData{})
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, sut.State())
}

func TestBreakerPlacer_CanceledCallsDoNotTrip(t *testing.T) {
	next := &mockPlacer{err: context.Canceled}
	sut := NewBreakerPlacer(next, BreakerSettings{ConsecutiveFailures: 1}, nil)

	for i := 0; i < 3; i++ {
		_, err := sut.SubmitOrder(context.Background(), uuid.New(), domain.CheckoutData{})
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, sut.State())
}
