package repository

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/cartflow/internal/domain"
)

// CartTTL is how long an untouched cart is kept before the cleanup loop drops it.
const CartTTL = 90 * 24 * time.Hour

type memoryCart struct {
	items     []domain.CartLineItem
	updatedAt time.Time
}

// MemoryStore implements CartRepository in process memory. It backs local
// runs and tests; rows are copied in and out so callers never share slices
// with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	carts map[domain.Scope]*memoryCart
	ttl   time.Duration
	now   func() time.Time

	stopCleanup chan struct{}
	wg          sync.WaitGroup
}

// NewMemoryStore creates a store and starts its cleanup loop.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		carts:       make(map[domain.Scope]*memoryCart),
		ttl:         CartTTL,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	if cleanupInterval > 0 {
		s.wg.Add(1)
		go s.cleanupLoop(cleanupInterval)
	}

	return s
}

func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.expireCarts()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) expireCarts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.ttl)
	for scope, cart := range s.carts {
		if cart.updatedAt.Before(cutoff) {
			delete(s.carts, scope)
		}
	}
}

func (s *MemoryStore) ReadCart(ctx context.Context, scope domain.Scope) ([]domain.CartLineItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, exists := s.carts[scope]
	if !exists {
		return nil, ErrCartNotFound
	}
	return cloneItems(cart.items), nil
}

func (s *MemoryStore) WriteCart(ctx context.Context, scope domain.Scope, items []domain.CartLineItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.carts[scope] = &memoryCart{
		items:     cloneItems(items),
		updatedAt: s.now(),
	}
	return nil
}

func (s *MemoryStore) DeleteCart(ctx context.Context, scope domain.Scope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.carts[scope]; !exists {
		return ErrCartNotFound
	}
	delete(s.carts, scope)
	return nil
}

// Close stops the cleanup loop and waits for it to finish.
func (s *MemoryStore) Close() error {
	close(s.stopCleanup)
	s.wg.Wait()
	return nil
}

func cloneItems(items []domain.CartLineItem) []domain.CartLineItem {
	out := make([]domain.CartLineItem, len(items))
	copy(out, items)
	return out
}
