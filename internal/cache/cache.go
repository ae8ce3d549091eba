package cache

import (
	"context"
	"errors"

	"github.com/fjod/cartflow/internal/domain"
)

// CartCache holds the rows last read from the cart store for a scope.
type CartCache interface {
	Get(ctx context.Context, scope domain.Scope) ([]domain.CartLineItem, error)
	Set(ctx context.Context, scope domain.Scope, items []domain.CartLineItem) error
	Delete(ctx context.Context, scope domain.Scope) error
}

var ErrCacheMiss = errors.New("cache miss")

// Nop never hits. Used when no Redis address is configured.
type Nop struct{}

func (Nop) Get(context.Context, domain.Scope) ([]domain.CartLineItem, error) {
	return nil, ErrCacheMiss
}

func (Nop) Set(context.Context, domain.Scope, []domain.CartLineItem) error { return nil }

func (Nop) Delete(context.Context, domain.Scope) error { return nil }
