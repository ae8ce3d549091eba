package repository

import (
	"context"
	"errors"

	"github.com/fjod/cartflow/internal/domain"
)

var ErrCartNotFound = errors.New("cart not found")

// CartRepository stores cart rows per scope. Every call is isolated to the
// scope it is given; there is no ambient "current cart".
type CartRepository interface {
	// ReadCart returns ErrCartNotFound when the scope has never been written.
	ReadCart(ctx context.Context, scope domain.Scope) ([]domain.CartLineItem, error)
	// WriteCart replaces all rows of scope in one operation.
	WriteCart(ctx context.Context, scope domain.Scope, items []domain.CartLineItem) error
	// DeleteCart returns ErrCartNotFound when there was nothing to delete.
	DeleteCart(ctx context.Context, scope domain.Scope) error
}
