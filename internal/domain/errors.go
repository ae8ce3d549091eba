package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by collaborators. Providers wrap their cause with one
// of these so callers can branch with errors.Is while the cause text stays
// intact for display.
var (
	ErrStorage = errors.New("storage error")
	ErrAuth    = errors.New("auth error")
	ErrCatalog = errors.New("catalog error")
	ErrOrder   = errors.New("order error")
)

// ErrProductNotFound is returned by product lookups for unknown or inactive
// products.
var ErrProductNotFound = errors.New("product not found")

// Wrap tags err with kind unless it already carries it.
func Wrap(kind, err error) error {
	if err == nil || errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
