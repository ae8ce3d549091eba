package aggregator

import (
	"github.com/fjod/cartflow/internal/domain"
	"github.com/fjod/cartflow/internal/result"
)

// Aggregate builds the snapshot for items. It does no I/O and keeps rows with
// quantity 0; dropping those is the mutation service's job. The returned
// snapshot owns a copy of items.
func Aggregate(scope domain.Scope, items []domain.CartLineItem) domain.CartSnapshot {
	copied := make([]domain.CartLineItem, len(items))
	copy(copied, items)

	snapshot := domain.CartSnapshot{Scope: scope, Items: copied}
	// force the overflow check now rather than on first display
	_ = snapshot.TotalPrice()
	return snapshot
}

// Classify wraps snapshot as Success, or Empty when it has no rows. Empty
// still carries the snapshot so observers can show the zero total.
func Classify(snapshot domain.CartSnapshot) result.Result[domain.CartSnapshot] {
	if snapshot.IsEmpty() {
		return result.Empty(snapshot)
	}
	return result.Success(snapshot)
}
