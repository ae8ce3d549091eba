package domain

import (
	"fmt"
	"math"
)

// AddMinor adds two minor-unit amounts and panics on overflow. Totals that
// leave int64 are a caller bug, not a recoverable condition.
func AddMinor(a, b int64) int64 {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		panic(fmt.Sprintf("minor unit overflow: %d + %d", a, b))
	}
	return a + b
}

// MulMinor multiplies a quantity by a minor-unit price and panics on overflow.
func MulMinor(quantity, unitPrice int64) int64 {
	if quantity == 0 || unitPrice == 0 {
		return 0
	}
	product := quantity * unitPrice
	if product/quantity != unitPrice || (quantity == -1 && unitPrice == math.MinInt64) {
		panic(fmt.Sprintf("minor unit overflow: %d * %d", quantity, unitPrice))
	}
	return product
}
