package domain

import (
	"time"

	"github.com/google/uuid"
)

// Well-known breakdown names.
const (
	BreakdownSubtotal   = "subtotal"
	BreakdownShipping   = "shipping"
	BreakdownServiceFee = "service_fee"
)

// PriceBreakdownItem is one named component of a final price. Amounts may be
// negative for discounts.
type PriceBreakdownItem struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

// CheckoutData is a priced cart. TotalPrice always equals the sum of the
// breakdown because it is derived from it.
type CheckoutData struct {
	Cart      CartSnapshot         `json:"cart"`
	Breakdown []PriceBreakdownItem `json:"breakdown"`
}

func (c CheckoutData) TotalPrice() int64 {
	var total int64
	for _, item := range c.Breakdown {
		total = AddMinor(total, item.Amount)
	}
	return total
}

func (c CheckoutData) IsEmpty() bool {
	return c.Cart.IsEmpty()
}

// EmptyCheckout is what an empty cart prices to.
func EmptyCheckout(scope Scope) CheckoutData {
	return CheckoutData{
		Cart:      CartSnapshot{Scope: scope, Items: []CartLineItem{}},
		Breakdown: []PriceBreakdownItem{},
	}
}

type UserIdentity struct {
	ID    string
	Email string
	Tier  string
}

func (u UserIdentity) Scope() Scope {
	return Scope(u.ID)
}

type OrderConfirmation struct {
	OrderID    uuid.UUID `json:"order_id"`
	CheckoutID uuid.UUID `json:"checkout_id"`
	PlacedAt   time.Time `json:"placed_at"`
}

// Receipt is the outcome of a commit. Warning holds a failure that happened
// after the order was accepted (clearing the cart); it never means the order
// failed.
type Receipt struct {
	Checkout CheckoutData       `json:"checkout"`
	Order    *OrderConfirmation `json:"order,omitempty"`
	Warning  error              `json:"-"`
}
