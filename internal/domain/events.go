package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderPlacedEvent is emitted once an order has been accepted.
type OrderPlacedEvent struct {
	EventID    uuid.UUID            `json:"event_id"`
	CheckoutID uuid.UUID            `json:"checkout_id"`
	OrderID    uuid.UUID            `json:"order_id"`
	UserID     string               `json:"user_id"`
	Items      []CartLineItem       `json:"items"`
	Breakdown  []PriceBreakdownItem `json:"breakdown"`
	Total      int64                `json:"total"`
	PlacedAt   time.Time            `json:"placed_at"`
}

func NewOrderPlacedEvent(user UserIdentity, data CheckoutData, order OrderConfirmation) OrderPlacedEvent {
	return OrderPlacedEvent{
		EventID:    uuid.New(),
		CheckoutID: order.CheckoutID,
		OrderID:    order.OrderID,
		UserID:     user.ID,
		Items:      data.Cart.Items,
		Breakdown:  data.Breakdown,
		Total:      data.TotalPrice(),
		PlacedAt:   order.PlacedAt,
	}
}
