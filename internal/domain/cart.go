package domain

import "time"

// Scope is the identity boundary a cart is stored and read under.
type Scope string

func (s Scope) String() string {
	return string(s)
}

// CartLineItem is one product row in a cart. ProductID is the identity key.
type CartLineItem struct {
	ProductID int64     `bson:"product_id" json:"product_id"`
	Name      string    `bson:"name" json:"name"`
	Quantity  int       `bson:"quantity" json:"quantity"`
	UnitPrice int64     `bson:"unit_price" json:"unit_price"` // minor currency units
	Note      string    `bson:"note,omitempty" json:"note,omitempty"`
	AddedAt   time.Time `bson:"added_at" json:"added_at"`
}

// Subtotal panics on int64 overflow.
func (i CartLineItem) Subtotal() int64 {
	return MulMinor(int64(i.Quantity), i.UnitPrice)
}

// CartSnapshot is a read of a cart at one point in time. The total is
// recomputed on every call and never stored.
type CartSnapshot struct {
	Scope Scope          `json:"scope"`
	Items []CartLineItem `json:"items"`
}

func (s CartSnapshot) TotalPrice() int64 {
	var total int64
	for _, item := range s.Items {
		total = AddMinor(total, item.Subtotal())
	}
	return total
}

// IsEmpty reports whether the snapshot has no rows. A row with quantity 0
// still counts as present.
func (s CartSnapshot) IsEmpty() bool {
	return len(s.Items) == 0
}

// Find returns the index of the row keyed by productID, or -1.
func (s CartSnapshot) Find(productID int64) int {
	for i, item := range s.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// Product is the catalog entry a cart line takes its name and price from.
type Product struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"` // minor currency units
}
