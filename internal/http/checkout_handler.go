package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/cartflow/internal/domain"
	"github.com/fjod/cartflow/internal/result"
)

// CheckoutAPI is satisfied by *checkout.Orchestrator.
type CheckoutAPI interface {
	DeriveCheckoutData(ctx context.Context, scope domain.Scope) result.Result[domain.CheckoutData]
	Subscribe(ctx context.Context, scope domain.Scope) <-chan result.Result[domain.CheckoutData]
	Checkout(ctx context.Context, scope domain.Scope) (*domain.Receipt, error)
	SubscribeCommit(ctx context.Context, scope domain.Scope) <-chan result.Result[domain.Receipt]
}

type CheckoutHandler struct {
	checkout CheckoutAPI
	timeout  time.Duration
}

func NewCheckoutHandler(checkout CheckoutAPI, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		timeout:  timeout,
	}
}

type CheckoutDataDTO struct {
	Items      []domain.CartLineItem       `json:"items"`
	Breakdown  []domain.PriceBreakdownItem `json:"breakdown"`
	TotalPrice int64                       `json:"total_price"`
}

// ReceiptDTO has no order fields when it describes a failed commit.
type ReceiptDTO struct {
	OrderID    string          `json:"order_id,omitempty"`
	CheckoutID string          `json:"checkout_id,omitempty"`
	PlacedAt   *time.Time      `json:"placed_at,omitempty"`
	Checkout   CheckoutDataDTO `json:"checkout"`
	Warning    string          `json:"warning,omitempty"`
}

func toCheckoutData(data domain.CheckoutData) CheckoutDataDTO {
	items := data.Cart.Items
	if items == nil {
		items = []domain.CartLineItem{}
	}
	breakdown := data.Breakdown
	if breakdown == nil {
		breakdown = []domain.PriceBreakdownItem{}
	}
	return CheckoutDataDTO{
		Items:      items,
		Breakdown:  breakdown,
		TotalPrice: data.TotalPrice(),
	}
}

func toReceipt(receipt domain.Receipt) ReceiptDTO {
	resp := ReceiptDTO{Checkout: toCheckoutData(receipt.Checkout)}
	if receipt.Order != nil {
		placedAt := receipt.Order.PlacedAt
		resp.OrderID = receipt.Order.OrderID.String()
		resp.CheckoutID = receipt.Order.CheckoutID.String()
		resp.PlacedAt = &placedAt
	}
	if receipt.Warning != nil {
		resp.Warning = receipt.Warning.Error()
	}
	return resp
}

// GET /api/v1/checkout
func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	scope, ok := scopeFromRequest(w, r)
	if !ok {
		return
	}

	res := h.checkout.DeriveCheckoutData(ctx, scope)
	result.Match(res,
		func() struct{} {
			respondError(w, http.StatusServiceUnavailable, "loading", "checkout data not ready")
			return struct{}{}
		},
		func(data domain.CheckoutData) struct{} {
			respondJSON(w, http.StatusOK, toCheckoutData(data))
			return struct{}{}
		},
		func(*domain.CheckoutData) struct{} {
			respondJSON(w, http.StatusOK, toCheckoutData(domain.EmptyCheckout(scope)))
			return struct{}{}
		},
		func(err error, _ *domain.CheckoutData) struct{} {
			handleError(w, err)
			return struct{}{}
		},
	)
}

// GET /api/v1/checkout/stream
func (h *CheckoutHandler) StreamCheckout(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(w, r)
	if !ok {
		return
	}
	streamResults(w, r, h.checkout.Subscribe(r.Context(), scope))
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	scope, ok := scopeFromRequest(w, r)
	if !ok {
		return
	}

	receipt, err := h.checkout.Checkout(ctx, scope)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, toReceipt(*receipt))
}

// GET /api/v1/checkout/commits/stream
func (h *CheckoutHandler) StreamCommits(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(w, r)
	if !ok {
		return
	}

	receipts := h.checkout.SubscribeCommit(r.Context(), scope)
	out := make(chan result.Result[ReceiptDTO])
	go func() {
		defer close(out)
		for res := range receipts {
			select {
			case out <- result.Map(res, toReceipt):
			case <-r.Context().Done():
				return
			}
		}
	}()
	streamResults(w, r, out)
}
