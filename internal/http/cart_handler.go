package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/cartflow/internal/domain"
	"github.com/fjod/cartflow/internal/result"
	"github.com/go-chi/chi/v5"
)

// CartAPI is the cart side of the API. It is satisfied by
// *service.CartService.
type CartAPI interface {
	Snapshot(ctx context.Context, scope domain.Scope) (domain.CartSnapshot, error)
	Subscribe(ctx context.Context, scope domain.Scope) <-chan result.Result[domain.CartSnapshot]
	AddItem(ctx context.Context, scope domain.Scope, productID int64, quantity int, note string) (domain.CartSnapshot, error)
	Increase(ctx context.Context, scope domain.Scope, productID int64) (domain.CartSnapshot, error)
	Decrease(ctx context.Context, scope domain.Scope, productID int64) (domain.CartSnapshot, error)
	Remove(ctx context.Context, scope domain.Scope, productID int64) (domain.CartSnapshot, error)
	SetNote(ctx context.Context, scope domain.Scope, productID int64, note string) (domain.CartSnapshot, error)
}

type CartHandler struct {
	cart    CartAPI
	timeout time.Duration
}

func NewCartHandler(cart CartAPI, timeout time.Duration) *CartHandler {
	return &CartHandler{
		cart:    cart,
		timeout: timeout,
	}
}

// AddItemRequestDTO carries no price: name and unit price are looked up in
// the product catalog.
type AddItemRequestDTO struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Note      string `json:"note"`
}

type SetNoteRequestDTO struct {
	Note string `json:"note"`
}

type CartResponseDTO struct {
	Scope      domain.Scope          `json:"scope"`
	Items      []domain.CartLineItem `json:"items"`
	TotalPrice int64                 `json:"total_price"`
}

const maxNoteLength = 500

func toCartResponse(snapshot domain.CartSnapshot) CartResponseDTO {
	items := snapshot.Items
	if items == nil {
		items = []domain.CartLineItem{}
	}
	return CartResponseDTO{
		Scope:      snapshot.Scope,
		Items:      items,
		TotalPrice: snapshot.TotalPrice(),
	}
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	scope, ok := scopeFromRequest(w, r)
	if !ok {
		return
	}

	snapshot, err := h.cart.Snapshot(ctx, scope)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(snapshot))
}

// GET /api/v1/cart/stream
func (h *CartHandler) StreamCart(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(w, r)
	if !ok {
		return
	}
	streamResults(w, r, h.cart.Subscribe(r.Context(), scope))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	scope, ok := scopeFromRequest(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}
	if len(req.Note) > maxNoteLength {
		respondError(w, http.StatusBadRequest, "invalid_note", "note is too long")
		return
	}

	snapshot, err := h.cart.AddItem(ctx, scope, req.ProductID, req.Quantity, req.Note)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toCartResponse(snapshot))
}

// POST /api/v1/cart/items/{product_id}/increase
func (h *CartHandler) Increase(w http.ResponseWriter, r *http.Request) {
	h.mutateItem(w, r, h.cart.Increase)
}

// POST /api/v1/cart/items/{product_id}/decrease
func (h *CartHandler) Decrease(w http.ResponseWriter, r *http.Request) {
	h.mutateItem(w, r, h.cart.Decrease)
}

// DELETE /api/v1/cart/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	h.mutateItem(w, r, h.cart.Remove)
}

// PUT /api/v1/cart/items/{product_id}/note
func (h *CartHandler) SetNote(w http.ResponseWriter, r *http.Request) {
	var req SetNoteRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if len(req.Note) > maxNoteLength {
		respondError(w, http.StatusBadRequest, "invalid_note", "note is too long")
		return
	}

	h.mutateItem(w, r, func(ctx context.Context, scope domain.Scope, productID int64) (domain.CartSnapshot, error) {
		return h.cart.SetNote(ctx, scope, productID, req.Note)
	})
}

func (h *CartHandler) mutateItem(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, scope domain.Scope, productID int64) (domain.CartSnapshot, error),
) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	scope, ok := scopeFromRequest(w, r)
	if !ok {
		return
	}

	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	snapshot, err := op(ctx, scope, productID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(snapshot))
}
