package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fjod/cartflow/internal/catalog"
	"github.com/fjod/cartflow/internal/checkout"
	"github.com/fjod/cartflow/internal/domain"
	"github.com/fjod/cartflow/internal/identity"
	"github.com/fjod/cartflow/internal/repository"
	"github.com/fjod/cartflow/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flatPricing struct {
	shipping int64
}

func (p flatPricing) PriceRules(_ context.Context, _ domain.UserIdentity, cart domain.CartSnapshot) ([]domain.PriceBreakdownItem, error) {
	return []domain.PriceBreakdownItem{
		{Name: domain.BreakdownSubtotal, Amount: cart.TotalPrice()},
		{Name: domain.BreakdownShipping, Amount: p.shipping},
	}, nil
}

type stubPlacer struct {
	err error
}

func (p *stubPlacer) SubmitOrder(_ context.Context, checkoutID uuid.UUID, _ domain.CheckoutData) (domain.OrderConfirmation, error) {
	if p.err != nil {
		return domain.OrderConfirmation{}, p.err
	}
	return domain.OrderConfirmation{OrderID: uuid.New(), CheckoutID: checkoutID, PlacedAt: time.Now()}, nil
}

type testServer struct {
	handler http.Handler
	token   string
	placer  *stubPlacer
	store   *repository.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := repository.NewMemoryStore(0)
	t.Cleanup(func() { store.Close() })

	products, err := catalog.NewRepository(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { products.Close() })
	require.NoError(t, products.RunMigrations())

	cart := service.NewCartService(store, nil, products, nil)
	placer := &stubPlacer{}
	orchestrator := checkout.NewOrchestrator(cart, identity.ContextProvider{}, flatPricing{shipping: 5000}, placer, checkout.DefaultOptions(), nil)

	verifier := identity.NewVerifier([]byte("test-secret"), "cartflow")
	token, err := verifier.Issue(domain.UserIdentity{ID: "user-1", Tier: "standard"}, time.Hour)
	require.NoError(t, err)

	return &testServer{
		handler: NewRouter(RouterConfig{
			Cart:     cart,
			Checkout: orchestrator,
			Verifier: verifier,
		}),
		token:  token,
		placer: placer,
		store:  store,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+s.token)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func (s *testServer) addSampleItems(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 1, Quantity: 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 2, Quantity: 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()

	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAPI_RequiresToken(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()

	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCart_Mutations(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	empty := decode[CartResponseDTO](t, rec)
	assert.Empty(t, empty.Items)
	assert.Equal(t, int64(0), empty.TotalPrice)

	s.addSampleItems(t)

	rec = s.do(t, http.MethodPost, "/api/v1/cart/items/2/increase", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(80000), decode[CartResponseDTO](t, rec).TotalPrice)

	rec = s.do(t, http.MethodPut, "/api/v1/cart/items/1/note", SetNoteRequestDTO{Note: "extra spicy"})
	require.Equal(t, http.StatusOK, rec.Code)
	noted := decode[CartResponseDTO](t, rec)
	assert.Equal(t, "extra spicy", noted.Items[0].Note)
	assert.Equal(t, int64(80000), noted.TotalPrice)

	rec = s.do(t, http.MethodPost, "/api/v1/cart/items/1/decrease", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(65000), decode[CartResponseDTO](t, rec).TotalPrice)

	rec = s.do(t, http.MethodDelete, "/api/v1/cart/items/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	remaining := decode[CartResponseDTO](t, rec)
	require.Len(t, remaining.Items, 1)
	assert.Equal(t, int64(15000), remaining.TotalPrice)
}

func TestCart_BadRequests(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"unknown item", http.MethodPost, "/api/v1/cart/items/99/increase", nil, http.StatusNotFound},
		{"bad product id", http.MethodPost, "/api/v1/cart/items/abc/increase", nil, http.StatusBadRequest},
		{"zero quantity", http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 1, Quantity: 0}, http.StatusBadRequest},
		{"unknown product", http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 999, Quantity: 1}, http.StatusNotFound},
		{"long note", http.MethodPut, "/api/v1/cart/items/1/note", SetNoteRequestDTO{Note: strings.Repeat("x", maxNoteLength+1)}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestCart_AddItemUsesCatalogPrice(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/cart/items",
		map[string]any{"product_id": 1, "quantity": 1, "name": "free", "unit_price": 0})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cart := decode[CartResponseDTO](t, rec)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "Nasi Goreng", cart.Items[0].Name)
	assert.Equal(t, int64(15000), cart.Items[0].UnitPrice)
	assert.Equal(t, int64(15000), cart.TotalPrice)
}

func TestCheckout_Flow(t *testing.T) {
	s := newTestServer(t)
	s.addSampleItems(t)

	rec := s.do(t, http.MethodGet, "/api/v1/checkout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode[CheckoutDataDTO](t, rec)
	assert.Equal(t, int64(60000), data.TotalPrice)
	assert.Len(t, data.Breakdown, 2)

	rec = s.do(t, http.MethodPost, "/api/v1/checkout", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	receipt := decode[ReceiptDTO](t, rec)
	assert.NotEmpty(t, receipt.OrderID)
	assert.Empty(t, receipt.Warning)
	assert.Equal(t, int64(60000), receipt.Checkout.TotalPrice)

	rec = s.do(t, http.MethodGet, "/api/v1/cart", nil)
	assert.Empty(t, decode[CartResponseDTO](t, rec).Items)
}

func TestCheckout_EmptyCart(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/checkout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), decode[CheckoutDataDTO](t, rec).TotalPrice)

	rec = s.do(t, http.MethodPost, "/api/v1/checkout", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCheckout_OrderRejected(t *testing.T) {
	s := newTestServer(t)
	s.addSampleItems(t)
	s.placer.err = errors.New("payment declined")

	rec := s.do(t, http.MethodPost, "/api/v1/checkout", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "order_error", resp.Code)
	assert.Contains(t, resp.Error, "payment declined")

	rec = s.do(t, http.MethodGet, "/api/v1/cart", nil)
	assert.Len(t, decode[CartResponseDTO](t, rec).Items, 2)
}

type sseEvent struct {
	name string
	data string
}

// openStream connects to an event stream of s and returns its events.
func (s *testServer) openStream(t *testing.T, path string) func() sseEvent {
	t.Helper()
	srv := httptest.NewServer(s.handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path+"?access_token="+s.token, nil)
	require.NoError(t, err)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan sseEvent, 16)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		var current sseEvent
		for scanner.Scan() {
			line := scanner.Text()
			if name, ok := strings.CutPrefix(line, "event: "); ok {
				current.name = name
			} else if data, ok := strings.CutPrefix(line, "data: "); ok {
				current.data = data
			} else if line == "" && current.name != "" {
				events <- current
				current = sseEvent{}
			}
		}
	}()

	return func() sseEvent {
		t.Helper()
		select {
		case e := <-events:
			return e
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
			return sseEvent{}
		}
	}
}

func TestCartStream(t *testing.T) {
	s := newTestServer(t)
	next := s.openStream(t, "/api/v1/cart/stream")

	assert.Equal(t, "loading", next().name)
	assert.Equal(t, "empty", next().name)

	rec := s.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 1, Quantity: 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "success", next().name)
}

type receiptEvent struct {
	State   string      `json:"state"`
	Payload *ReceiptDTO `json:"payload"`
	Error   string      `json:"error"`
}

func TestCommitStream(t *testing.T) {
	s := newTestServer(t)
	s.addSampleItems(t)
	next := s.openStream(t, "/api/v1/checkout/commits/stream")

	s.placer.err = errors.New("payment declined")
	rec := s.do(t, http.MethodPost, "/api/v1/checkout", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	assert.Equal(t, "loading", next().name)
	failed := next()
	require.Equal(t, "error", failed.name)
	var declined receiptEvent
	require.NoError(t, json.Unmarshal([]byte(failed.data), &declined))
	assert.Contains(t, declined.Error, "payment declined")
	require.NotNil(t, declined.Payload)
	assert.Empty(t, declined.Payload.OrderID)
	assert.Equal(t, int64(60000), declined.Payload.Checkout.TotalPrice)

	s.placer.err = nil
	rec = s.do(t, http.MethodPost, "/api/v1/checkout", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	placed := decode[ReceiptDTO](t, rec)

	assert.Equal(t, "loading", next().name)
	accepted := next()
	require.Equal(t, "success", accepted.name)
	var acceptedEvent receiptEvent
	require.NoError(t, json.Unmarshal([]byte(accepted.data), &acceptedEvent))
	require.NotNil(t, acceptedEvent.Payload)
	assert.Equal(t, placed.OrderID, acceptedEvent.Payload.OrderID)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{domain.Wrap(domain.ErrAuth, errors.New("x")), http.StatusUnauthorized},
		{domain.Wrap(domain.ErrStorage, errors.New("x")), http.StatusServiceUnavailable},
		{domain.Wrap(domain.ErrCatalog, errors.New("x")), http.StatusBadGateway},
		{domain.Wrap(domain.ErrOrder, errors.New("x")), http.StatusBadGateway},
		{service.ErrCheckoutInProgress, http.StatusConflict},
		{fmt.Errorf("%w: product 9", service.ErrItemNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: 9", domain.ErrProductNotFound), http.StatusNotFound},
		{checkout.ErrEmptyCart, http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := statusFor(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}
