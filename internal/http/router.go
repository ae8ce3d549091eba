package http

import (
	"net/http"
	"time"

	"github.com/fjod/cartflow/internal/identity"
	"github.com/fjod/cartflow/internal/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Cart               CartAPI
	Checkout           CheckoutAPI
	Verifier           *identity.Verifier
	Logger             *zap.Logger
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = 1 << 20 // 1MB
	}

	cartHandler := NewCartHandler(cfg.Cart, cfg.RequestTimeout)
	checkoutHandler := NewCheckoutHandler(cfg.Checkout, cfg.RequestTimeout)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(cfg.Logger))
	r.Use(observability.Recoverer(cfg.Logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(identity.Middleware(cfg.Verifier, cfg.Logger))

		// streams stay open, so they get no request timeout
		r.Get("/cart/stream", cartHandler.StreamCart)
		r.Get("/checkout/stream", checkoutHandler.StreamCheckout)
		r.Get("/checkout/commits/stream", checkoutHandler.StreamCommits)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
			r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))

			r.Get("/cart", cartHandler.GetCart)
			r.Post("/cart/items", cartHandler.AddItem)
			r.Post("/cart/items/{product_id}/increase", cartHandler.Increase)
			r.Post("/cart/items/{product_id}/decrease", cartHandler.Decrease)
			r.Put("/cart/items/{product_id}/note", cartHandler.SetNote)
			r.Delete("/cart/items/{product_id}", cartHandler.RemoveItem)

			r.Get("/checkout", checkoutHandler.GetCheckout)
			r.Post("/checkout", checkoutHandler.Checkout)
		})
	})

	return otelhttp.NewHandler(r, "cartflow",
		otelhttp.WithFilter(func(r *http.Request) bool { return r.URL.Path != "/health" }),
	)
}
