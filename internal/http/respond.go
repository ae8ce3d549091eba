package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/cartflow/internal/checkout"
	"github.com/fjod/cartflow/internal/domain"
	"github.com/fjod/cartflow/internal/identity"
	"github.com/fjod/cartflow/internal/service"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleError maps an error kind to a status code. The cause text is passed
// through so clients can show it.
func handleError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	respondError(w, status, code, err.Error())
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrAuth):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, service.ErrCheckoutInProgress):
		return http.StatusConflict, "checkout_in_progress"
	case errors.Is(err, service.ErrItemNotFound), errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrInvalidItem):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, checkout.ErrEmptyCart):
		return http.StatusUnprocessableEntity, "empty_cart"
	case errors.Is(err, domain.ErrStorage):
		return http.StatusServiceUnavailable, "storage_unavailable"
	case errors.Is(err, domain.ErrCatalog):
		return http.StatusBadGateway, "catalog_error"
	case errors.Is(err, domain.ErrOrder):
		return http.StatusBadGateway, "order_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// scopeFromRequest returns the cart scope of the authenticated user.
func scopeFromRequest(w http.ResponseWriter, r *http.Request) (domain.Scope, bool) {
	user, ok := identity.UserFromContext(r.Context())
	if !ok || user.ID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return "", false
	}
	return user.Scope(), true
}
