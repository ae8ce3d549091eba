package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fjod/cartflow/internal/domain"
	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUser = domain.UserIdentity{ID: "user-42", Email: "u42@example.com", Tier: "premium"}

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier([]byte("secret"), "cartflow")

	token, err := v.Issue(testUser, time.Hour)
	require.NoError(t, err)

	user, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, testUser, user)
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier([]byte("secret"), "cartflow")

	expired, err := v.Issue(testUser, -time.Minute)
	require.NoError(t, err)

	otherSecret, err := NewVerifier([]byte("other"), "cartflow").Issue(testUser, time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewVerifier([]byte("secret"), "someone-else").Issue(testUser, time.Hour)
	require.NoError(t, err)

	noSubject, err := v.Issue(domain.UserIdentity{}, time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-42", Issuer: "cartflow"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"expired":      expired,
		"other secret": otherSecret,
		"other issuer": otherIssuer,
		"no subject":   noSubject,
		"alg none":     none,
		"garbage":      "not.a.token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			assert.ErrorIs(t, err, ErrTokenInvalid)
		})
	}

	_, err = v.Verify("  ")
	assert.ErrorIs(t, err, ErrTokenMissing)
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier([]byte("secret"), "cartflow")
	token, err := v.Issue(testUser, time.Hour)
	require.NoError(t, err)

	var got domain.UserIdentity
	handler := Middleware(v, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, err = ContextProvider{}.CurrentUser(r.Context())
		require.NoError(t, err)
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, testUser, got)
	})

	t.Run("query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart/stream?access_token="+token, nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"token missing"}`, rec.Body.String())
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	})
}

func TestContextProvider_NoUser(t *testing.T) {
	_, err := ContextProvider{}.CurrentUser(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuth)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
