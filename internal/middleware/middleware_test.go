package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/lendflow/backend/internal/config"
)

func echoOperator() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(OperatorID(r.Context())))
	})
}

func TestAuthAcceptsValidToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-token"), bcrypt.MinCost)
	require.NoError(t, err)

	auth := NewAuth([]config.APIKeyConfig{{OperatorID: "ops-priya", KeyHash: string(hash)}})
	srv := auth.Middleware(echoOperator())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cases", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops-priya", rec.Body.String())
}

func TestAuthRejectsBadToken(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("secret-token"), bcrypt.MinCost)
	auth := NewAuth([]config.APIKeyConfig{{OperatorID: "ops-priya", KeyHash: string(hash)}})
	srv := auth.Middleware(echoOperator())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cases", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("secret-token"), bcrypt.MinCost)
	auth := NewAuth([]config.APIKeyConfig{{OperatorID: "ops-priya", KeyHash: string(hash)}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cases", nil)
	rec := httptest.NewRecorder()
	auth.Middleware(echoOperator()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthOpenWithoutKeys(t *testing.T) {
	auth := NewAuth(nil)
	assert.False(t, auth.Enabled())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cases", nil)
	rec := httptest.NewRecorder()
	auth.Middleware(echoOperator()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("op-1"), "request %d should pass", i+1)
	}
	// Burst headroom is 2x the per-minute budget.
	for i := 3; i < 6; i++ {
		assert.False(t, rl.Allow("op-1"))
	}
	assert.True(t, rl.Allow("op-2"), "other keys have their own window")
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	rl := NewRateLimiter(1)
	srv := RateLimitMiddleware(rl, echoOperator())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/copilot/ask", nil)
	req = req.WithContext(WithOperator(req.Context(), "op-1"))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}
