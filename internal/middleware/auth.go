// Package middleware holds the HTTP cross-cutting concerns: bearer
// auth, per-operator rate limiting and request metrics.
package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/lendflow/backend/internal/config"
)

type contextKey string

const operatorKey contextKey = "operator_id"

// OperatorID returns the authenticated operator for a request context,
// or "" when the request was not authenticated.
func OperatorID(ctx context.Context) string {
	if v, ok := ctx.Value(operatorKey).(string); ok {
		return v
	}
	return ""
}

// WithOperator injects an operator identity, used by tests.
func WithOperator(ctx context.Context, operatorID string) context.Context {
	return context.WithValue(ctx, operatorKey, operatorID)
}

// Auth validates bearer tokens against the configured bcrypt key hashes
// and injects the operator identity into the request context.
type Auth struct {
	keys   []config.APIKeyConfig
	logger *log.Logger
}

func NewAuth(keys []config.APIKeyConfig) *Auth {
	return &Auth{
		keys:   keys,
		logger: log.New(log.Writer(), "[AUTH] ", log.LstdFlags),
	}
}

// Enabled reports whether any API keys are configured. With none, auth
// is open and every request runs as the anonymous operator. Intended
// for local development only.
func (a *Auth) Enabled() bool {
	return len(a.keys) > 0
}

// Middleware enforces bearer auth on every request it wraps.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), "anonymous")))
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			unauthorized(w, "missing bearer token")
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		operator := a.lookup(token)
		if operator == "" {
			a.logger.Printf("rejected token for %s %s", r.Method, r.URL.Path)
			unauthorized(w, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), operator)))
	})
}

func (a *Auth) lookup(token string) string {
	for _, k := range a.keys {
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(token)) == nil {
			return k.OperatorID
		}
	}
	return ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"` + msg + `"}}`))
}
