package auth

import (
	"crypto/hmac"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Traviscatt/picknroll-sub000/internal/logger"
)

// AdminKeyHeader carries the operator key on admin requests
const AdminKeyHeader = "X-Admin-Key"

var (
	ErrAdminDisabled   = errors.New("admin routes are disabled")
	ErrInvalidAdminKey = errors.New("invalid admin key")
)

// AdminGuard protects operator routes with a shared key
type AdminGuard struct {
	key []byte
}

// NewAdminGuard creates a guard for key. An empty key disables every
// guarded route.
func NewAdminGuard(key string) *AdminGuard {
	return &AdminGuard{key: []byte(key)}
}

// Enabled reports whether a key is configured
func (g *AdminGuard) Enabled() bool {
	return len(g.key) > 0
}

// Validate checks a presented key in constant time
func (g *AdminGuard) Validate(presented string) error {
	if !g.Enabled() {
		return ErrAdminDisabled
	}
	if !hmac.Equal([]byte(presented), g.key) {
		return ErrInvalidAdminKey
	}
	return nil
}

// Middleware rejects requests without a valid admin key
func (g *AdminGuard) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := g.Validate(r.Header.Get(AdminKeyHeader))
		switch {
		case err == nil:
			next(w, r)
			return
		case errors.Is(err, ErrAdminDisabled):
			deny(w, http.StatusForbidden, err)
		default:
			logger.Warn("Rejected admin request", "path", r.URL.Path, "remote", r.RemoteAddr)
			deny(w, http.StatusUnauthorized, err)
		}
	}
}

func deny(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(map[string]string{"error": err.Error()}); encErr != nil {
		logger.Error("Failed to encode JSON response", "error", encErr)
	}
}
