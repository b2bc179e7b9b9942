package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

const (
	errUnauthorized = "missing or invalid admin key"
	bearerPrefix    = "Bearer "
)

// Middleware requires a bearer admin key on every request.
type Middleware struct {
	key    []byte
	open   bool
	logger *zap.Logger
}

// New creates a new auth middleware. An empty key leaves the API open outside
// production and locks it in production.
func New(adminKey string, production bool, logger *zap.Logger) *Middleware {
	m := &Middleware{
		key:    []byte(adminKey),
		open:   adminKey == "" && !production,
		logger: logger.Named("api_auth"),
	}

	if m.open {
		m.logger.Warn("Admin API has no key configured, requests are not authenticated")
	}

	return m
}

// AsRESTMiddleware returns a bunrouter middleware handler for admin key checks.
func (m *Middleware) AsRESTMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		if m.open || m.authorized(req.Header.Get("Authorization")) {
			return next(w, req)
		}

		m.logger.Debug("Rejected unauthenticated request",
			zap.String("path", req.URL.Path),
			zap.String("addr", req.RemoteAddr))

		w.Header().Set("WWW-Authenticate", `Bearer realm="rolesync"`)
		http.Error(w, errUnauthorized, http.StatusUnauthorized)

		return nil
	}
}

func (m *Middleware) authorized(header string) bool {
	if len(m.key) == 0 {
		return false
	}

	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), m.key) == 1
}
