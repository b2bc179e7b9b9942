package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/robalyx/rolesync/internal/setup/config"
	"github.com/robalyx/rolesync/pkg/utils"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	errRateLimit     = "rate limit exceeded"
	headerRetryAfter = "Retry-After"

	limiterTTL      = 10 * time.Minute
	maxTrackedAddrs = 10000
)

// Middleware limits requests per client address.
type Middleware struct {
	mu       sync.Mutex
	limiters *utils.TTLMap[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
	logger   *zap.Logger
}

// New creates a new rate limiting middleware.
func New(cfg *config.API, logger *zap.Logger) *Middleware {
	return &Middleware{
		limiters: utils.NewBoundedTTLMap[string, *rate.Limiter](limiterTTL, maxTrackedAddrs),
		limit:    rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.BurstSize,
		logger:   logger.Named("api_ratelimit"),
	}
}

// AsRESTMiddleware returns a bunrouter middleware handler for rate limiting.
func (m *Middleware) AsRESTMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		clientAddr := remoteHost(req.RemoteAddr)

		reservation := m.getLimiter(clientAddr).Reserve()
		if !reservation.OK() {
			http.Error(w, errRateLimit, http.StatusTooManyRequests)
			return nil
		}

		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()

			m.logger.Debug("Rate limit exceeded",
				zap.String("addr", clientAddr),
				zap.Duration("delay", delay))

			w.Header().Set(headerRetryAfter, strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			http.Error(w, errRateLimit, http.StatusTooManyRequests)

			return nil
		}

		return next(w, req)
	}
}

// Close stops the limiter cleanup.
func (m *Middleware) Close() {
	m.limiters.Close()
}

func (m *Middleware) getLimiter(clientAddr string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limiter, ok := m.limiters.Get(clientAddr); ok {
		return limiter
	}

	limiter := rate.NewLimiter(m.limit, m.burst)
	m.limiters.Set(clientAddr, limiter)

	return limiter
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}

	return host
}
