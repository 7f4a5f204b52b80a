package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/fixsight/internal/api/response"
	"github.com/kiranshivaraju/fixsight/internal/session"
)

const (
	defaultRequestsPerMinute = 120
	rateWindow               = 60 * time.Second
)

// RateLimit throttles clients with a fixed one-minute counter window in
// the session store. Frame uploads count against their own bucket so a
// camera streaming at full tilt cannot starve solution or guide calls
// from the same address.
type RateLimit struct {
	store          session.Store
	requestsPerMin int
}

// NewRateLimit creates the rate limit middleware.
func NewRateLimit(store session.Store, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{store: store, requestsPerMin: requestsPerMin}
}

// Limit counts the request against its client+class bucket and rejects
// once the per-minute budget is spent.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bucket := clientIP(r) + ":" + pathClass(r.URL.Path)
		count, err := rl.store.IncrWithExpiry(r.Context(), session.RateLimitKey(bucket), rateWindow)
		if err != nil {
			// On store error, allow the request (fail open).
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requestsPerMin - int(count)
		if remaining < 0 {
			remaining = 0
		}
		resetTime := time.Now().Add(rateWindow).Unix()

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime))

		if count > int64(rl.requestsPerMin) {
			w.Header().Set("Retry-After", "60")
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the addresses a reverse proxy forwards, falling back
// to the socket peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func pathClass(path string) string {
	if strings.HasSuffix(path, "/frames") {
		return "frames"
	}
	return "general"
}
