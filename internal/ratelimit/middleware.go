package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/lako-services/lako-web/internal/platform/httpx"
)

// UnknownClient is the shared bucket used when a request carries no client
// address signal.
const UnknownClient = "unknown"

// ClientKey derives the limiter key for r: the edge proxy's client IP header,
// then the first X-Forwarded-For hop, then UnknownClient.
func ClientKey(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return UnknownClient
}

// Middleware rejects requests with 429 once the client's window is exhausted.
func (l *FixedWindow) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limited, retryAfter := l.Check(ClientKey(r))
		if limited {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
			}
			httpx.RespondError(w, httpx.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}
