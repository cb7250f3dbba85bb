package middleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"mcpgateway/internal/domain"
	gw "mcpgateway/internal/gateway"
	"mcpgateway/internal/platform/telemetry"
)

// RateLimit returns middleware that enforces per-caller rate limits.
// Authenticated requests are limited per token subject; requests that
// reach this point without a principal (public paths) are limited per
// client IP. Place after Auth in the chain so the principal is available.
// The metrics parameter is optional; pass nil to skip metric recording.
func RateLimit(limiter gw.RateLimiter, m *telemetry.GatewayMetrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, layer := limitKey(r)
			if result := limiter.Allow(key); !result.Allowed {
				if m != nil {
					m.RecordRateLimitDecision(r.Context(), layer, "denied")
				}
				writeRateLimitError(w, result.RetryAfter)
				return
			}

			if m != nil {
				m.RecordRateLimitDecision(r.Context(), layer, "allowed")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func limitKey(r *http.Request) (key, layer string) {
	if p, ok := gw.PrincipalFromContext(r.Context()); ok {
		return "sub:" + p.Subject, "subject"
	}
	return "ip:" + clientIP(r), "ip"
}

func clientIP(r *http.Request) string {
	// Use RemoteAddr directly. X-Forwarded-For is client-controlled and
	// must not be trusted without a validated trusted proxy list.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeRateLimitError(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
	if err := json.NewEncoder(w).Encode(domain.ErrorResponse{
		Code:    "rate_limited",
		Message: "Too many requests",
	}); err != nil {
		slog.Error("encoding error response", "error", err)
	}
}
