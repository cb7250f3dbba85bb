package middleware

import (
	"net/http"
	"strings"

	"mcpgateway/internal/domain"
	gw "mcpgateway/internal/gateway"
	"mcpgateway/internal/platform/telemetry"
)

// Auth returns the access-guard middleware: it extracts the bearer token,
// verifies it with the configured TokenVerifier and attaches the
// resulting principal and raw token to the request context. Paths in
// publicPaths are exempt. The metrics parameter is optional; pass nil to
// skip metric recording.
func Auth(verifier gw.TokenVerifier, ew gw.ErrorWriter, publicPaths []string, m *telemetry.GatewayMetrics) Middleware {
	public := make(map[string]struct{}, len(publicPaths))
	for _, p := range publicPaths {
		public[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := public[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			// A missing or malformed header fails without any key lookup.
			tokenStr, ok := ExtractBearerToken(r)
			if !ok {
				if m != nil {
					m.RecordAuthValidation(r.Context(), "failure")
				}
				ew.Write(w, r, domain.NewInvalidTokenError("missing or malformed authorization header"))
				return
			}

			claims, verr := verifier.Verify(r.Context(), tokenStr)
			if verr != nil {
				if m != nil {
					m.RecordAuthValidation(r.Context(), "failure")
				}
				ew.Write(w, r, verr)
				return
			}

			principal, perr := domain.NewPrincipal(claims)
			if perr != nil {
				if m != nil {
					m.RecordAuthValidation(r.Context(), "failure")
				}
				ew.Write(w, r, perr)
				return
			}

			if m != nil {
				m.RecordAuthValidation(r.Context(), "success")
			}
			ctx := gw.ContextWithPrincipal(r.Context(), principal)
			ctx = gw.ContextWithAccessToken(ctx, tokenStr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ExtractBearerToken reads the access token from the Authorization
// header. The header must have exactly two space-separated parts with the
// first case-insensitively equal to "bearer"; anything else is treated as
// an absent token.
func ExtractBearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}
	parts := strings.Fields(auth)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
