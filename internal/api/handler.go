package api

import (
	"log/slog"
	"net/http"

	"mcpgateway/internal/domain"
	"mcpgateway/internal/gateway"
)

// Handler serves the resource's payload to callers whose token carries
// the required scope. The access guard has already validated the token
// and attached the principal.
func (d Definition) Handler(ew gateway.ErrorWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := gateway.PrincipalFromContext(r.Context())
		if !ok {
			// Only reachable if the route was wired without the access guard.
			ew.Write(w, r, domain.NewInvalidTokenError("no principal in request context"))
			return
		}

		if err := principal.EnforceRequiredScope(d.RequiredScope); err != nil {
			ew.Write(w, r, err)
			return
		}

		slog.Info("returning secured resource data", "api", d.Name, "subject", principal.Subject)
		gateway.WriteJSON(w, http.StatusOK, d.Payload(principal))
	}
}
