package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"mcpgateway/internal/domain"
)

// ErrorWriter serializes typed errors to clients and logs them exactly
// once, at this final handling point. 401 responses always carry a
// WWW-Authenticate challenge pointing at the service's protected-resource
// metadata; no other status does.
type ErrorWriter struct {
	// ResourceMetadataURL is this service's own protected-resource
	// metadata endpoint, advertised in challenges.
	ResourceMetadataURL string
}

// Write logs the error and sends the client-facing envelope.
func (ew ErrorWriter) Write(w http.ResponseWriter, r *http.Request, e *domain.Error) {
	slog.Info("request failed",
		"status", e.Status,
		"code", e.Code,
		"message", e.Message,
		"extra", e.Extra,
		"request_id", RequestIDFromContext(r.Context()),
	)

	if e.Status == http.StatusUnauthorized {
		challenge := e.WWWAuthenticate
		if challenge == "" {
			challenge = ew.Challenge(e)
		}
		w.Header().Set("WWW-Authenticate", challenge)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	if err := json.NewEncoder(w).Encode(e.ClientObject()); err != nil {
		slog.Error("encoding error response", "error", err)
	}
}

// Challenge builds the full WWW-Authenticate value for an error.
func (ew ErrorWriter) Challenge(e *domain.Error) string {
	return fmt.Sprintf(`Bearer error="%s", error_description="%s", %s`,
		e.Code, e.Message, ew.MetadataParam())
}

// MetadataParam returns the resource_metadata challenge parameter, also
// merged into challenges relayed from upstream APIs.
func (ew ErrorWriter) MetadataParam() string {
	return fmt.Sprintf(`resource_metadata="%s"`, ew.ResourceMetadataURL)
}

// WriteJSON sends a success payload as JSON.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encoding response", "error", err)
	}
}
