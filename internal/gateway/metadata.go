package gateway

import "net/http"

// ResourceMetadata is the protected-resource metadata document served
// from the unauthenticated well-known endpoint. It points clients at the
// authorization server and advertises the scopes this resource accepts.
type ResourceMetadata struct {
	Resource             string   `json:"resource"`
	ResourceName         string   `json:"resource_name"`
	AuthorizationServers []string `json:"authorization_servers"`
	ScopesSupported      []string `json:"scopes_supported"`
}

// MetadataHandler serves the protected-resource metadata document.
func MetadataHandler(md ResourceMetadata) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, md)
	}
}
