package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"mcpgateway/internal/domain"
	"mcpgateway/internal/gateway"
)

// Client forwards a bearer token to an upstream OAuth-protected API and
// maps its responses into the gateway's error taxonomy. No raw transport
// failure escapes this boundary untyped.
type Client struct {
	baseURL     string
	errorWriter gateway.ErrorWriter
	httpClient  *http.Client
}

// NewClient creates an upstream API client for the given base URL. A
// zero timeout falls back to 10s.
func NewClient(baseURL string, timeout time.Duration, ew gateway.ErrorWriter) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     baseURL,
		errorWriter: ew,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Get calls the upstream endpoint with the access token and returns the
// raw response body on 2xx.
//
// When the upstream answers 401 its WWW-Authenticate challenge is
// relayed with this gateway's own resource_metadata parameter appended,
// so the original client re-authenticates against this gateway rather
// than the upstream.
func (c *Client) Get(ctx context.Context, accessToken, path string) ([]byte, *domain.Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, c.connectionError(err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.connectionError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, c.connectionError(err)
		}
		return body, nil
	}

	e := domain.NewUpstreamAPIError(resp.StatusCode, readResponseError(resp))
	if resp.StatusCode == http.StatusUnauthorized {
		if challenge := resp.Header.Get("WWW-Authenticate"); challenge != "" {
			e.WWWAuthenticate = challenge + ", " + c.errorWriter.MetadataParam()
		}
	}
	return nil, e
}

func (c *Client) connectionError(err error) *domain.Error {
	return domain.NewConnectionError(
		domain.CodeUpstreamAPIConn,
		"Problem encountered connecting to the upstream API",
		err,
	)
}

// readResponseError extracts a best-effort {code, message} body from a
// failed upstream response for diagnostics.
func readResponseError(resp *http.Response) any {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Code == "" {
		return nil
	}
	return map[string]string{
		"code":    body.Code,
		"message": body.Message,
	}
}
