package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mcpgateway/internal/domain"
	"mcpgateway/internal/gateway"
)

const (
	grantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"
	subjectTokenTypeAccess = "urn:ietf:params:oauth:token-type:access_token"
)

// ExchangeResult is the authorization server's successful token-exchange
// response. The exchanged token's lifetime is independent of the
// original; it is not persisted beyond the caller's single upstream call.
type ExchangeResult struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
	ExpiresIn   int    `json:"expires_in"`
}

// ExchangeClient swaps an inbound access token for one with a different
// audience via the RFC 8693 token-exchange grant, so the gateway can call
// upstream APIs as a distinct actor.
type ExchangeClient struct {
	tokenEndpoint string
	clientID      string
	clientSecret  string
	errorWriter   gateway.ErrorWriter
	httpClient    *http.Client
}

// NewExchangeClient creates a token-exchange client for the given token
// endpoint with the gateway's own client credentials. A zero timeout
// falls back to 10s.
func NewExchangeClient(tokenEndpoint, clientID, clientSecret string, timeout time.Duration, ew gateway.ErrorWriter) *ExchangeClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &ExchangeClient{
		tokenEndpoint: tokenEndpoint,
		clientID:      clientID,
		clientSecret:  clientSecret,
		errorWriter:   ew,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// Exchange performs exactly one token exchange for the given audience.
// Results are never cached; the caller decides whether to reuse a token.
func (c *ExchangeClient) Exchange(ctx context.Context, subjectToken, audience string) (ExchangeResult, *domain.Error) {
	form := url.Values{}
	form.Set("grant_type", grantTypeTokenExchange)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("subject_token", subjectToken)
	form.Set("subject_token_type", subjectTokenTypeAccess)
	form.Set("audience", NormalizeAudience(audience))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return ExchangeResult{}, c.connectionError(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ExchangeResult{}, c.connectionError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := domain.NewAuthorizationServerError(resp.StatusCode, readResponseError(resp))
		if resp.StatusCode == http.StatusUnauthorized {
			// Point the original client back at this gateway's metadata,
			// not at the authorization server.
			e.WWWAuthenticate = c.errorWriter.Challenge(e)
		}
		return ExchangeResult{}, e
	}

	var result ExchangeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ExchangeResult{}, domain.NewAuthorizationServerError(resp.StatusCode, "malformed token endpoint response: "+err.Error())
	}
	if result.AccessToken == "" {
		return ExchangeResult{}, domain.NewAuthorizationServerError(resp.StatusCode, "token endpoint response is missing access_token")
	}

	return result, nil
}

func (c *ExchangeClient) connectionError(err error) *domain.Error {
	return domain.NewConnectionError(
		domain.CodeAuthorizationServerConn,
		"Problem encountered connecting to the authorization server",
		err,
	)
}

// NormalizeAudience canonicalizes an audience value by trimming a single
// trailing slash, so "https://api.demo.example/" and
// "https://api.demo.example" identify the same resource everywhere.
func NormalizeAudience(audience string) string {
	return strings.TrimSuffix(audience, "/")
}

// readResponseError extracts a best-effort {error, error_description}
// body from a failed token endpoint response for diagnostics.
func readResponseError(resp *http.Response) any {
	var body struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return nil
	}
	return map[string]string{
		"code":    body.Error,
		"message": body.ErrorDescription,
	}
}
