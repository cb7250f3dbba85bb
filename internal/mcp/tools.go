package mcp

import (
	"context"
	"log/slog"
	"time"

	"mcpgateway/internal/domain"
	"mcpgateway/internal/gateway"
	"mcpgateway/internal/gateway/adapter/oauth"
	"mcpgateway/internal/gateway/adapter/upstream"
	"mcpgateway/internal/platform/telemetry"
)

// Tool is an MCP tool exposed by the gateway. Handler returns the text
// content of the tool result, or a typed error returned to the client
// in-band.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     func(ctx context.Context, args map[string]any) (string, *domain.Error)
}

// StockPricesTool calls the OAuth-secured stocks API on behalf of the
// caller. The inbound token is exchanged for one with the upstream's
// audience before the call; the exchanged token lives only for this one
// request.
func StockPricesTool(exchanger *oauth.ExchangeClient, stocksAPI *upstream.Client, upstreamAudience string, m *telemetry.GatewayMetrics) Tool {
	return Tool{
		Name:        "fetch-stock-prices",
		Description: "A tool to fetch secured information about financial stock prices",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, _ map[string]any) (string, *domain.Error) {
			subjectToken := gateway.AccessTokenFromContext(ctx)
			if subjectToken == "" {
				return "", domain.NewInvalidTokenError("no access token in request context")
			}

			result, err := exchanger.Exchange(ctx, subjectToken, upstreamAudience)
			if err != nil {
				if m != nil {
					m.RecordTokenExchange(ctx, "failure")
				}
				return "", err
			}
			if m != nil {
				m.RecordTokenExchange(ctx, "success")
			}

			start := time.Now()
			body, err := stocksAPI.Get(ctx, result.AccessToken, "/")
			if m != nil {
				status := 200
				if err != nil {
					status = err.Status
				}
				m.RecordUpstreamCall(ctx, status, time.Since(start).Seconds())
			}
			if err != nil {
				return "", err
			}

			slog.Info("stocks API call succeeded")
			return string(body), nil
		},
	}
}
