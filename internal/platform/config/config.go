package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joeshaw/envdecode"
)

// JWTConfig holds the verification requirements shared by every service
// that accepts bearer tokens. All fields are required; startup fails if
// any is unset.
type JWTConfig struct {
	JWKSURI   string `env:"JWKS_URI,required"`
	Issuer    string `env:"REQUIRED_JWT_ISSUER,required"`
	Audience  string `env:"REQUIRED_JWT_AUDIENCE,required"`
	Algorithm string `env:"REQUIRED_JWT_ALGORITHM,required"`

	JWKSMinRefresh time.Duration `env:"JWKS_MIN_REFRESH,default=5m"`
}

// RateLimitConfig holds token bucket parameters for per-caller rate limiting.
type RateLimitConfig struct {
	Rate  float64 `env:"RATE_LIMIT_RATE,default=100"`
	Burst int     `env:"RATE_LIMIT_BURST,default=20"`
}

// MCPServer is the configuration for the MCP gateway binary.
type MCPServer struct {
	Port            string `env:"PORT,required"`
	ExternalBaseURL string `env:"EXTERNAL_BASE_URL,required"`
	AuthServerURL   string `env:"AUTHORIZATION_SERVER_BASE_URL,required"`
	StocksAPIURL    string `env:"STOCKS_API_BASE_URL,required"`

	JWT JWTConfig

	TokenEndpoint            string `env:"TOKEN_ENDPOINT,required"`
	TokenExchangeClientID    string `env:"TOKEN_EXCHANGE_CLIENT_ID,required"`
	TokenExchangeClientSecret string `env:"TOKEN_EXCHANGE_CLIENT_SECRET,required"`
	UpstreamAudience         string `env:"UPSTREAM_AUDIENCE,default=https://api.demo.example"`

	HTTPClientTimeout time.Duration `env:"HTTP_CLIENT_TIMEOUT,default=10s"`
	LogLevel          string        `env:"LOG_LEVEL,default=info"`
	RateLimit         RateLimitConfig
}

// ResourceAPI is the configuration for the parameterized demo API binary.
// APIName selects which resource the process serves (stocks, trades or
// customers); everything else that differs between the demo APIs is data.
type ResourceAPI struct {
	Port            string `env:"PORT,required"`
	ExternalBaseURL string `env:"EXTERNAL_BASE_URL,required"`
	AuthServerURL   string `env:"AUTHORIZATION_SERVER_BASE_URL,required"`
	APIName         string `env:"API_NAME,required"`

	JWT JWTConfig

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	RateLimit RateLimitConfig
}

// LoadMCPServer reads the MCP gateway configuration from the environment,
// failing fast when a required variable is unset.
func LoadMCPServer() (MCPServer, error) {
	var cfg MCPServer
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return MCPServer{}, fmt.Errorf("loading mcp server configuration: %w", err)
	}
	return cfg, nil
}

// SlogLevel maps a configured log level name to a slog.Level, defaulting
// to info for unknown values.
func SlogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadResourceAPI reads the resource API configuration from the
// environment, failing fast when a required variable is unset.
func LoadResourceAPI() (ResourceAPI, error) {
	var cfg ResourceAPI
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return ResourceAPI{}, fmt.Errorf("loading resource api configuration: %w", err)
	}
	return cfg, nil
}
