package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mcpgateway/internal/api"
	"mcpgateway/internal/gateway"
	"mcpgateway/internal/gateway/adapter/inmem"
	"mcpgateway/internal/gateway/adapter/jwks"
	"mcpgateway/internal/gateway/adapter/verifier"
	"mcpgateway/internal/gateway/middleware"
	"mcpgateway/internal/platform/config"
	"mcpgateway/internal/platform/server"
	"mcpgateway/internal/platform/telemetry"
)

const maxBodyBytes = 1 << 20 // 1MB

func main() {
	cfg, err := config.LoadResourceAPI()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	def, err := api.Lookup(cfg.APIName)
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.SlogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(context.Background(), def.Name+"-api")
	if err != nil {
		slog.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}

	metrics, err := telemetry.NewGatewayMetrics()
	if err != nil {
		slog.Error("metrics initialization failed", "error", err)
		os.Exit(1)
	}

	metadataPath := "/.well-known/oauth-protected-resource/" + def.Name
	errorWriter := gateway.ErrorWriter{
		ResourceMetadataURL: cfg.ExternalBaseURL + metadataPath,
	}

	keySource := jwks.NewClient(cfg.JWT.JWKSURI, cfg.JWT.Algorithm, cfg.JWT.JWKSMinRefresh)
	tokenVerifier := verifier.New(keySource, verifier.Options{
		Issuer:    cfg.JWT.Issuer,
		Audience:  cfg.JWT.Audience,
		Algorithm: cfg.JWT.Algorithm,
	})

	limiter := inmem.NewRateLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst, time.Now)
	limiter.StartCleanup(ctx, 5*time.Minute)

	inner := http.NewServeMux()
	inner.HandleFunc("GET "+metadataPath, gateway.MetadataHandler(gateway.ResourceMetadata{
		Resource:             cfg.ExternalBaseURL + "/" + def.Name,
		ResourceName:         def.ResourceName,
		AuthorizationServers: []string{cfg.AuthServerURL},
		ScopesSupported:      []string{def.RequiredScope},
	}))
	inner.HandleFunc("GET /healthz", healthz)
	inner.HandleFunc("GET "+def.Path, def.Handler(errorWriter))

	publicPaths := []string{metadataPath, "/healthz"}

	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.MetricsHandler())
	mux.Handle("/", middleware.Chain(
		inner,
		middleware.Metrics(metrics),
		middleware.RequestID,
		middleware.Logging(logger),
		middleware.Recovery,
		middleware.MaxBodySize(maxBodyBytes),
		middleware.Auth(tokenVerifier, errorWriter, publicPaths, metrics),
		middleware.RateLimit(limiter, metrics),
	))

	srv := server.New(":"+cfg.Port, mux, server.Options{})

	slog.Info("resource api starting",
		"api", def.Name,
		"port", cfg.Port,
		"required_scope", def.RequiredScope,
		"jwks_uri", cfg.JWT.JWKSURI,
		"issuer", cfg.JWT.Issuer,
		"audience", cfg.JWT.Audience,
	)

	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
	}

	if err := shutdown(context.Background()); err != nil {
		slog.Error("telemetry shutdown error", "error", err)
	}
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	gateway.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
