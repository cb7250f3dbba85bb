package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mcpgateway/internal/platform/server"
)

// A development stand-in for the authorization server: serves a JWKS,
// issues access tokens for seeded users and supports the RFC 8693
// token-exchange grant with audience overrides, mirroring how the real
// authorization server's token procedures behave.
func main() {
	addr := envOr("AUTH_SERVER_ADDR", ":8443")
	issuer := envOr("ISSUER", "http://localhost:8443/oauth/v2/anonymous")
	defaultAudience := envOr("DEFAULT_AUDIENCE", "https://mcp.demo.example")
	allowedAudiences := strings.Fields(envOr(
		"ALLOWED_AUDIENCES",
		"https://mcp.demo.example https://api.demo.example",
	))
	tokenTTL := 15 * time.Minute

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		slog.Error("generating RSA key", "error", err)
		os.Exit(1)
	}
	kid := fmt.Sprintf("mock-key-%d", time.Now().Unix())

	// Seed users with the scopes the demo APIs require
	userScopes := map[string]string{
		"demouser": "openid profile stocks/read trades/read retail",
		"agent":    "openid stocks/read",
	}

	slog.Info("mock authorization server starting",
		"addr", addr,
		"issuer", issuer,
		"kid", kid,
		"users", "demouser, agent",
	)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		pub := &priv.PublicKey
		jwks := map[string]any{
			"keys": []map[string]any{
				{
					"kty": "RSA",
					"alg": "RS256",
					"use": "sig",
					"kid": kid,
					"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
					"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(jwks)
	})

	mux.HandleFunc("POST /oauth/v2/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
			return
		}

		switch r.PostForm.Get("grant_type") {
		case "password":
			sub := r.PostForm.Get("username")
			scope, ok := userScopes[sub]
			if !ok {
				writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "unknown user")
				return
			}
			if requested := r.PostForm.Get("scope"); requested != "" {
				scope = intersectScopes(scope, requested)
			}

			// Audience restriction via the resource parameter
			aud := defaultAudience
			if resource := r.PostForm.Get("resource"); resource != "" {
				if !slices.Contains(allowedAudiences, resource) {
					writeOAuthError(w, http.StatusBadRequest, "invalid_target", "Resource parameter is invalid or unknown.")
					return
				}
				aud = resource
			}

			issueToken(w, priv, kid, issuer, sub, scope, aud, tokenTTL)

		case "urn:ietf:params:oauth:grant-type:token-exchange":
			subjectToken := r.PostForm.Get("subject_token")
			if subjectToken == "" {
				writeOAuthError(w, http.StatusBadRequest, "invalid_request", "subject_token is required")
				return
			}

			token, err := jwt.Parse(subjectToken, func(t *jwt.Token) (any, error) {
				return &priv.PublicKey, nil
			}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithIssuer(issuer))
			if err != nil || !token.Valid {
				writeOAuthError(w, http.StatusUnauthorized, "invalid_grant", "subject token is not valid")
				return
			}
			claims := token.Claims.(jwt.MapClaims)

			// Allow audience overrides by token exchange clients
			aud := defaultAudience
			if requested := r.PostForm.Get("audience"); requested != "" {
				if !slices.Contains(allowedAudiences, requested) {
					writeOAuthError(w, http.StatusBadRequest, "invalid_target", "Audience is invalid or unknown.")
					return
				}
				aud = requested
			}

			sub, _ := claims["sub"].(string)
			scope, _ := claims["scope"].(string)
			issueToken(w, priv, kid, issuer, sub, scope, aud, tokenTTL)

		default:
			writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "unsupported grant type")
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(addr, mux, server.Options{})
	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
	}
}

func issueToken(w http.ResponseWriter, priv *rsa.PrivateKey, kid, issuer, sub, scope, aud string, ttl time.Duration) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   issuer,
		"sub":   sub,
		"scope": scope,
		"aud":   []string{aud},
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	})
	token.Header["kid"] = kid

	signed, err := token.SignedString(priv)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "signing failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"access_token":      signed,
		"scope":             scope,
		"expires_in":        int(ttl.Seconds()),
		"token_type":        "bearer",
		"issued_token_type": "urn:ietf:params:oauth:token-type:access_token",
	})
}

func intersectScopes(granted, requested string) string {
	grantedSet := strings.Fields(granted)
	var kept []string
	for _, s := range strings.Fields(requested) {
		if slices.Contains(grantedSet, s) {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, " ")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}
