package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GenerateTestKeyPair generates an RSA key pair for testing.
// Returns (keyID, privateKey, publicKey).
func GenerateTestKeyPair(t *testing.T) (string, *rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating RSA key: %v", err)
	}
	kid := fmt.Sprintf("test-key-%d", time.Now().UnixNano())
	return kid, priv, &priv.PublicKey
}

// TokenSpec describes a test token to mint. Empty Subject or Scope omits
// that claim entirely. Audience may be a string or a []string.
type TokenSpec struct {
	Subject  string
	Scope    string
	Issuer   string
	Audience any
	TTL      time.Duration // negative produces an already-expired token
	Extra    map[string]any
}

// IssueToken creates a signed RS256 JWT for testing.
func IssueToken(t *testing.T, kid string, priv *rsa.PrivateKey, spec TokenSpec) string {
	t.Helper()

	now := time.Now()
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(spec.TTL).Unix(),
	}
	if spec.Subject != "" {
		claims["sub"] = spec.Subject
	}
	if spec.Scope != "" {
		claims["scope"] = spec.Scope
	}
	if spec.Issuer != "" {
		claims["iss"] = spec.Issuer
	}
	if spec.Audience != nil {
		claims["aud"] = spec.Audience
	}
	for k, v := range spec.Extra {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(priv)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

// MockJWKSHandler returns an http.Handler that serves a JWKS response
// containing the given public key.
func MockJWKSHandler(kid string, pub *rsa.PublicKey) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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
}

// ExchangeHandler returns an http.Handler implementing a minimal
// token-exchange endpoint: it reissues the subject token's sub and scope
// claims with the requested audience, signed by the given key. The
// reissued token verifies against a verifier configured with that
// audience and issuer.
func ExchangeHandler(kid string, priv *rsa.PrivateKey, issuer string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
			return
		}
		if r.PostForm.Get("grant_type") != "urn:ietf:params:oauth:grant-type:token-exchange" {
			writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "expected token-exchange grant")
			return
		}
		subjectToken := r.PostForm.Get("subject_token")
		audience := r.PostForm.Get("audience")
		if subjectToken == "" || audience == "" {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "subject_token and audience are required")
			return
		}

		var claims jwt.MapClaims
		if _, _, err := jwt.NewParser().ParseUnverified(subjectToken, &claims); err != nil {
			writeOAuthError(w, http.StatusUnauthorized, "invalid_grant", "subject token is not a JWT")
			return
		}

		now := time.Now()
		reissued := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"iss":   issuer,
			"sub":   claims["sub"],
			"scope": claims["scope"],
			"aud":   []string{audience},
			"iat":   now.Unix(),
			"exp":   now.Add(15 * time.Minute).Unix(),
		})
		reissued.Header["kid"] = kid

		signed, err := reissued.SignedString(priv)
		if err != nil {
			writeOAuthError(w, http.StatusInternalServerError, "server_error", "signing failed")
			return
		}

		scope, _ := claims["scope"].(string)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":      signed,
			"scope":             scope,
			"expires_in":        900,
			"token_type":        "bearer",
			"issued_token_type": "urn:ietf:params:oauth:token-type:access_token",
		})
	})
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}
