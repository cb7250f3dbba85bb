package verifier_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mcpgateway/internal/domain"
	"mcpgateway/internal/gateway/adapter/jwks"
	"mcpgateway/internal/gateway/adapter/verifier"
	"mcpgateway/internal/testutil"
)

const (
	testIssuer   = "https://login.demo.example/oauth/v2/anonymous"
	testAudience = "https://mcp.demo.example"
)

func newVerifier(t *testing.T, jwksURL string) *verifier.Verifier {
	t.Helper()
	keys := jwks.NewClient(jwksURL, "RS256", 1*time.Minute)
	return verifier.New(keys, verifier.Options{
		Issuer:    testIssuer,
		Audience:  testAudience,
		Algorithm: "RS256",
	})
}

func TestVerifyValidToken(t *testing.T) {
	kid, priv, pub := testutil.GenerateTestKeyPair(t)
	srv := httptest.NewServer(testutil.MockJWKSHandler(kid, pub))
	defer srv.Close()

	v := newVerifier(t, srv.URL)

	token := testutil.IssueToken(t, kid, priv, testutil.TokenSpec{
		Subject:  "user-1",
		Scope:    "stocks/read",
		Issuer:   testIssuer,
		Audience: testAudience,
		TTL:      15 * time.Minute,
	})

	claims, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims["sub"] != "user-1" {
		t.Errorf("expected sub 'user-1', got %v", claims["sub"])
	}
}

func TestVerifyAudienceArrayMembership(t *testing.T) {
	kid, priv, pub := testutil.GenerateTestKeyPair(t)
	srv := httptest.NewServer(testutil.MockJWKSHandler(kid, pub))
	defer srv.Close()

	v := newVerifier(t, srv.URL)

	token := testutil.IssueToken(t, kid, priv, testutil.TokenSpec{
		Subject:  "user-1",
		Scope:    "stocks/read",
		Issuer:   testIssuer,
		Audience: []string{"https://other.demo.example", testAudience},
		TTL:      15 * time.Minute,
	})

	if _, err := v.Verify(context.Background(), token); err != nil {
		t.Fatalf("expected membership in aud array to pass, got %v", err)
	}
}

// Every rejection reason must collapse to the same client-visible
// invalid_token 401 so callers cannot probe why a token failed.
func TestVerifyRejectionsAreUniform(t *testing.T) {
	kid, priv, pub := testutil.GenerateTestKeyPair(t)
	srv := httptest.NewServer(testutil.MockJWKSHandler(kid, pub))
	defer srv.Close()

	v := newVerifier(t, srv.URL)

	// A key the JWKS endpoint does not know about
	otherKid, otherPriv, _ := testutil.GenerateTestKeyPair(t)

	tests := []struct {
		name  string
		token string
	}{
		{"wrong issuer", testutil.IssueToken(t, kid, priv, testutil.TokenSpec{
			Subject: "u", Scope: "s", Issuer: "https://evil.example", Audience: testAudience, TTL: time.Minute,
		})},
		{"wrong audience", testutil.IssueToken(t, kid, priv, testutil.TokenSpec{
			Subject: "u", Scope: "s", Issuer: testIssuer, Audience: "https://other.example", TTL: time.Minute,
		})},
		{"expired", testutil.IssueToken(t, kid, priv, testutil.TokenSpec{
			Subject: "u", Scope: "s", Issuer: testIssuer, Audience: testAudience, TTL: -5 * time.Minute,
		})},
		{"unknown signing key", testutil.IssueToken(t, otherKid, otherPriv, testutil.TokenSpec{
			Subject: "u", Scope: "s", Issuer: testIssuer, Audience: testAudience, TTL: time.Minute,
		})},
		{"garbage", "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			if err == nil {
				t.Fatal("expected verification to fail")
			}
			if err.Status != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", err.Status)
			}
			if err.Code != domain.CodeInvalidToken {
				t.Errorf("expected code invalid_token, got %q", err.Code)
			}
			if err.Extra == nil {
				t.Error("expected diagnostic cause in Extra")
			}
		})
	}
}

func TestVerifyRejectsUnrequestedAlgorithm(t *testing.T) {
	kid, priv, pub := testutil.GenerateTestKeyPair(t)
	srv := httptest.NewServer(testutil.MockJWKSHandler(kid, pub))
	defer srv.Close()

	keys := jwks.NewClient(srv.URL, "RS512", 1*time.Minute)
	v := verifier.New(keys, verifier.Options{
		Issuer:    testIssuer,
		Audience:  testAudience,
		Algorithm: "RS512",
	})

	// Token signed with RS256 while the verifier demands RS512
	token := testutil.IssueToken(t, kid, priv, testutil.TokenSpec{
		Subject: "u", Scope: "s", Issuer: testIssuer, Audience: testAudience, TTL: time.Minute,
	})

	_, err := v.Verify(context.Background(), token)
	if err == nil {
		t.Fatal("expected algorithm mismatch to fail")
	}
	if err.Code != domain.CodeInvalidToken {
		t.Errorf("expected code invalid_token, got %q", err.Code)
	}
}
