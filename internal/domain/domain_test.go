package domain_test

import (
	"errors"
	"net/http"
	"testing"

	"mcpgateway/internal/domain"
)

func validClaims() domain.Claims {
	return domain.Claims{
		"sub":   "user-1",
		"scope": "openid stocks/read trades/read",
	}
}

func TestNewPrincipal(t *testing.T) {
	p, err := domain.NewPrincipal(validClaims())
	if err != nil {
		t.Fatalf("NewPrincipal: %v", err)
	}
	if p.Subject != "user-1" {
		t.Errorf("expected subject 'user-1', got %q", p.Subject)
	}
	if !p.HasScope("stocks/read") {
		t.Error("expected scope stocks/read")
	}
	if p.Region != "" || p.ClientType != "" || p.ClientAssuranceLevel != 0 {
		t.Error("expected zero defaults for optional claims")
	}
}

func TestNewPrincipalOptionalClaims(t *testing.T) {
	claims := validClaims()
	claims["region"] = "USA"
	claims["client_type"] = "confidential"
	claims["client_assurance_level"] = float64(2)

	p, err := domain.NewPrincipal(claims)
	if err != nil {
		t.Fatalf("NewPrincipal: %v", err)
	}
	if p.Region != "USA" {
		t.Errorf("expected region 'USA', got %q", p.Region)
	}
	if p.ClientType != "confidential" {
		t.Errorf("expected client_type 'confidential', got %q", p.ClientType)
	}
	if p.ClientAssuranceLevel != 2 {
		t.Errorf("expected client_assurance_level 2, got %d", p.ClientAssuranceLevel)
	}
}

func TestNewPrincipalMissingRequiredClaims(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(domain.Claims)
	}{
		{"missing sub", func(c domain.Claims) { delete(c, "sub") }},
		{"missing scope", func(c domain.Claims) { delete(c, "scope") }},
		{"empty sub", func(c domain.Claims) { c["sub"] = "" }},
		{"non-string scope", func(c domain.Claims) { c["scope"] = 42 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := validClaims()
			tt.mutate(claims)

			_, err := domain.NewPrincipal(claims)
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Status != http.StatusForbidden {
				t.Errorf("expected 403, got %d", err.Status)
			}
			if err.Code != domain.CodeInsufficientScope {
				t.Errorf("expected code %q, got %q", domain.CodeInsufficientScope, err.Code)
			}
		})
	}
}

func TestEnforceRequiredScope(t *testing.T) {
	tests := []struct {
		name     string
		scope    string
		required string
		wantOK   bool
	}{
		{"exact match", "stocks/read", "stocks/read", true},
		{"member of set", "openid stocks/read trades/read", "stocks/read", true},
		{"substring does not count", "stocks/readwrite", "stocks/read", false},
		{"prefix does not count", "stocks/read", "stocks/readwrite", false},
		{"absent", "openid profile", "stocks/read", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := domain.NewPrincipal(domain.Claims{"sub": "u", "scope": tt.scope})
			if err != nil {
				t.Fatalf("NewPrincipal: %v", err)
			}

			serr := p.EnforceRequiredScope(tt.required)
			if tt.wantOK && serr != nil {
				t.Errorf("expected scope %q to satisfy %q, got %v", tt.scope, tt.required, serr)
			}
			if !tt.wantOK {
				if serr == nil {
					t.Fatalf("expected scope %q to fail requirement %q", tt.scope, tt.required)
				}
				if serr.Status != http.StatusForbidden || serr.Code != domain.CodeInsufficientScope {
					t.Errorf("expected 403 insufficient_scope, got %d %s", serr.Status, serr.Code)
				}
			}
		})
	}
}

func TestAsError(t *testing.T) {
	typed := domain.NewInvalidTokenError(nil)
	if got := domain.AsError(typed); got != typed {
		t.Error("expected typed error to pass through unchanged")
	}

	wrapped := domain.AsError(errors.New("boom"))
	if wrapped.Status != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", wrapped.Status)
	}
	if wrapped.Code != domain.CodeServerError {
		t.Errorf("expected code server_error, got %q", wrapped.Code)
	}
	// The cause stays in the log-only field, never in the client envelope
	if wrapped.ClientObject().Message == "boom" {
		t.Error("raw cause leaked into client message")
	}
}
