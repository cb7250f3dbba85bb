package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Claims is the validated JWT payload, produced only after signature,
// issuer, audience and algorithm checks have all passed.
type Claims map[string]any

// Principal is a typed view over validated claims, built once per request
// and never shared across requests.
//
// Subject and the scope set are authentication essentials; the remaining
// fields are optional authorization context read permissively with
// defined defaults.
type Principal struct {
	Subject              string
	Scope                string // raw space-separated scope claim
	Region               string
	ClientType           string
	ClientAssuranceLevel int

	scopes []string
}

// NewPrincipal builds a Principal from validated claims. Both the "sub"
// and "scope" claims are required; their absence is an authorization
// failure, never a silent default.
func NewPrincipal(claims Claims) (Principal, *Error) {
	sub, err := requiredStringClaim(claims, "sub")
	if err != nil {
		return Principal{}, err
	}
	scope, err := requiredStringClaim(claims, "scope")
	if err != nil {
		return Principal{}, err
	}

	return Principal{
		Subject:              sub,
		Scope:                scope,
		Region:               optionalStringClaim(claims, "region"),
		ClientType:           optionalStringClaim(claims, "client_type"),
		ClientAssuranceLevel: optionalIntClaim(claims, "client_assurance_level"),
		scopes:               strings.Fields(scope),
	}, nil
}

// HasScope reports whether the given scope appears as a whole token in
// the principal's scope set. Substring matches do not count.
func (p Principal) HasScope(scope string) bool {
	return slices.Contains(p.scopes, scope)
}

// EnforceRequiredScope fails with insufficient_scope unless the required
// scope was granted.
func (p Principal) EnforceRequiredScope(requiredScope string) *Error {
	if !p.HasScope(requiredScope) {
		info := fmt.Sprintf("Required scope is '%s' and received access token has scope '%s'", requiredScope, p.Scope)
		return NewInsufficientScopeError(info)
	}
	return nil
}

func requiredStringClaim(claims Claims, name string) (string, *Error) {
	value, _ := claims[name].(string)
	if value == "" {
		info := fmt.Sprintf("The access token does not contain the required %s claim", name)
		return "", NewInsufficientScopeError(info)
	}
	return value, nil
}

func optionalStringClaim(claims Claims, name string) string {
	value, _ := claims[name].(string)
	return value
}

func optionalIntClaim(claims Claims, name string) int {
	// JSON numbers decode as float64
	switch v := claims[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
