package verifier

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mcpgateway/internal/domain"
	"mcpgateway/internal/gateway"
)

const defaultLeeway = 30 * time.Second

// Options are the per-service verification requirements, sourced from
// configuration at startup and immutable afterwards.
type Options struct {
	Issuer    string
	Audience  string
	Algorithm string        // e.g. "RS256"; "none" is never accepted
	Leeway    time.Duration // clock skew tolerance, defaults to 30s
}

// Verifier validates bearer JWTs against a KeySource and fixed Options.
// Every failure collapses to the same invalid_token error so callers
// cannot distinguish why a token was rejected; the cause is preserved in
// the error's log-only diagnostic field.
type Verifier struct {
	keys gateway.KeySource
	opts Options
}

var _ gateway.TokenVerifier = (*Verifier)(nil)

// New creates a Verifier. The configured algorithm is the only one
// accepted, which defends against algorithm confusion attacks.
func New(keys gateway.KeySource, opts Options) *Verifier {
	if opts.Leeway == 0 {
		opts.Leeway = defaultLeeway
	}
	return &Verifier{keys: keys, opts: opts}
}

// Verify checks signature, issuer, audience membership, algorithm and the
// token's validity window, returning the validated claims.
func (v *Verifier) Verify(ctx context.Context, tokenStr string) (domain.Claims, *domain.Error) {
	token, err := jwt.Parse(tokenStr,
		func(t *jwt.Token) (any, error) {
			kid, ok := t.Header["kid"].(string)
			if !ok || kid == "" {
				return nil, errors.New("token header has no kid")
			}
			return v.keys.GetKey(ctx, kid)
		},
		jwt.WithValidMethods([]string{v.opts.Algorithm}),
		jwt.WithIssuer(v.opts.Issuer),
		jwt.WithAudience(v.opts.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.opts.Leeway),
	)
	if err != nil {
		return nil, domain.NewInvalidTokenError(err.Error())
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, domain.NewInvalidTokenError("token claims are not a JSON object")
	}

	return domain.Claims(claims), nil
}
