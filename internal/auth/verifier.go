// Package auth verifies bearer tokens minted by the identity provider and
// puts the caller's id and role on the request context.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-pos/internal/common"
)

const roleClaim = "role"

// Identity is the authenticated caller.
type Identity struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// Config configures a Verifier.
type Config struct {
	Secret    string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	TokenTTL  time.Duration
}

// Verifier parses and validates HS256 access tokens.
type Verifier struct {
	secret    []byte
	issuer    string
	audience  string
	ttl       time.Duration
	validator TokenValidator
	now       func() time.Time
}

// NewVerifier builds a Verifier. The secret is required.
func NewVerifier(cfg Config) (*Verifier, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("auth: secret is required")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Verifier{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      ttl,
		validator: TokenValidator{
			Issuer:    cfg.Issuer,
			Audience:  cfg.Audience,
			ClockSkew: cfg.ClockSkew,
			Algorithm: jwa.HS256,
		},
		now: time.Now,
	}, nil
}

// WithNow overrides the verifier clock.
func (v *Verifier) WithNow(now func() time.Time) {
	if now != nil {
		v.now = now
	}
}

func unauthorized(err error) error {
	return common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
}

// Parse validates token and returns the identity it carries. Tokens without a
// role claim belong to employees; unknown roles are rejected.
func (v *Verifier) Parse(token string) (Identity, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Identity{}, common.NewAppError("UNAUTHORIZED", "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := tokenAlgorithm(trimmed)
	if err != nil {
		return Identity{}, unauthorized(err)
	}
	if algorithm != v.validator.Algorithm {
		return Identity{}, unauthorized(fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, v.secret), jwt.WithValidate(false))
	if err != nil {
		return Identity{}, unauthorized(err)
	}
	id, err := v.validator.Identify(parsed, algorithm, v.now())
	if err != nil {
		return Identity{}, unauthorized(err)
	}
	return id, nil
}

// Issue signs a token for id. Used by operator tooling and tests; interactive
// login lives in the identity provider.
func (v *Verifier) Issue(id Identity) (string, time.Time, error) {
	now := v.now()
	expiresAt := now.Add(v.ttl)
	builder := jwt.NewBuilder().
		Subject(id.UserID).
		IssuedAt(now).
		NotBefore(now.Add(-v.validator.ClockSkew)).
		Expiration(expiresAt)
	if v.issuer != "" {
		builder = builder.Issuer(v.issuer)
	}
	if v.audience != "" {
		builder = builder.Audience([]string{v.audience})
	}
	if id.Role != "" {
		builder = builder.Claim(roleClaim, id.Role)
	}
	tok, err := builder.Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, v.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) != 1 {
		return "", errors.New("auth: expected exactly one signature")
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("auth: token missing protected headers")
	}
	alg := headers.Algorithm()
	if alg == "" || alg == jwa.NoSignature {
		return "", errors.New("auth: token has no usable algorithm")
	}
	return alg, nil
}
