package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-pos/internal/common"
)

// TokenValidator checks a parsed access token and resolves the till
// operator it was issued to.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
}

// Identify validates the registered claims, then reads the subject and role.
// A token with no role claim is an employee token.
func (v TokenValidator) Identify(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) (Identity, error) {
	if tok == nil {
		return Identity{}, errors.New("auth: token is nil")
	}
	if algorithm == "" || (v.Algorithm != "" && algorithm != v.Algorithm) {
		return Identity{}, fmt.Errorf("auth: unexpected token algorithm %q", algorithm)
	}

	opts := []jwt.ValidateOption{jwt.WithClock(jwt.ClockFunc(func() time.Time { return now }))}
	if v.ClockSkew > 0 {
		opts = append(opts, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}
	if err := jwt.Validate(tok, opts...); err != nil {
		return Identity{}, err
	}

	if tok.Subject() == "" {
		return Identity{}, errors.New("auth: token has no subject")
	}
	id := Identity{UserID: tok.Subject(), Role: common.RoleEmployee}
	raw, ok := tok.Get(roleClaim)
	if !ok {
		return id, nil
	}
	switch role, _ := raw.(string); role {
	case common.RoleAdmin, common.RoleEmployee:
		id.Role = role
		return id, nil
	default:
		return Identity{}, fmt.Errorf("auth: unknown role %q", role)
	}
}
