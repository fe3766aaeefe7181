package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/auth"
	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/config"
)

// issue_token mints an access token signed with JWT_SECRET, for smoke tests
// and till provisioning.
func main() {
	var (
		subject = flag.String("sub", "", "user id; a random one is generated when empty")
		role    = flag.String("role", common.RoleEmployee, "admin or employee")
		ttl     = flag.Duration("ttl", 12*time.Hour, "token lifetime")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	if *role != common.RoleAdmin && *role != common.RoleEmployee {
		logger.Fatal().Str("role", *role).Msg("role must be admin or employee")
	}
	if *subject == "" {
		*subject = uuid.NewString()
	}

	v, err := auth.NewVerifier(auth.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TokenTTL: *ttl,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("configure signer")
	}
	token, expiresAt, err := v.Issue(auth.Identity{UserID: *subject, Role: *role})
	if err != nil {
		logger.Fatal().Err(err).Msg("sign token")
	}
	logger.Info().Str("sub", *subject).Str("role", *role).Time("expires_at", expiresAt).Msg("token issued")
	fmt.Println(token)
}
