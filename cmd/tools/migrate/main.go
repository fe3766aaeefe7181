package main

import (
	"errors"
	"flag"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"

	"github.com/noah-isme/backend-pos/internal/config"
	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/obs"
)

// migrate applies or rolls back the embedded schema migrations.
//
//	migrate -cmd up
//	migrate -cmd down -steps 1
//	migrate -cmd version
func main() {
	var (
		command = flag.String("cmd", "up", "up, down, force or version")
		steps   = flag.Int("steps", 1, "number of migrations to roll back with -cmd down")
		version = flag.Int("version", -1, "version to force with -cmd force")
	)
	flag.Parse()

	logger := obs.NewLogger("console", "info").With().Str("component", "migrate").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	m, err := db.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open migrator")
	}
	defer m.Close()

	switch strings.ToLower(*command) {
	case "up":
		err = m.Up()
	case "down":
		if *steps < 1 {
			logger.Fatal().Int("steps", *steps).Msg("steps must be positive")
		}
		err = m.Steps(-*steps)
	case "force":
		if *version < 0 {
			logger.Fatal().Msg("-version is required with -cmd force")
		}
		err = m.Force(*version)
	case "version":
	default:
		logger.Error().Str("cmd", *command).Msg("unknown command")
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal().Err(err).Str("cmd", *command).Msg("migration failed")
	}

	current, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		logger.Info().Msg("database has no migrations applied")
		return
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("read version")
	}
	logger.Info().Uint("version", current).Bool("dirty", dirty).Msg("schema version")
}
