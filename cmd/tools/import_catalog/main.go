package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-pos/internal/app"
	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/config"
)

// import_catalog loads products from an .xlsx sheet using the same rules as
// POST /products/import.
func main() {
	var (
		file    = flag.String("file", "", "path to the .xlsx workbook")
		actor   = flag.String("actor", "", "user id recorded on the opening stock movements")
		timeout = flag.Duration("timeout", 5*time.Minute, "overall time limit")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	o := app.InitObservability(ctx, cfg, "import")
	logger := o.Logger

	actorID, err := uuid.Parse(*actor)
	if err != nil {
		logger.Fatal().Err(err).Msg("-actor must be a user id")
	}
	f, err := os.Open(*file)
	if err != nil {
		logger.Fatal().Err(err).Str("file", *file).Msg("open workbook")
	}
	defer f.Close()

	rows, err := catalog.ParseXLSX(f)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse workbook")
	}

	deps, err := app.Open(ctx, cfg, o, "pos-import")
	if err != nil {
		logger.Fatal().Err(err).Msg("open dependencies")
	}
	defer deps.Close()
	svcs, err := app.NewServices(deps)
	if err != nil {
		logger.Fatal().Err(err).Msg("build services")
	}

	result, err := svcs.Catalog.Import(ctx, rows, actorID)
	if err != nil {
		logger.Fatal().Err(err).Msg("import products")
	}
	for _, rowErr := range result.Errors {
		logger.Warn().Int("line", rowErr.Line).Str("sku", rowErr.Sku).Msg(rowErr.Message)
	}
	logger.Info().
		Int("rows", len(rows)).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("rejected", len(result.Errors)).
		Msg("import finished")
	if len(result.Errors) > 0 {
		os.Exit(1)
	}
}
