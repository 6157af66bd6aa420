package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/claude/freeflow/internal/catalog"
	"github.com/claude/freeflow/internal/config"
	"github.com/claude/freeflow/internal/importer"
	"github.com/claude/freeflow/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	catalogPath := flag.String("path", "", "directory of YAML catalog files (required)")
	stateDir := flag.String("state-dir", "", "directory for the import state database (optional)")
	dryRun := flag.Bool("dry-run", false, "validate and report counts without writing to the database")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *catalogPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: freeflow-import -config config.yaml -path /path/to/catalog [-state-dir dir] [-dry-run]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Verify catalog directory exists
	info, err := os.Stat(*catalogPath)
	if err != nil || !info.IsDir() {
		log.Error("catalog path does not exist or is not a directory", "path", *catalogPath)
		os.Exit(1)
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	dsn := cfg.Database.DSN()

	// Run migrations
	version, err := storage.RunMigrations(dsn, "migrations")
	if err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied", "version", version)

	ctx := context.Background()

	if *dryRun {
		log.Info("DRY RUN mode, no data will be written to the database")
	}

	// Connect database
	db, err := storage.New(ctx, dsn, storage.ImportPool())
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database connected")

	var state *importer.StateDB
	if *stateDir != "" {
		state, err = importer.OpenStateDB(*stateDir)
		if err != nil {
			log.Error("failed to open state db", "error", err)
			os.Exit(1)
		}
		defer state.Close()
	}

	// Run import
	times := cfg.Engine.Generator().TeachingTimes
	imp := importer.New(db, state, log, *dryRun).WithChecks(catalog.RequireTiers(times.Has))
	stats, err := imp.Import(ctx, *catalogPath)
	if err != nil {
		log.Error("import failed", "error", err)
		printStats(log, stats)
		os.Exit(1)
	}

	printStats(log, stats)
	log.Info("import complete")
}

func printStats(log *slog.Logger, stats *importer.Stats) {
	log.Info("import stats",
		"files_processed", stats.FilesProcessed,
		"files_skipped", stats.FilesSkipped,
		"files_errored", stats.FilesErrored,
		"movements_read", stats.MovementsRead,
		"movements_upserted", stats.MovementsUpserted,
		"catalog_size", stats.CatalogSize,
		"catalog_version", stats.CatalogVersion,
	)
}
