package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"tailscale.com/tsnet"

	"github.com/claude/freeflow/internal/catalog"
	"github.com/claude/freeflow/internal/config"
	"github.com/claude/freeflow/internal/engine"
	"github.com/claude/freeflow/internal/mcp"
	"github.com/claude/freeflow/internal/metrics"
	"github.com/claude/freeflow/internal/models"
	"github.com/claude/freeflow/internal/server"
	"github.com/claude/freeflow/internal/storage"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("FreeFlow starting", "version", Version)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Run migrations
	dsn := cfg.Database.DSN()
	version, err := storage.RunMigrations(dsn, "migrations")
	if err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied", "version", version)

	if *migrateOnly {
		log.Info("migrate-only: exiting")
		return
	}

	// Connect database
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	db, err := storage.New(ctx, dsn, storage.ServerPool())
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database connected")

	// Load catalog
	m := metrics.New()
	var (
		src  catalog.Source
		snap *catalog.Snapshot
	)
	switch cfg.Catalog.Source {
	case config.SourceDatabase:
		if n, err := db.CountMovements(ctx); err == nil && n == 0 {
			log.Warn("movements table is empty; run freeflow-import first")
		}
		src = db
		snap, err = storage.LoadSnapshot(ctx, db, cfg.Catalog.CacheSize)
	default:
		src = catalog.FileSource{Path: cfg.Catalog.Path}
		var movements []models.Movement
		if movements, err = src.LoadMovements(ctx); err == nil {
			snap, err = catalog.NewSnapshot(movements, cfg.Catalog.CacheSize)
		}
	}
	if err != nil {
		log.Error("failed to load catalog", "source", cfg.Catalog.Source, "error", err)
		os.Exit(1)
	}
	m.CatalogLoaded(snap.Len(), nil)
	log.Info("catalog loaded", "source", cfg.Catalog.Source, "movements", snap.Len(), "version", snap.Version())

	eng := engine.New(catalog.NewStore(snap), cfg.Engine.Generator(), m, log)
	if err := eng.CheckCatalog(snap); err != nil {
		log.Error("catalog does not match engine config", "error", err)
		os.Exit(1)
	}

	if cfg.Catalog.Watch {
		w, err := catalog.NewWatcher(cfg.Catalog.Path, eng.Store(), cfg.Catalog.CacheSize, log, eng.CheckCatalog)
		if err != nil {
			log.Error("catalog watcher failed", "error", err)
			os.Exit(1)
		}
		w.OnReload(func(s *catalog.Snapshot, err error) {
			if err != nil {
				m.CatalogLoaded(0, err)
				return
			}
			m.CatalogLoaded(s.Len(), nil)
		})
		go w.Run(ctx)
		log.Info("watching catalog file", "path", cfg.Catalog.Path)
	}

	// Create server
	srv := server.New(eng, db, cfg.Auth.APIKey, log)
	srv.SetCatalogSource(src, cfg.Catalog.CacheSize)
	srv.Mount("/metrics", m.Handler())
	srv.Mount("/mcp", mcpserver.NewStreamableHTTPServer(mcp.New(mcp.Local{Engine: eng}, Version, log)))

	// Start server on tsnet or plain HTTP
	var listener net.Listener
	var tsServer *tsnet.Server

	if cfg.Tailscale.Enabled {
		tsServer = &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	httpSrv := &http.Server{Handler: srv}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	log.Info("server stopped")
}
