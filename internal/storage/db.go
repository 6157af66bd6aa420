package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lookup by ID matches no row.
var ErrNotFound = errors.New("not found")

// PoolOptions sizes the connection pool. Zero fields keep pgxpool's defaults.
type PoolOptions struct {
	// ApplicationName is reported to PostgreSQL unless the DSN already sets one.
	ApplicationName string
	MaxConns        int32
	MinConns        int32
	// HealthCheckPeriod bounds how long a dead connection can sit idle.
	HealthCheckPeriod time.Duration
}

// ServerPool suits the API server: catalog reloads and sequence history
// share the pool with request handlers.
func ServerPool() PoolOptions {
	return PoolOptions{
		ApplicationName:   "freeflow",
		MaxConns:          8,
		MinConns:          1,
		HealthCheckPeriod: 30 * time.Second,
	}
}

// ImportPool suits a one-shot catalog import, which runs one transaction at a time.
func ImportPool() PoolOptions {
	return PoolOptions{
		ApplicationName: "freeflow-import",
		MaxConns:        2,
	}
}

// PoolConfig parses dsn and applies opts on top of it.
func PoolConfig(dsn string, opts PoolOptions) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}
	if opts.MinConns > 0 && opts.MaxConns > 0 && opts.MinConns > opts.MaxConns {
		return nil, fmt.Errorf("min conns %d exceeds max conns %d", opts.MinConns, opts.MaxConns)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = opts.HealthCheckPeriod
	}
	if opts.ApplicationName != "" {
		if _, set := cfg.ConnConfig.RuntimeParams["application_name"]; !set {
			cfg.ConnConfig.RuntimeParams["application_name"] = opts.ApplicationName
		}
	}
	return cfg, nil
}

// DB wraps a pgxpool.Pool and provides the catalog, sequence and import
// log repositories.
type DB struct {
	Pool *pgxpool.Pool
}

// New connects a pool sized by opts and checks it with a ping.
func New(ctx context.Context, dsn string, opts PoolOptions) (*DB, error) {
	cfg, err := PoolConfig(dsn, opts)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// RunMigrations applies pending catalog, sequence and import log migrations
// from migrationsPath and reports the schema version reached.
func RunMigrations(dsn, migrationsPath string) (uint, error) {
	m, err := migrate.New("file://"+migrationsPath, dsn)
	if err != nil {
		return 0, fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("running migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}
