package storage

import (
	"testing"
	"time"
)

const testDSN = "postgres://u:p@localhost:5432/freeflow?sslmode=disable"

// TestPoolConfig verifies pool options override pgxpool defaults and name
// the connection.
func TestPoolConfig(t *testing.T) {
	cfg, err := PoolConfig(testDSN, ServerPool())
	if err != nil {
		t.Fatalf("PoolConfig: %v", err)
	}
	if cfg.MaxConns != 8 || cfg.MinConns != 1 {
		t.Errorf("conns = %d..%d, want 1..8", cfg.MinConns, cfg.MaxConns)
	}
	if cfg.HealthCheckPeriod != 30*time.Second {
		t.Errorf("health check period = %v", cfg.HealthCheckPeriod)
	}
	if got := cfg.ConnConfig.RuntimeParams["application_name"]; got != "freeflow" {
		t.Errorf("application_name = %q, want freeflow", got)
	}
}

// TestPoolConfigKeepsDSN verifies an application name in the DSN wins and
// zero options leave pgxpool defaults alone.
func TestPoolConfigKeepsDSN(t *testing.T) {
	base, err := PoolConfig(testDSN, PoolOptions{})
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := PoolConfig(testDSN+"&application_name=reports&pool_max_conns=3", ImportPool())
	if err != nil {
		t.Fatalf("PoolConfig: %v", err)
	}
	if got := cfg.ConnConfig.RuntimeParams["application_name"]; got != "reports" {
		t.Errorf("application_name = %q, want reports", got)
	}
	if cfg.MaxConns != 2 {
		t.Errorf("max conns = %d, want 2", cfg.MaxConns)
	}
	if cfg.HealthCheckPeriod != base.HealthCheckPeriod {
		t.Errorf("health check period = %v, want default %v", cfg.HealthCheckPeriod, base.HealthCheckPeriod)
	}
}

// TestPoolConfigRejects verifies bad DSNs and inverted pool bounds fail.
func TestPoolConfigRejects(t *testing.T) {
	if _, err := PoolConfig("postgres://u:p@localhost:notaport/db", PoolOptions{}); err == nil {
		t.Error("expected error for bad port")
	}
	if _, err := PoolConfig(testDSN, PoolOptions{MinConns: 4, MaxConns: 2}); err == nil {
		t.Error("expected error for min conns above max conns")
	}
}
