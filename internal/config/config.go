package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/claude/freeflow/internal/budget"
	"github.com/claude/freeflow/internal/catalog"
	"github.com/claude/freeflow/internal/generator"
	"github.com/claude/freeflow/internal/models"
	"github.com/claude/freeflow/internal/rules"
)

// Catalog sources.
const (
	SourceFile     = "file"
	SourceDatabase = "database"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Engine    EngineConfig    `yaml:"engine"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// CatalogConfig selects where movements are loaded from.
type CatalogConfig struct {
	Source    string `yaml:"source"` // "file" or "database"
	Path      string `yaml:"path"`
	Watch     bool   `yaml:"watch"`
	CacheSize int    `yaml:"cache_size"`
}

// EngineConfig tunes budgeting and the rule set.
type EngineConfig struct {
	TeachingTimes          map[int]int `yaml:"teaching_times"`
	TransitionSeconds      *int        `yaml:"transition_seconds"`
	OverloadCeiling        float64     `yaml:"overload_ceiling"`
	ResetPatterns          []string    `yaml:"reset_patterns"`
	CooldownRetries        int         `yaml:"cooldown_retries"`
	MinMovementsForBalance int         `yaml:"min_movements_for_balance"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Load reads the server config from a YAML file, then applies environment
// variable overrides. A .env file in the working directory is loaded first
// when present; variables already set in the environment win.
// Env vars use the prefix FREEFLOW_ and underscore-separated paths:
//
//	FREEFLOW_SERVER_HOST, FREEFLOW_SERVER_PORT,
//	FREEFLOW_DB_HOST, FREEFLOW_DB_PORT, FREEFLOW_DB_NAME,
//	FREEFLOW_DB_USER, FREEFLOW_DB_PASSWORD, FREEFLOW_DB_SSLMODE,
//	FREEFLOW_AUTH_API_KEY,
//	FREEFLOW_TAILSCALE_ENABLED, FREEFLOW_TAILSCALE_HOSTNAME, FREEFLOW_TAILSCALE_STATE_DIR,
//	FREEFLOW_CATALOG_SOURCE, FREEFLOW_CATALOG_PATH, FREEFLOW_CATALOG_WATCH,
//	FREEFLOW_ENGINE_TRANSITION_SECONDS, FREEFLOW_ENGINE_OVERLOAD_CEILING
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadEngine reads the same file but only validates the catalog and engine
// sections. Used by the CLI, which needs no server or database.
func LoadEngine(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateEngine(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Default returns a config with every default applied and no file read.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func read(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Catalog.Source == "" {
		c.Catalog.Source = SourceFile
	}
	if c.Catalog.Path == "" && c.Catalog.Source == SourceFile {
		c.Catalog.Path = "catalog/movements.yaml"
	}
	if c.Catalog.CacheSize == 0 {
		c.Catalog.CacheSize = catalog.DefaultCacheSize
	}

	e := &c.Engine
	if len(e.TeachingTimes) == 0 {
		e.TeachingTimes = make(map[int]int)
		for tier, secs := range budget.DefaultTeachingTimes() {
			e.TeachingTimes[int(tier)] = secs
		}
	}
	if e.TransitionSeconds == nil {
		tr := 60
		e.TransitionSeconds = &tr
	}
	rc := rules.DefaultConfig()
	if e.OverloadCeiling == 0 {
		e.OverloadCeiling = rc.OverloadCeiling
	}
	if len(e.ResetPatterns) == 0 {
		for _, p := range rc.ResetPatterns {
			e.ResetPatterns = append(e.ResetPatterns, string(p))
		}
	}
	if e.CooldownRetries == 0 {
		e.CooldownRetries = generator.DefaultCooldownRetries
	}
	if e.MinMovementsForBalance == 0 {
		e.MinMovementsForBalance = rc.MinMovementsForBalance
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FREEFLOW_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("FREEFLOW_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FREEFLOW_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FREEFLOW_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FREEFLOW_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FREEFLOW_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FREEFLOW_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FREEFLOW_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("FREEFLOW_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("FREEFLOW_TAILSCALE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = b
		}
	}
	if v := os.Getenv("FREEFLOW_TAILSCALE_HOSTNAME"); v != "" {
		cfg.Tailscale.Hostname = v
	}
	if v := os.Getenv("FREEFLOW_TAILSCALE_STATE_DIR"); v != "" {
		cfg.Tailscale.StateDir = v
	}
	if v := os.Getenv("FREEFLOW_CATALOG_SOURCE"); v != "" {
		cfg.Catalog.Source = strings.ToLower(v)
	}
	if v := os.Getenv("FREEFLOW_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("FREEFLOW_CATALOG_WATCH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Catalog.Watch = b
		}
	}
	if v := os.Getenv("FREEFLOW_ENGINE_TRANSITION_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.TransitionSeconds = &n
		}
	}
	if v := os.Getenv("FREEFLOW_ENGINE_OVERLOAD_CEILING"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.OverloadCeiling = f
		}
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	return c.validateEngine()
}

func (c *Config) validateEngine() error {
	switch c.Catalog.Source {
	case SourceFile:
		if c.Catalog.Path == "" {
			return fmt.Errorf("catalog.path is required for the file source")
		}
	case SourceDatabase:
		if c.Catalog.Watch {
			return fmt.Errorf("catalog.watch is only supported for the file source")
		}
	default:
		return fmt.Errorf("catalog.source must be %q or %q, got %q", SourceFile, SourceDatabase, c.Catalog.Source)
	}
	if c.Catalog.CacheSize < 0 {
		return fmt.Errorf("catalog.cache_size must not be negative")
	}

	e := c.Engine
	for tier, secs := range e.TeachingTimes {
		if tier <= 0 {
			return fmt.Errorf("engine.teaching_times: tier %d must be positive", tier)
		}
		if secs <= 0 {
			return fmt.Errorf("engine.teaching_times: tier %d needs a positive teaching time", tier)
		}
	}
	if e.TransitionSeconds != nil && *e.TransitionSeconds < 0 {
		return fmt.Errorf("engine.transition_seconds must not be negative")
	}
	if e.OverloadCeiling <= 0 || e.OverloadCeiling > 1 {
		return fmt.Errorf("engine.overload_ceiling must be in (0, 1], got %v", e.OverloadCeiling)
	}
	for _, p := range e.ResetPatterns {
		if _, err := models.ParsePattern(p); err != nil {
			return fmt.Errorf("engine.reset_patterns: %w", err)
		}
	}
	if e.CooldownRetries < 0 {
		return fmt.Errorf("engine.cooldown_retries must not be negative")
	}
	return nil
}

// Generator converts the engine section into generator parameters.
// Call after Load; defaults are already applied.
func (e EngineConfig) Generator() generator.Config {
	times := make(budget.TeachingTimes, len(e.TeachingTimes))
	for tier, secs := range e.TeachingTimes {
		times[models.Tier(tier)] = secs
	}
	var reset []models.Pattern
	for _, p := range e.ResetPatterns {
		if pat, err := models.ParsePattern(p); err == nil {
			reset = append(reset, pat)
		}
	}
	tr := 60
	if e.TransitionSeconds != nil {
		tr = *e.TransitionSeconds
	}
	return generator.Config{
		TeachingTimes:      times,
		TransitionSeconds:  tr,
		MaxCooldownRetries: e.CooldownRetries,
		Rules: rules.Config{
			OverloadCeiling:        e.OverloadCeiling,
			ResetPatterns:          reset,
			MinMovementsForBalance: e.MinMovementsForBalance,
		},
	}
}
