// Command freeflow-cli plans and checks sequences from the terminal and serves
// the MCP tools over stdio. It runs against a local catalog file or, with
// --remote, against a FreeFlow server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/claude/freeflow/internal/catalog"
	"github.com/claude/freeflow/internal/config"
	"github.com/claude/freeflow/internal/engine"
	"github.com/claude/freeflow/internal/mcp"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath  string
	catalogPath string
	remote      string
	logLevel    string
	asJSON      bool
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "freeflow-cli",
		Short: "Plan and validate movement sequences",
		Long: `freeflow-cli generates timed movement sequences, validates hand-built
ones against the safety rules, and exposes the same tools to MCP clients
over stdio.

By default it loads the catalog file named in the config (or --catalog).
With --remote it calls a FreeFlow server's REST API instead.`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "config file (YAML); engine and catalog sections are used")
	pf.StringVar(&opts.catalogPath, "catalog", "", "catalog YAML file, overrides the config")
	pf.StringVar(&opts.remote, "remote", os.Getenv("FREEFLOW_REMOTE"), "FreeFlow server base URL (e.g. http://freeflow)")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.BoolVar(&opts.asJSON, "json", false, "print JSON instead of text")

	cmd.AddCommand(
		generateCmd(opts),
		validateCmd(opts),
		budgetCmd(opts),
		movementsCmd(opts),
		mcpCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "freeflow-cli version %s\n", Version)
			},
		},
	)
	return cmd
}

// logger writes to stderr so stdout stays clean for output and MCP stdio.
func (o *options) logger() *slog.Logger {
	level := slog.LevelWarn
	switch strings.ToLower(o.logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// planner returns the remote client when --remote is set, otherwise an
// in-process engine over the catalog file.
func (o *options) planner(ctx context.Context, log *slog.Logger) (mcp.Planner, error) {
	if o.remote != "" {
		log.Info("using remote planner", "url", o.remote)
		return mcp.NewHTTPClient(o.remote), nil
	}

	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadEngine(o.configPath); err != nil {
			return nil, err
		}
	}
	path := cfg.Catalog.Path
	if o.catalogPath != "" {
		path = o.catalogPath
	} else if cfg.Catalog.Source != config.SourceFile {
		return nil, fmt.Errorf("catalog source %q needs --remote or --catalog", cfg.Catalog.Source)
	}

	movements, err := catalog.FileSource{Path: path}.LoadMovements(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := catalog.NewSnapshot(movements, cfg.Catalog.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	eng := engine.New(catalog.NewStore(snap), cfg.Engine.Generator(), nil, log)
	if err := eng.CheckCatalog(snap); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	log.Info("catalog loaded", "path", path, "movements", snap.Len(), "version", snap.Version())

	return mcp.Local{Engine: eng}, nil
}
