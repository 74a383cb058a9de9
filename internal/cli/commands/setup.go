package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/tephra-labs/tephra/internal/catalog"
	"github.com/tephra-labs/tephra/internal/cli/config"
	"github.com/tephra-labs/tephra/internal/cli/output"
	"github.com/tephra-labs/tephra/internal/history"
	"github.com/tephra-labs/tephra/internal/op"
	"github.com/tephra-labs/tephra/internal/op/stdops"
	"github.com/tephra-labs/tephra/internal/workspace"
)

// CommandContext holds common dependencies for CLI commands. One-shot
// commands build a fresh context per invocation; the shell and the serve
// command keep a single context alive across many verbs.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Manager  *workspace.Manager
	Ops      *op.Registry
	Catalog  *catalog.Registry
	Recorder *history.Recorder
	Renderer *output.Renderer

	// autosave persists the workspace after every successful mutation.
	// One-shot commands set it so edits survive process exit; the shell
	// leaves saving to the save command.
	autosave bool
}

// NewCommandContext creates a CommandContext with the full engine wired up.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	cc, err := newEngineContext(cfg, logger, r)
	if err != nil {
		return nil, nil, err
	}
	cc.autosave = true

	cleanup := func() {
		cc.Close()
	}
	return cc, cleanup, nil
}

// newEngineContext wires the operation registry, catalog stores, history
// recorder, and workspace manager into one context.
func newEngineContext(cfg *config.Config, logger *slog.Logger, r *output.Renderer) (*CommandContext, error) {
	ops := op.NewRegistry()
	if err := ops.Install(stdops.Modules()...); err != nil {
		return nil, err
	}

	cat := catalog.NewRegistry(logger)
	if err := mountStores(cat, cfg); err != nil {
		_ = cat.Close()
		return nil, err
	}

	rec := history.NewRecorder(logger)

	mgr := workspace.NewManager(workspace.Config{
		Ops:      ops,
		Opener:   cat,
		Recorder: rec,
		Workers:  cfg.Workers,
		Logger:   logger,
	})

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Manager:  mgr,
		Ops:      ops,
		Catalog:  cat,
		Recorder: rec,
		Renderer: r,
	}, nil
}

// Close releases the catalog stores and any open history databases. Open
// workspaces are left alone; callers decide whether pending edits persist.
func (cc *CommandContext) Close() {
	if cc.Catalog != nil {
		_ = cc.Catalog.Close()
	}
	if cc.Recorder != nil {
		_ = cc.Recorder.Close()
	}
}

// mountStores registers the default local store under the configured catalog
// directory plus every store named in the configuration.
func mountStores(cat *catalog.Registry, cfg *config.Config) error {
	if cfg.CatalogDir != "" {
		if err := cat.Register(catalog.NewLocal(catalog.DefaultStore, cfg.CatalogDir)); err != nil {
			return err
		}
	}
	for name, sc := range cfg.Stores {
		var s catalog.Store
		switch sc.Type {
		case "", "local":
			s = catalog.NewLocal(name, sc.Path)
		case "duckdb":
			db, err := catalog.OpenDuckDB(name, sc.Path)
			if err != nil {
				return fmt.Errorf("store %s: %w", name, err)
			}
			s = db
		default:
			return fmt.Errorf("store %s: unknown type %q", name, sc.Type)
		}
		if err := cat.Register(s); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions shared across commands

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise falls back to environment variables.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	// Fallback: read from environment with defaults
	workers := config.DefaultWorkers
	if v := os.Getenv("TEPHRA_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			workers = n
		}
	}

	return &config.Config{
		WorkspaceDir: getEnvOrDefault("TEPHRA_WORKSPACE_DIR", config.DefaultWorkspaceDir),
		CatalogDir:   os.Getenv("TEPHRA_CATALOG_DIR"),
		Workers:      workers,
		Verbose:      os.Getenv("TEPHRA_VERBOSE") == "true",
		OutputFormat: getEnvOrDefault("TEPHRA_OUTPUT", config.DefaultOutput),
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// targetDir resolves the directory a lifecycle command operates on: the
// positional argument when given, the configured workspace directory
// otherwise.
func (cc *CommandContext) targetDir(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	if cc.Cfg.WorkspaceDir != "" {
		return cc.Cfg.WorkspaceDir
	}
	return "."
}

// workspaceAt returns the open workspace for dir, opening it from disk when
// this context has not touched it yet.
func (cc *CommandContext) workspaceAt(dir string) (*workspace.Workspace, error) {
	base, err := workspace.Resolve(dir)
	if err != nil {
		return nil, err
	}
	if w, err := cc.Manager.Get(base); err == nil {
		return w, nil
	}
	return cc.Manager.Open(base)
}

// persist saves w when the context runs in autosave mode.
func (cc *CommandContext) persist(w *workspace.Workspace) error {
	if !cc.autosave {
		return nil
	}
	return w.Save()
}
