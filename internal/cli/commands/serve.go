package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tephra-labs/tephra/internal/webapi"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(version string) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the workspace service",
		Long: `Start an HTTP service exposing workspace operations so external
front-ends (notebooks, UIs) can drive workspaces in this process.

Every response is a JSON envelope: {"status": "ok", "content": ...} or
{"status": "error", "error": {"type": ..., "message": ...}}. Mutations
are persisted after each successful set.`,
		Example: `  # Serve on the configured address
  tephra serve

  # Serve on a specific port
  tephra serve --addr 127.0.0.1:8099`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts, version)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "Listen address (default: 127.0.0.1:9090)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions, version string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	addr := cc.Cfg.Server.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	server := webapi.NewServer(webapi.Config{
		Manager:         cc.Manager,
		Catalog:         cc.Catalog,
		Ops:             cc.Ops,
		Logger:          cc.Logger,
		Addr:            addr,
		Version:         version,
		ShutdownTimeout: cc.Cfg.Server.ShutdownTimeout,
	})

	cc.Renderer.Println(fmt.Sprintf("Workspace service on http://%s", addr))
	cc.Renderer.Muted("Press Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Serve(ctx)
}
