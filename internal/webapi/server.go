// Package webapi exposes workspace operations over HTTP for external
// front-ends. Every response is a JSON envelope with HTTP status 200; the
// envelope's status field, not the transport, reports the outcome, so
// clients can tell "service is down" apart from "operation failed".
package webapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/tephra-labs/tephra/internal/catalog"
	"github.com/tephra-labs/tephra/internal/op"
	"github.com/tephra-labs/tephra/internal/workspace"
)

// Server hosts the workspace service.
type Server struct {
	manager *workspace.Manager
	catalog *catalog.Registry
	ops     *op.Registry
	logger  *slog.Logger

	addr            string
	version         string
	shutdownTimeout time.Duration
}

// Config holds the dependencies and settings for a Server.
type Config struct {
	Manager *workspace.Manager
	Catalog *catalog.Registry
	Ops     *op.Registry
	Logger  *slog.Logger

	Addr            string
	Version         string
	ShutdownTimeout time.Duration
}

// NewServer creates a workspace service from cfg.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Server{
		manager:         cfg.Manager,
		catalog:         cfg.Catalog,
		ops:             cfg.Ops,
		logger:          logger,
		addr:            cfg.Addr,
		version:         cfg.Version,
		shutdownTimeout: timeout,
	}
}

// Routes builds the handler tree. Base directories arrive path-escaped so
// absolute paths survive as a single segment.
func (s *Server) Routes() http.Handler {
	r := chi.NewMux()

	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Get("/", s.handleInfo)

	r.Route("/ws", func(r chi.Router) {
		r.Get("/init", s.handleInit)
		r.Get("/get/{base}", s.handleGet)
		r.Get("/del/{base}", s.handleDelete)
		r.Get("/clean/{base}", s.handleClean)
		r.Post("/res/set/{base}/{res}", s.handleSetResource)
		r.Post("/res/write/{base}/{res}", s.handleWriteResource)
	})

	return r
}

// Serve runs the service until ctx is cancelled, then shuts down gracefully
// within the configured timeout.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting workspace service", "addr", s.addr)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Routes(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("workspace service: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		s.logger.Debug("shutting down workspace service")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
