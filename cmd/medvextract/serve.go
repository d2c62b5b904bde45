package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/medvextract/medvextract-api/internal/platform/logger"
)

// ServeCmd runs the HTTP service and its background workers.
func ServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the extraction API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			log, err := logger.Setup(cfg.Server)
			if err != nil {
				return fmt.Errorf("failed to set up logger: %w", err)
			}
			log.Info("server configuration loaded",
				"port", cfg.Server.Port,
				"log_level", cfg.Server.LogLevel,
				"database_driver", cfg.Database.Driver,
				"cache_backend", cfg.Cache.Backend,
				"extraction_provider", cfg.Extraction.Provider)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := newApplication(ctx, cfg, log, appOptions{})
			if err != nil {
				return err
			}
			defer app.cleanup()

			return app.serve(ctx, net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)))
		},
	}
}

// serve starts the workers and the HTTP server on addr, and shuts both down
// when ctx ends. Pending jobs from a previous run are queued at startup.
func (app *application) serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return app.serveListener(ctx, listener)
}

func (app *application) serveListener(ctx context.Context, listener net.Listener) error {
	if err := app.taskRunner.Start(ctx, app.orchestrator.RecoverPending); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to start task runner: %w", err)
	}

	server := &http.Server{
		Handler:      app.router(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.logger.Info("starting server", "addr", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.config.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown failed: %w", err))
		}
		if err := app.taskRunner.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("task runner shutdown failed: %w", err))
		}
		return errors.Join(errs...)
	})

	err := g.Wait()
	if err != nil {
		app.logger.Error("server stopped with error", "error", err)
		return err
	}
	app.logger.Info("server shutdown completed")
	return nil
}
