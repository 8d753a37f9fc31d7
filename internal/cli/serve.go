package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/grocerylist/internal/backup"
	"github.com/dukerupert/grocerylist/internal/server"
	"github.com/spf13/cobra"
)

func newServeCommand(a *app) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and change feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				a.cfg.Port = port
			}
			return a.serve(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Listen port (overrides GROCERY_PORT)")
	return cmd
}

func (a *app) serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gs, conn, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	srv := server.New(ctx, conn, gs, a.cfg, a.logger)

	go srv.RateLimiter().Run(ctx, a.cfg.RateLimit.Window)

	backups := backup.NewManager(a.cfg.Backup, conn, a.logger.With("component", "backup"))
	if a.cfg.Backup.Scheduled() {
		backups.Start(ctx, a.cfg.Backup.Interval, a.cfg.Backup.Passphrase)
		defer backups.Stop()
		a.logger.Info("scheduled backups enabled", "interval", a.cfg.Backup.Interval)
	}

	httpServer := &http.Server{
		Addr:         a.cfg.Addr(),
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("grocery list running", "addr", "http://localhost"+a.cfg.Addr(), "db", a.cfg.DBPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
