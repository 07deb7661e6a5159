package cli

import (
	"context"
	"flag"
	"net/http"
	"time"

	"github.com/google/subcommands"

	"github.com/andrewinci/actual-sync/internal/transport/httpapi"
	"github.com/andrewinci/actual-sync/internal/transport/httpapi/handler"
	"github.com/andrewinci/actual-sync/internal/transport/httpapi/middleware"
)

type serveCmd struct {
	app *App
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run periodic syncs and serve the trigger API" }
func (*serveCmd) Usage() string {
	return `actual-sync serve

  Runs a sync immediately and then every SYNC_POLL_INTERVAL. Serves the
  health endpoints and the JWT protected API on PORT:

    POST /api/v1/sync       run a sync now
    GET  /api/v1/runs/last  summary of the last completed run
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := c.app.setup()
	if err != nil {
		return c.app.fail(err)
	}
	defer e.Close()

	if err := e.cfg.ValidateServe(); err != nil {
		return c.app.fail(err)
	}

	svc, ledger, err := e.syncService(ctx)
	if err != nil {
		return c.app.fail(err)
	}
	log := e.log

	log.Info("Starting actual-sync server",
		"env", e.cfg.Env,
		"port", e.cfg.Port,
		"ledger_backend", e.cfg.LedgerBackend,
		"entries", len(svc.Specs()))

	jwtSvc := middleware.NewJWTService(e.cfg.ServerJWTSecret)
	r := httpapi.NewRouter(httpapi.Config{
		Logger:         log,
		AllowedOrigins: e.cfg.AllowedOrigins,
		SyncHandler:    handler.NewSyncHandler(svc, log),
		HealthHandler: handler.NewHealthHandler(map[string]handler.ReadinessChecker{
			"ledger": handler.ReadinessFunc(func(ctx context.Context) error {
				_, err := ledger.ListAccounts(ctx)
				return err
			}),
		}),
		JWTMiddleware: middleware.JWTMiddleware(jwtSvc),
	})

	// A run can take minutes: the write timeout leaves room for POST /api/v1/sync
	srv := &http.Server{
		Addr:         ":" + e.cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go svc.Run(ctx)
	log.Info("Sync service started", "poll_interval", e.cfg.SyncPollInterval)

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for termination signal
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-errCh:
		log.Error("Server failed to start", "error", err)
		svc.Stop()
		return subcommands.ExitFailure
	}

	svc.Stop()
	log.Info("Sync service stopped")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
		return subcommands.ExitFailure
	}

	log.Info("Server stopped gracefully")
	return subcommands.ExitSuccess
}
