package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Neonotso/budget-agent/internal/backend"
	"github.com/Neonotso/budget-agent/internal/cli"
	apphttp "github.com/Neonotso/budget-agent/internal/http"
	"github.com/Neonotso/budget-agent/internal/ledger"
	"github.com/Neonotso/budget-agent/internal/log"
	"github.com/Neonotso/budget-agent/internal/tools"
)

const (
	shutdownTimeout   = 30 * time.Second
	connectMaxBackoff = time.Minute
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancelStartup()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	factory := backend.NewFactory(logger)
	store, err := factory.CreateBackend(startupCtx, bcfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}
	events, err := factory.CreatePublisher(startupCtx, bcfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize event publisher", err)
	}

	opts := append(cfg.LedgerOptions(), ledger.WithLogger(logger))
	if events.Publisher != nil {
		opts = append(opts, ledger.WithPublisher(events.Publisher))
	}
	manager := ledger.New(store.Store, opts...)

	toolset := tools.New(manager,
		tools.WithRequireKnownCategory(cfg.RequireKnownCategory),
		tools.WithLogger(logger),
	)
	srv := apphttp.NewServer(toolset, apphttp.Options{
		Addr:        ":" + cfg.Port,
		ToolTimeout: cfg.ToolTimeout,
		RateLimit:   cfg.ToolRateLimit,
		TrustProxy:  cfg.TrustProxy,
		Ready:       manager.Connected,
		Logger:      logger,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = cfg.ToolTimeout + 5*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if events.Cleanup != nil {
			if err := events.Cleanup(); err != nil {
				logger.Error("Event publisher close error", log.FieldError, err)
			}
		}
		if err := store.Close(); err != nil {
			logger.Error("Backend close error", log.FieldError, err)
		}
	})

	go connectWithRetry(ctx, manager, logger)

	logger.Info("Starting budget agent",
		"port", cfg.Port,
		log.FieldBackend, cfg.DataBackend,
		"location", store.Location,
		"events", events.Publisher != nil,
		log.FieldOperation, log.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cli.Fatal(logger, "Server error", err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

// connectWithRetry keeps trying to connect the ledger until it succeeds or
// ctx is done. Until then /readyz reports unavailable and every tool answers
// with a not-connected error.
func connectWithRetry(ctx context.Context, m *ledger.Manager, logger *log.Logger) {
	backoff := time.Second
	for {
		err := m.Connect(ctx)
		if err == nil {
			return
		}
		logger.Warn("Ledger connect failed, retrying", log.FieldError, err, "retry_in", backoff.String())
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, connectMaxBackoff)
	}
}
