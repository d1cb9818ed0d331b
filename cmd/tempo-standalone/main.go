// Tempo Standalone — API, scheduler и worker в одном процессе.
//
// Режим для разработки: с STORE_BACKEND=memory и QUEUE_BACKEND=memory
// не требует ни PostgreSQL, ни брокера. Слушает API_PORT; /healthz и /metrics
// обслуживаются тем же сервером.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Tempo/internal/app"
	"github.com/shaiso/Tempo/internal/config"
	"github.com/shaiso/Tempo/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		telemetry.SetupLogger("INFO", "json").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting tempo-standalone",
		"store", cfg.Store.Backend,
		"queue", cfg.Queue.Backend,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	w := a.Worker()
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		a.Scheduler().Run(ctx, cfg.Scheduler.PollInterval, cfg.Runs.CleanupInterval)
	}()

	mux := a.Mux()
	a.APIHandler().RegisterRoutes(mux)

	if err := app.Serve(ctx, config.Addr(cfg.API.Port), mux, logger); err != nil {
		logger.Error("server error", "error", err)
		cancel()
	}

	<-schedDone
	w.Stop()
	logger.Info("tempo-standalone stopped")
}
