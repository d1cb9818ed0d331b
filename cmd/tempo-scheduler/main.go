// Tempo Scheduler — poller due jobs.
//
// Каждые SCHEDULER_POLL_INTERVAL захватывает due jobs (SKIP LOCKED), создаёт
// pending runs и ставит их в очередь. Несколько экземпляров работают
// параллельно без выбора лидера. Раз в RUNS_CLEANUP_INTERVAL удаляет
// завершённые runs старше RUNS_RETENTION.
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
	logger.Info("starting tempo-scheduler")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	go func() {
		if err := app.Serve(ctx, config.Addr(cfg.Scheduler.Port), a.Mux(), logger); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Блокируется до отмены ctx
	a.Scheduler().Run(ctx, cfg.Scheduler.PollInterval, cfg.Runs.CleanupInterval)

	logger.Info("tempo-scheduler stopped")
}
