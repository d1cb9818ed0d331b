// Tempo Worker — выполняет runs из очереди.
//
// Worker:
//   - Получает WorkUnit из очереди (RabbitMQ, Redis или memory)
//   - Выполняет payload стратегией по payload["type"]
//   - Записывает результат и планирует retry с exponential backoff
//   - Периодически возвращает в очередь потерянные runs
//
// Workers масштабируются горизонтально.
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
	logger.Info("starting tempo-worker", "concurrency", cfg.Worker.Concurrency)

	// graceful shutdown
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

	if err := app.Serve(ctx, config.Addr(cfg.Worker.Port), a.Mux(), logger); err != nil {
		logger.Error("http server error", "error", err)
		cancel()
	}

	// Отмена ctx прерывает выполняющиеся подпроцессы, Stop дожидается consumer'ов
	w.Stop()
	logger.Info("tempo-worker stopped")
}
