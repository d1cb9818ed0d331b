// Tempo API — REST API управления jobs и просмотра runs.
//
// Ручной запуск (POST /api/v1/jobs/{id}/run) создаёт run и ставит его
// в очередь выполнения, поэтому API подключается к той же очереди, что и worker.
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
	logger.Info("starting tempo-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	mux := a.Mux()
	a.APIHandler().RegisterRoutes(mux)

	if cfg.API.Key == "" {
		logger.Warn("API_KEY is empty, authentication disabled")
	}

	if err := app.Serve(ctx, config.Addr(cfg.API.Port), mux, logger); err != nil {
		logger.Error("server error", "error", err)
	}

	logger.Info("tempo-api stopped")
}
