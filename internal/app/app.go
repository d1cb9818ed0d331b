package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shaiso/Tempo/internal/api"
	"github.com/shaiso/Tempo/internal/config"
	"github.com/shaiso/Tempo/internal/lifecycle"
	"github.com/shaiso/Tempo/internal/queue"
	"github.com/shaiso/Tempo/internal/repo"
	"github.com/shaiso/Tempo/internal/scheduler"
	"github.com/shaiso/Tempo/internal/worker"
)

// JobStore — хранилище jobs, нужное всем компонентам.
type JobStore interface {
	api.JobStore
	lifecycle.JobStore
	scheduler.JobClaimer
}

// RunStore — хранилище runs, нужное всем компонентам.
type RunStore interface {
	api.RunStore
	lifecycle.RunStore
	scheduler.RunCleaner
}

const readyTimeout = 3 * time.Second

var (
	_ JobStore = (*repo.JobRepo)(nil)
	_ JobStore = (*repo.MemoryJobRepo)(nil)
	_ RunStore = (*repo.RunRepo)(nil)
	_ RunStore = (*repo.MemoryRunRepo)(nil)
)

// App — собранные зависимости процесса.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Jobs    JobStore
	Runs    RunStore
	Queue   queue.Queue
	Manager *lifecycle.Manager

	closers []func()
	checks  []func(ctx context.Context) error
}

// pinger — зависимость с проверкой доступности (postgres, redis, rabbitmq).
type pinger interface {
	Ping(ctx context.Context) error
}

// Open подключает хранилище и очередь по конфигурации и собирает Manager.
// Для postgres применяет миграции.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	switch cfg.Store.Backend {
	case config.StoreMemory:
		store := repo.NewMemoryStore()
		a.Jobs, a.Runs = store.Jobs(), store.Runs()
		logger.Warn("using in-memory store, data is lost on exit")

	default:
		pool, err := repo.NewPool(ctx, cfg.DB.URL, cfg.DB.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.checks = append(a.checks, pool.Ping)
		logger.Info("database connected")

		if err := repo.Migrate(ctx, pool); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.Jobs, a.Runs = repo.NewJobRepo(pool), repo.NewRunRepo(pool)
	}

	q, err := OpenQueue(ctx, cfg.Queue, cfg.Worker.Concurrency, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := q.Close(); err != nil {
			logger.Warn("failed to close queue", "error", err)
		}
	})
	if p, ok := q.(pinger); ok {
		a.checks = append(a.checks, p.Ping)
	}
	logger.Info("queue opened", "backend", cfg.Queue.Backend)

	a.Queue = q
	a.Manager = NewManager(cfg, a.Jobs, a.Runs, q, logger)
	return a, nil
}

// NewManager собирает lifecycle.Manager со всеми встроенными executor'ами.
func NewManager(cfg *config.Config, jobs JobStore, runs RunStore, q queue.Queue, logger *slog.Logger) *lifecycle.Manager {
	registry := worker.NewRegistry(worker.ExecConfig{
		PythonBin: cfg.Exec.PythonBin,
		ShellBin:  cfg.Exec.ShellBin,
		Timeout:   cfg.Exec.Timeout,
	})

	return lifecycle.New(lifecycle.Config{
		Jobs:       jobs,
		Runs:       runs,
		Executor:   registry,
		Queue:      q,
		Logger:     logger.With("component", "lifecycle"),
		Timeout:    cfg.Exec.Timeout,
		StaleGrace: cfg.Worker.StaleGrace,
		MaxDelay:   cfg.Retry.MaxDelay,
	})
}

// Scheduler создаёт poller due jobs.
func (a *App) Scheduler() *scheduler.Scheduler {
	return scheduler.New(scheduler.Config{
		Jobs:      a.Jobs,
		Runs:      a.Runs,
		Enqueuer:  a.Manager,
		Logger:    a.Logger.With("component", "scheduler"),
		BatchSize: a.Config.Scheduler.BatchSize,
		Retention: a.Config.Runs.Retention,
	})
}

// Worker создаёт пул consumer'ов с reconcile-циклом.
func (a *App) Worker() *worker.Worker {
	return worker.New(worker.Config{
		Queue:        a.Queue,
		Processor:    a.Manager,
		Reconciler:   a.Manager,
		Concurrency:  a.Config.Worker.Concurrency,
		PollInterval: a.Config.Worker.PollInterval,
		Logger:       a.Logger.With("component", "worker"),
	})
}

// APIHandler создаёт REST API handler.
func (a *App) APIHandler() *api.Handler {
	return api.NewHandler(api.Config{
		Jobs:   a.Jobs,
		Runs:   a.Runs,
		Runner: a.Manager,
		APIKey: a.Config.API.Key,
		Logger: a.Logger.With("component", "api"),
	})
}

// Ready проверяет доступность хранилища и очереди.
func (a *App) Ready(ctx context.Context) error {
	for _, check := range a.checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Mux создаёт mux с /healthz, /metrics и /readyz.
func (a *App) Mux() *http.ServeMux {
	mux := NewMux()
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		if err := a.Ready(ctx); err != nil {
			a.Logger.Warn("readiness check failed", "error", err)
			http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "ready")
	})
	return mux
}

// Close освобождает ресурсы в обратном порядке.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
