package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Tempo/internal/domain"
	"github.com/shaiso/Tempo/internal/repo"
)

// JobStore — хранилище jobs. Реализуется repo.JobRepo и repo.MemoryJobRepo.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	List(ctx context.Context, filter repo.JobFilter) ([]domain.Job, int, error)
	Edit(ctx context.Context, job *domain.Job, edit repo.JobEdit) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RunStore — хранилище runs (только чтение).
type RunStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.JobRun, error)
	ListByJob(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]domain.JobRun, int, error)
}

// RunStarter создаёт run вне расписания. Реализуется lifecycle.Manager.
type RunStarter interface {
	RunNow(ctx context.Context, jobID uuid.UUID) (*domain.JobRun, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	jobs   JobStore
	runs   RunStore
	runner RunStarter
	apiKey string
	logger *slog.Logger
	now    func() time.Time
}

// Config — конфигурация для создания Handler.
type Config struct {
	Jobs   JobStore
	Runs   RunStore
	Runner RunStarter

	// APIKey — ожидаемое значение X-API-Key. Пустое — проверка отключена.
	APIKey string

	Logger *slog.Logger

	// Now — источник времени, подменяется в тестах.
	Now func() time.Time
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Handler{
		jobs:   cfg.Jobs,
		runs:   cfg.Runs,
		runner: cfg.Runner,
		apiKey: cfg.APIKey,
		logger: logger,
		now:    now,
	}
}
