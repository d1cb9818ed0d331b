package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Tempo/internal/domain"
	"github.com/shaiso/Tempo/internal/repo"
	"github.com/shaiso/Tempo/internal/telemetry"
)

// JobClaimer захватывает due jobs. Реализуется repo.JobRepo и repo.MemoryJobRepo.
type JobClaimer interface {
	ClaimDue(ctx context.Context, now time.Time, exclude []uuid.UUID, fn repo.ClaimFunc) (*domain.Job, *domain.JobRun, error)
}

// RunCleaner удаляет старые завершённые runs.
type RunCleaner interface {
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}

// Enqueuer ставит созданный run в очередь выполнения. Реализуется lifecycle.Manager.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *domain.Job, run *domain.JobRun) error
}

// Scheduler — poller, создающий runs для due jobs.
type Scheduler struct {
	jobs      JobClaimer
	runs      RunCleaner
	enqueuer  Enqueuer
	logger    *slog.Logger
	batchSize int
	retention time.Duration
	now       func() time.Time
}

// Config — конфигурация Scheduler.
type Config struct {
	Jobs      JobClaimer
	Runs      RunCleaner // опционально, без него Cleanup ничего не делает
	Enqueuer  Enqueuer
	Logger    *slog.Logger
	BatchSize int           // максимум jobs за один тик (default: 100)
	Retention time.Duration // срок хранения завершённых runs (default: 30 дней)

	// Now — источник времени, подменяется в тестах.
	Now func() time.Time
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		jobs:      cfg.Jobs,
		runs:      cfg.Runs,
		enqueuer:  cfg.Enqueuer,
		logger:    logger,
		batchSize: batchSize,
		retention: retention,
		now:       now,
	}
}

// TickResult — итог одного тика.
type TickResult struct {
	Claimed int
	Created int
}

// Tick выполняет один цикл опроса.
//
//  1. Захватывает due job (active, next_run <= now) в отдельной транзакции
//  2. В той же транзакции создаёт pending run и перепланирует job
//  3. После фиксации ставит run в очередь
//
// Повторяется, пока есть due jobs, но не больше BatchSize раз.
// Ошибка одного job не блокирует обработку остальных.
// Ошибка постановки в очередь только логируется: run уже сохранён,
// его подберёт lifecycle.Manager.Reconcile.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	telemetry.PollCycles.Inc()

	now := s.now().UTC()
	var result TickResult
	var seen []uuid.UUID

	for result.Claimed < s.batchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		job, run, err := s.jobs.ClaimDue(ctx, now, seen, func(job *domain.Job) (*domain.JobRun, error) {
			return s.prepare(job, now), nil
		})
		if errors.Is(err, repo.ErrNothingDue) {
			break
		}
		if err != nil {
			if job == nil {
				// Не удалось даже выбрать job — откладываем до следующего тика
				return result, fmt.Errorf("claim due job: %w", err)
			}
			s.logger.Error("failed to process due job",
				"job_id", job.ID,
				"job_name", job.Name,
				"error", err,
			)
			seen = append(seen, job.ID)
			continue
		}

		seen = append(seen, job.ID)
		result.Claimed++
		telemetry.JobsClaimed.Inc()

		if run == nil {
			continue
		}
		result.Created++
		telemetry.RunsCreated.WithLabelValues(telemetry.SourceSchedule).Inc()

		s.logger.Info("created run from schedule",
			"job_id", job.ID,
			"job_name", job.Name,
			"run_id", run.ID,
			"next_run", job.NextRun,
			"status", job.Status,
		)

		if s.enqueuer != nil {
			if err := s.enqueuer.Enqueue(ctx, job, run); err != nil {
				s.logger.Warn("failed to enqueue run",
					"job_id", job.ID,
					"run_id", run.ID,
					"error", err,
				)
			}
		}
	}

	if result.Claimed > 0 {
		s.logger.Debug("poll cycle completed",
			"claimed", result.Claimed,
			"runs_created", result.Created,
		)
	}
	return result, nil
}

// prepare вызывается внутри транзакции захвата.
// Возвращает run, который нужно создать, или nil для job с некорректным расписанием.
func (s *Scheduler) prepare(job *domain.Job, now time.Time) *domain.JobRun {
	next, err := NextRun(job.ScheduleExpr, job.Timezone, now)
	if err != nil {
		s.logger.Warn("invalid schedule, job disarmed until edited",
			"job_id", job.ID,
			"schedule_expr", job.ScheduleExpr,
			"timezone", job.Timezone,
			"error", err,
		)
		job.Disarm(now)
		return nil
	}

	run := domain.NewRun(job.ID, now)
	job.RecordRun(now)
	job.Reschedule(next, now)
	return run
}

// Cleanup удаляет завершённые runs старше срока хранения.
func (s *Scheduler) Cleanup(ctx context.Context) (int64, error) {
	if s.runs == nil {
		return 0, nil
	}

	before := s.now().UTC().Add(-s.retention)
	deleted, err := s.runs.DeleteFinishedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("delete finished runs: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("old runs removed", "deleted", deleted, "before", before)
	}
	return deleted, nil
}

// Run запускает цикл опроса до отмены ctx.
// Первый тик выполняется сразу, cleanup — с периодом cleanupInterval.
func (s *Scheduler) Run(ctx context.Context, pollInterval, cleanupInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}

	poll := time.NewTicker(pollInterval)
	defer poll.Stop()
	cleanup := time.NewTicker(cleanupInterval)
	defer cleanup.Stop()

	s.logger.Info("scheduler started",
		"poll_interval", pollInterval,
		"cleanup_interval", cleanupInterval,
		"batch_size", s.batchSize,
	)

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-poll.C:
			s.tick(ctx)
		case <-cleanup.C:
			if _, err := s.Cleanup(ctx); err != nil {
				s.logger.Error("runs cleanup failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduler tick failed", "error", err)
	}
}
