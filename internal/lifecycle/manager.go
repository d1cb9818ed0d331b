package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Tempo/internal/domain"
	"github.com/shaiso/Tempo/internal/queue"
	"github.com/shaiso/Tempo/internal/repo"
	"github.com/shaiso/Tempo/internal/scheduler"
	"github.com/shaiso/Tempo/internal/telemetry"
	"github.com/shaiso/Tempo/internal/worker"
)

// Default configuration values.
const (
	defaultTimeout      = 300 * time.Second
	defaultStaleGrace   = 60 * time.Second
	defaultRecoverBatch = 100
	persistTimeout      = 10 * time.Second
)

// Сообщения об ошибках, которые записывает сам Manager.
const (
	msgExecutionLost  = "execution lost: worker stopped responding"
	msgWorkerShutdown = "worker shutdown during execution"
	msgJobNotFound    = "job not found"
)

// JobStore — операции над jobs, нужные Manager.
type JobStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	UpdateSchedule(ctx context.Context, job *domain.Job) error
}

// RunStore — операции над runs, нужные Manager.
type RunStore interface {
	Create(ctx context.Context, run *domain.JobRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.JobRun, error)
	Start(ctx context.Context, id uuid.UUID, now time.Time) (*domain.JobRun, error)
	Finish(ctx context.Context, run *domain.JobRun) error
	ListRecoverable(ctx context.Context, filter repo.RecoverFilter) ([]domain.JobRun, error)
}

// Executor выполняет payload. Реализуется worker.Registry.
type Executor interface {
	Execute(ctx context.Context, payload map[string]any) (*worker.ExecutionResult, error)
}

// Outcome — результат одной попытки выполнения.
type Outcome struct {
	RunID  uuid.UUID
	Status domain.RunStatus

	// RetryAfter — задержка до повтора. Nil, если повтора не будет.
	RetryAfter *time.Duration
}

// Retrying сообщает, запланирован ли повтор.
func (o Outcome) Retrying() bool {
	return o.RetryAfter != nil
}

// Manager — менеджер жизненного цикла runs.
type Manager struct {
	jobs     JobStore
	runs     RunStore
	executor Executor
	queue    queue.Queue
	logger   *slog.Logger

	timeout    time.Duration
	staleGrace time.Duration
	maxDelay   time.Duration
	now        func() time.Time
}

// Config — конфигурация Manager.
type Config struct {
	Jobs     JobStore
	Runs     RunStore
	Executor Executor
	Queue    queue.Queue
	Logger   *slog.Logger

	Timeout    time.Duration // общий таймаут попытки (default: 300s)
	StaleGrace time.Duration // запас для Reconcile (default: 60s)

	// MaxDelay — глобальный потолок задержки retry для jobs без своего max_delay_seconds.
	// 0 — без потолка.
	MaxDelay time.Duration

	// Now — источник времени, подменяется в тестах.
	Now func() time.Time
}

// New создаёт новый Manager.
func New(cfg Config) *Manager {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	staleGrace := cfg.StaleGrace
	if staleGrace <= 0 {
		staleGrace = defaultStaleGrace
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		jobs:       cfg.Jobs,
		runs:       cfg.Runs,
		executor:   cfg.Executor,
		queue:      cfg.Queue,
		logger:     logger,
		timeout:    timeout,
		staleGrace: staleGrace,
		maxDelay:   cfg.MaxDelay,
		now:        now,
	}
}

// Create создаёт pending run для job.
func (m *Manager) Create(ctx context.Context, job *domain.Job) (*domain.JobRun, error) {
	run := domain.NewRun(job.ID, m.now())
	if err := m.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// Enqueue ставит run в очередь выполнения.
func (m *Manager) Enqueue(ctx context.Context, job *domain.Job, run *domain.JobRun) error {
	unit := queue.WorkUnit{JobID: job.ID, RunID: run.ID, Payload: job.Payload}
	if err := m.queue.Enqueue(ctx, unit); err != nil {
		return fmt.Errorf("enqueue run %s: %w", run.ID, err)
	}
	return nil
}

// RunNow создаёт run для немедленного выполнения вне расписания.
// Ошибка постановки в очередь только логируется: run уже сохранён и будет подобран Reconcile.
func (m *Manager) RunNow(ctx context.Context, jobID uuid.UUID) (*domain.JobRun, error) {
	job, err := m.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.IsActive() {
		return nil, fmt.Errorf("%w: status is %s", ErrJobNotActive, job.Status)
	}

	run, err := m.Create(ctx, job)
	if err != nil {
		return nil, err
	}
	telemetry.RunsCreated.WithLabelValues(telemetry.SourceManual).Inc()

	if err := m.Enqueue(ctx, job, run); err != nil {
		m.logger.Warn("run created but not enqueued",
			"job_id", job.ID,
			"run_id", run.ID,
			"error", err,
		)
	}
	return run, nil
}

// HandleUnit — обработчик очереди. Повторная доставка уже выполненного run не считается ошибкой.
// Повтор, доставленный раньше next_retry_at, возвращается в очередь на оставшееся время.
func (m *Manager) HandleUnit(ctx context.Context, unit queue.WorkUnit) error {
	_, err := m.Process(ctx, unit)
	if errors.Is(err, ErrRunNotStartable) {
		if m.requeueEarly(ctx, unit) {
			return nil
		}
		m.logger.Debug("skipping work unit", "run_id", unit.RunID, "reason", err)
		return nil
	}
	return err
}

// requeueEarly откладывает единицу, если run ждёт повтора, срок которого ещё не наступил.
func (m *Manager) requeueEarly(ctx context.Context, unit queue.WorkUnit) bool {
	run, err := m.runs.GetByID(ctx, unit.RunID)
	if err != nil || run.Status != domain.RunStatusFailed || run.NextRetryAt == nil {
		return false
	}
	wait := run.NextRetryAt.Sub(m.now())
	if wait <= 0 {
		return false
	}

	if err := m.queue.EnqueueAfter(ctx, unit, wait); err != nil {
		// next_retry_at сохранён, повтор подберёт Reconcile
		m.logger.Warn("failed to requeue early retry", "run_id", unit.RunID, "error", err)
		return false
	}
	m.logger.Debug("retry delivered early, requeued", "run_id", unit.RunID, "wait", wait)
	return true
}

// Process выполняет одну попытку run.
//
//  1. Условно переводит run в RUNNING
//  2. Выполняет payload job через Executor с таймаутом
//  3. Успех: сохраняет SUCCESS, обновляет last_run и next_run job
//  4. Ошибка: сохраняет FAILED; если ошибка временная и попытки не исчерпаны,
//     планирует повтор через очередь
//
// Ошибка выполнения не возвращается как error: она отражена в Outcome.
// error означает, что run нельзя стартовать или результат не удалось сохранить.
func (m *Manager) Process(ctx context.Context, unit queue.WorkUnit) (Outcome, error) {
	logger := telemetry.WithRunID(m.logger, unit.RunID.String())

	run, err := m.runs.Start(ctx, unit.RunID, m.now())
	if err != nil {
		if errors.Is(err, repo.ErrInvalidState) || errors.Is(err, repo.ErrNotFound) {
			return Outcome{RunID: unit.RunID}, fmt.Errorf("%w: %v", ErrRunNotStartable, err)
		}
		return Outcome{RunID: unit.RunID}, fmt.Errorf("start run: %w", err)
	}
	logger = telemetry.WithJobID(logger, run.JobID.String())

	job, err := m.jobs.GetByID(ctx, run.JobID)
	if errors.Is(err, repo.ErrNotFound) {
		logger.Error("job of run not found")
		pctx, cancel := persistContext(ctx)
		defer cancel()
		return m.fail(pctx, nil, run, msgJobNotFound, false)
	}
	if err != nil {
		// run остаётся RUNNING: Reconcile завершит его как потерянный и применит политику повторов
		logger.Error("failed to load job for run", "error", err)
		return Outcome{RunID: run.ID, Status: run.Status}, fmt.Errorf("load job: %w", err)
	}

	payloadType := job.PayloadType()
	logger.Info("run started", "type", payloadType, "attempt", run.RetryCount+1)

	result, execErr := m.execute(ctx, job, run)

	// после остановки воркера результат сохраняется в отдельном контексте
	pctx, pcancel := persistContext(ctx)
	defer pcancel()

	if execErr == nil && result == nil {
		result = &worker.ExecutionResult{}
	}

	var outcome Outcome
	switch {
	case execErr == nil:
		outcome, err = m.succeed(pctx, job, run, result.Logs)
	case worker.IsCanceled(execErr) && ctx.Err() != nil:
		logger.Warn("run interrupted by shutdown")
		outcome, err = m.fail(pctx, job, run, msgWorkerShutdown, true)
	default:
		logger.Warn("run attempt failed", "error", execErr)
		outcome, err = m.fail(pctx, job, run, execErr.Error(), worker.IsRetryable(execErr))
	}

	telemetry.RunDuration.WithLabelValues(payloadType).Observe(run.Duration().Seconds())
	if err != nil {
		logger.Error("failed to persist run result", "status", run.Status, "error", err)
		return outcome, err
	}

	logger.Info("run finished",
		"status", outcome.Status,
		"retry_count", run.RetryCount,
		"duration", run.Duration(),
	)
	return outcome, nil
}

// execute рендерит шаблоны payload и выполняет его с таймаутом попытки.
func (m *Manager) execute(ctx context.Context, job *domain.Job, run *domain.JobRun) (*worker.ExecutionResult, error) {
	payload, err := worker.RenderPayload(job.Payload, worker.TemplateData{
		Job: worker.TemplateJob{ID: job.ID.String(), Name: job.Name, OwnerID: job.OwnerID},
		Run: worker.TemplateRun{ID: run.ID.String(), Attempt: run.RetryCount + 1},
		Now: m.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.safeExecute(execCtx, payload)
}

// safeExecute превращает панику executor'а в ошибку, которая не повторяется:
// тот же payload упадёт снова.
func (m *Manager) safeExecute(ctx context.Context, payload map[string]any) (result *worker.ExecutionResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Error("executor panic", "panic", p, "stack", string(debug.Stack()))
			result, err = nil, fmt.Errorf("%w: %v", worker.ErrExecutorPanic, p)
		}
	}()
	return m.executor.Execute(ctx, payload)
}

// succeed сохраняет успешный run и перепланирует job от момента завершения.
func (m *Manager) succeed(ctx context.Context, job *domain.Job, run *domain.JobRun, logs string) (Outcome, error) {
	now := m.now()
	run.MarkSucceeded(logs, now)
	outcome := Outcome{RunID: run.ID, Status: domain.RunStatusSuccess}

	if err := m.runs.Finish(ctx, run); err != nil {
		return outcome, fmt.Errorf("finish run: %w", err)
	}
	telemetry.RunsFinished.WithLabelValues(string(domain.RunStatusSuccess)).Inc()

	job.RecordRun(*run.StartedAt)
	if job.IsActive() {
		next, err := scheduler.NextRun(job.ScheduleExpr, job.Timezone, now)
		if err != nil {
			m.logger.Warn("invalid schedule, job disarmed",
				"job_id", job.ID,
				"schedule", job.ScheduleExpr,
				"error", err,
			)
			job.Disarm(now)
		} else {
			job.Reschedule(next, now)
		}
	}

	if err := m.jobs.UpdateSchedule(ctx, job); err != nil {
		return outcome, fmt.Errorf("update job schedule: %w", err)
	}
	return outcome, nil
}

// fail сохраняет неудачную попытку и, если разрешено, планирует повтор.
// job == nil — job недоступен, повтор не планируется.
func (m *Manager) fail(ctx context.Context, job *domain.Job, run *domain.JobRun, errMsg string, retryable bool) (Outcome, error) {
	now := m.now()
	run.MarkFailed(errMsg, now)
	outcome := Outcome{RunID: run.ID, Status: domain.RunStatusFailed}

	var delay time.Duration
	if job != nil && retryable {
		policy := job.Policy().WithMaxDelay(m.maxDelay)
		// RetryCount уже включает эту попытку
		if policy.ShouldRetry(run.RetryCount - 1) {
			delay = policy.NextDelay(run.RetryCount)
			run.ScheduleRetry(now.Add(delay))
			outcome.RetryAfter = &delay
		}
	}

	if err := m.runs.Finish(ctx, run); err != nil {
		return outcome, fmt.Errorf("finish run: %w", err)
	}
	telemetry.RunsFinished.WithLabelValues(string(domain.RunStatusFailed)).Inc()

	if !outcome.Retrying() {
		return outcome, nil
	}

	telemetry.RetriesScheduled.Inc()
	unit := queue.WorkUnit{JobID: job.ID, RunID: run.ID, Payload: job.Payload}
	if err := m.queue.EnqueueAfter(ctx, unit, delay); err != nil {
		// next_retry_at сохранён, повтор подберёт Reconcile
		m.logger.Warn("failed to schedule retry",
			"run_id", run.ID,
			"delay", delay,
			"error", err,
		)
	}
	return outcome, nil
}

// Reconcile восстанавливает runs, потерянные между процессами, и возвращает их число.
//
//   - pending дольше StaleGrace — сообщение в очереди потеряно, ставится заново
//   - failed с next_retry_at старше StaleGrace — отложенный повтор потерян, ставится заново
//   - running дольше Timeout+StaleGrace — воркер пропал, попытка завершается
//     ошибкой и проходит обычный путь retry
//
// Повторная постановка может дублировать живое сообщение, это безопасно.
func (m *Manager) Reconcile(ctx context.Context, now time.Time) (int, error) {
	runs, err := m.runs.ListRecoverable(ctx, repo.RecoverFilter{
		PendingBefore: now.Add(-m.staleGrace),
		RetryDueBy:    now.Add(-m.staleGrace),
		RunningBefore: now.Add(-(m.timeout + m.staleGrace)),
		Limit:         defaultRecoverBatch,
	})
	if err != nil {
		return 0, fmt.Errorf("list recoverable runs: %w", err)
	}

	recovered := 0
	for i := range runs {
		if err := ctx.Err(); err != nil {
			return recovered, err
		}

		run := &runs[i]
		logger := m.logger.With("run_id", run.ID, "job_id", run.JobID, "status", run.Status)

		job, err := m.jobs.GetByID(ctx, run.JobID)
		if err != nil {
			logger.Warn("skipping run of unavailable job", "error", err)
			continue
		}

		if run.Status == domain.RunStatusRunning {
			outcome, err := m.fail(ctx, job, run, msgExecutionLost, true)
			if err != nil {
				// воркер успел сохранить результат
				logger.Debug("stale run already finished", "error", err)
				continue
			}
			logger.Warn("stale run failed", "retrying", outcome.Retrying())
			recovered++
			continue
		}

		if err := m.Enqueue(ctx, job, run); err != nil {
			logger.Error("failed to re-enqueue run", "error", err)
			continue
		}
		recovered++
	}
	return recovered, nil
}

// persistContext возвращает контекст для сохранения результата,
// который переживает отмену ctx.
func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}
