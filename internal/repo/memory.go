package repo

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Tempo/internal/domain"
)

// DefaultClaimLease — сколько захват due job удерживается без фиксации.
const DefaultClaimLease = 30 * time.Second

// MemoryStore — in-memory хранилище jobs и runs.
//
// Используется в dev-режиме (без PostgreSQL) и в тестах.
// Jobs() и Runs() возвращают представления с тем же набором методов,
// что у JobRepo и RunRepo.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.Job
	runs map[uuid.UUID]*domain.JobRun

	// claimedUntil — lease захвата: пока он не истёк, job не выдаётся другим poller'ам.
	claimedUntil map[uuid.UUID]time.Time
	lease        time.Duration
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:         make(map[uuid.UUID]*domain.Job),
		runs:         make(map[uuid.UUID]*domain.JobRun),
		claimedUntil: make(map[uuid.UUID]time.Time),
		lease:        DefaultClaimLease,
	}
}

// Jobs возвращает репозиторий jobs.
func (s *MemoryStore) Jobs() *MemoryJobRepo {
	return &MemoryJobRepo{s: s}
}

// Runs возвращает репозиторий runs.
func (s *MemoryStore) Runs() *MemoryRunRepo {
	return &MemoryRunRepo{s: s}
}

// MemoryJobRepo — jobs в MemoryStore.
type MemoryJobRepo struct {
	s *MemoryStore
}

// Create создаёт новый job.
func (r *MemoryJobRepo) Create(_ context.Context, job *domain.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.jobs[job.ID]; ok {
		return ErrAlreadyExists
	}
	r.s.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetByID возвращает job по ID.
func (r *MemoryJobRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	job, ok := r.s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

// List возвращает страницу jobs и общее количество подходящих записей.
func (r *MemoryJobRepo) List(_ context.Context, filter JobFilter) ([]domain.Job, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var matched []domain.Job
	for _, job := range r.s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.OwnerID != "" && job.OwnerID != filter.OwnerID {
			continue
		}
		matched = append(matched, *cloneJob(job))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	return page(matched, filter.Limit, filter.Offset), len(matched), nil
}

// Update безусловно сохраняет все поля job.
func (r *MemoryJobRepo) Update(_ context.Context, job *domain.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	updated := cloneJob(job)
	updated.CreatedAt = existing.CreatedAt
	r.s.jobs[job.ID] = updated
	return nil
}

// Edit сохраняет пользовательские поля job, если job не менялся с edit.Version
// и не захвачен poller'ом.
func (r *MemoryJobRepo) Edit(_ context.Context, job *domain.Job, edit JobEdit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	if until, claimed := r.s.claimedUntil[job.ID]; claimed && time.Now().Before(until) {
		return ErrConflict
	}
	if !existing.UpdatedAt.Equal(edit.Version) {
		return ErrConflict
	}

	updated := cloneJob(job)
	updated.CreatedAt = existing.CreatedAt
	updated.LastRun = existing.LastRun
	if !edit.Rearm {
		updated.Status = existing.Status
		updated.NextRun = existing.NextRun
	}
	r.s.jobs[job.ID] = updated
	return nil
}

// UpdateSchedule сохраняет last_run, а next_run и status — только для active job.
func (r *MemoryJobRepo) UpdateSchedule(_ context.Context, job *domain.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	existing.LastRun = copyTime(job.LastRun)
	if existing.Status == domain.JobStatusActive {
		existing.NextRun = copyTime(job.NextRun)
		existing.Status = job.Status
	}
	existing.UpdatedAt = job.UpdatedAt
	return nil
}

// Delete удаляет job вместе с его runs.
func (r *MemoryJobRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(r.s.jobs, id)
	delete(r.s.claimedUntil, id)
	for runID, run := range r.s.runs {
		if run.JobID == id {
			delete(r.s.runs, runID)
		}
	}
	return nil
}

// ClaimDue захватывает один due job и применяет к нему fn.
//
// Захват ставит lease под мьютексом, fn выполняется без блокировки над копией job,
// результат фиксируется повторным захватом мьютекса. Пока lease действует,
// параллельный ClaimDue этот job не видит.
func (r *MemoryJobRepo) ClaimDue(ctx context.Context, now time.Time, exclude []uuid.UUID, fn ClaimFunc) (*domain.Job, *domain.JobRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	job := r.s.lockDue(now, exclude)
	if job == nil {
		return nil, nil, ErrNothingDue
	}
	defer r.s.releaseClaim(job.ID)

	run, err := fn(job)
	if err != nil {
		return job, nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.jobs[job.ID]
	if !ok {
		// job удалён во время захвата: как и в PostgreSQL, вставка run упадёт на FK
		return job, nil, ErrNotFound
	}
	if run != nil {
		r.s.runs[run.ID] = cloneRun(run)
	}
	existing.LastRun = copyTime(job.LastRun)
	existing.NextRun = copyTime(job.NextRun)
	existing.Status = job.Status
	existing.UpdatedAt = job.UpdatedAt

	return job, run, nil
}

func (s *MemoryStore) lockDue(now time.Time, exclude []uuid.UUID) *domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	clock := time.Now()
	var due *domain.Job
	for _, job := range s.jobs {
		if !job.IsDue(now) || slices.Contains(exclude, job.ID) {
			continue
		}
		if until, ok := s.claimedUntil[job.ID]; ok && clock.Before(until) {
			continue
		}
		if due == nil || job.NextRun.Before(*due.NextRun) {
			due = job
		}
	}
	if due == nil {
		return nil
	}

	s.claimedUntil[due.ID] = clock.Add(s.lease)
	return cloneJob(due)
}

func (s *MemoryStore) releaseClaim(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claimedUntil, id)
}

// MemoryRunRepo — runs в MemoryStore.
type MemoryRunRepo struct {
	s *MemoryStore
}

// Create создаёт новый run.
func (r *MemoryRunRepo) Create(_ context.Context, run *domain.JobRun) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.jobs[run.JobID]; !ok {
		return ErrNotFound
	}
	if _, ok := r.s.runs[run.ID]; ok {
		return ErrAlreadyExists
	}
	r.s.runs[run.ID] = cloneRun(run)
	return nil
}

// GetByID возвращает run по ID.
func (r *MemoryRunRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.JobRun, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	run, ok := r.s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRun(run), nil
}

// ListByJob возвращает историю runs job (новые первыми) и общее количество.
func (r *MemoryRunRepo) ListByJob(_ context.Context, jobID uuid.UUID, limit, offset int) ([]domain.JobRun, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var matched []domain.JobRun
	for _, run := range r.s.runs {
		if run.JobID == jobID {
			matched = append(matched, *cloneRun(run))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	return page(matched, limit, offset), len(matched), nil
}

// Start переводит run в RUNNING, если он pending или failed с наступившим next_retry_at.
func (r *MemoryRunRepo) Start(_ context.Context, id uuid.UUID, now time.Time) (*domain.JobRun, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	run, ok := r.s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !run.CanStart(now) {
		return nil, ErrInvalidState
	}
	run.MarkRunning(now)
	return cloneRun(run), nil
}

// Finish сохраняет результат попытки. Run должен быть в статусе RUNNING.
func (r *MemoryRunRepo) Finish(_ context.Context, run *domain.JobRun) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.runs[run.ID]
	if !ok || existing.Status != domain.RunStatusRunning {
		return ErrInvalidState
	}
	existing.Status = run.Status
	existing.FinishedAt = copyTime(run.FinishedAt)
	existing.Logs = run.Logs
	existing.Error = run.Error
	existing.RetryCount = run.RetryCount
	existing.NextRetryAt = copyTime(run.NextRetryAt)
	return nil
}

// ListRecoverable возвращает runs, которые нужно повторно поставить в очередь
// или признать потерянными.
func (r *MemoryRunRepo) ListRecoverable(_ context.Context, filter RecoverFilter) ([]domain.JobRun, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var matched []domain.JobRun
	for _, run := range r.s.runs {
		switch {
		case run.Status == domain.RunStatusPending && !run.CreatedAt.After(filter.PendingBefore),
			run.Status == domain.RunStatusFailed && run.NextRetryAt != nil && !run.NextRetryAt.After(filter.RetryDueBy),
			run.Status == domain.RunStatusRunning && run.StartedAt != nil && !run.StartedAt.After(filter.RunningBefore):
			matched = append(matched, *cloneRun(run))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	return page(matched, filter.Limit, 0), nil
}

// DeleteFinishedBefore удаляет завершённые runs старше before.
func (r *MemoryRunRepo) DeleteFinishedBefore(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var deleted int64
	for id, run := range r.s.runs {
		if run.IsFinished() && run.FinishedAt != nil && run.FinishedAt.Before(before) {
			delete(r.s.runs, id)
			deleted++
		}
	}
	return deleted, nil
}

// --- Helpers ---

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneJob(job *domain.Job) *domain.Job {
	c := *job
	c.LastRun = copyTime(job.LastRun)
	c.NextRun = copyTime(job.NextRun)
	if job.Payload != nil {
		c.Payload = make(map[string]any, len(job.Payload))
		for k, v := range job.Payload {
			c.Payload[k] = v
		}
	}
	if job.RetryPolicy != nil {
		p := *job.RetryPolicy
		c.RetryPolicy = &p
	}
	return &c
}

func cloneRun(run *domain.JobRun) *domain.JobRun {
	c := *run
	c.StartedAt = copyTime(run.StartedAt)
	c.FinishedAt = copyTime(run.FinishedAt)
	c.NextRetryAt = copyTime(run.NextRetryAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
