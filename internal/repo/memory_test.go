package repo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Tempo/internal/domain"
)

func newDueJob(t *testing.T, store *MemoryStore, nextRun time.Time) *domain.Job {
	t.Helper()
	job := &domain.Job{
		ID:           uuid.New(),
		Name:         "job",
		ScheduleExpr: "1m",
		Timezone:     domain.DefaultTimezone,
		Status:       domain.JobStatusActive,
		NextRun:      &nextRun,
		CreatedAt:    nextRun,
		UpdatedAt:    nextRun,
	}
	if err := store.Jobs().Create(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func advance(now time.Time) ClaimFunc {
	return func(job *domain.Job) (*domain.JobRun, error) {
		next := now.Add(time.Minute)
		job.RecordRun(now)
		job.Reschedule(&next, now)
		return domain.NewRun(job.ID, now), nil
	}
}

// --- ClaimDue Tests ---

func TestMemoryJobRepo_ClaimDue(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now().UTC()
	job := newDueJob(t, store, now.Add(-time.Second))

	claimed, run, err := store.Jobs().ClaimDue(context.Background(), now, nil, advance(now))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.ID != job.ID || run == nil {
		t.Fatalf("unexpected claim result: %v %v", claimed, run)
	}

	stored, _ := store.Jobs().GetByID(context.Background(), job.ID)
	if stored.NextRun == nil || !stored.NextRun.After(now) {
		t.Errorf("next_run should move to the future, got %v", stored.NextRun)
	}
	if stored.LastRun == nil || !stored.LastRun.Equal(now) {
		t.Errorf("last_run should be %v, got %v", now, stored.LastRun)
	}

	if _, err := store.Runs().GetByID(context.Background(), run.ID); err != nil {
		t.Errorf("run should be stored: %v", err)
	}

	// Повторный захват — нечего забирать
	_, _, err = store.Jobs().ClaimDue(context.Background(), now, nil, advance(now))
	if !errors.Is(err, ErrNothingDue) {
		t.Errorf("expected ErrNothingDue, got %v", err)
	}
}

func TestMemoryJobRepo_ClaimDue_SkipsPausedAndExcluded(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now().UTC()

	paused := newDueJob(t, store, now.Add(-time.Minute))
	paused.Status = domain.JobStatusPaused
	if err := store.Jobs().Update(context.Background(), paused); err != nil {
		t.Fatal(err)
	}
	excluded := newDueJob(t, store, now.Add(-time.Minute))

	_, _, err := store.Jobs().ClaimDue(context.Background(), now, []uuid.UUID{excluded.ID}, advance(now))
	if !errors.Is(err, ErrNothingDue) {
		t.Errorf("expected ErrNothingDue, got %v", err)
	}
}

func TestMemoryJobRepo_ClaimDue_Concurrent(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now().UTC()
	job := newDueJob(t, store, now.Add(-time.Second))

	var wg sync.WaitGroup
	var claims atomic.Int32
	start := make(chan struct{})

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, run, err := store.Jobs().ClaimDue(context.Background(), now, nil, func(j *domain.Job) (*domain.JobRun, error) {
				// Удерживаем захват, чтобы остальные горутины успели его увидеть
				time.Sleep(5 * time.Millisecond)
				return advance(now)(j)
			})
			if err == nil && run != nil {
				claims.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := claims.Load(); got != 1 {
		t.Fatalf("expected exactly 1 claim, got %d", got)
	}
	_, total, _ := store.Runs().ListByJob(context.Background(), job.ID, 10, 0)
	if total != 1 {
		t.Errorf("expected 1 run, got %d", total)
	}
}

// --- Run Tests ---

func TestMemoryRunRepo_StartIsConditional(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	job := newDueJob(t, store, now)

	run := domain.NewRun(job.ID, now)
	if err := store.Runs().Create(ctx, run); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Runs().Start(ctx, run.ID, now); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := store.Runs().Start(ctx, run.ID, now); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second start: expected ErrInvalidState, got %v", err)
	}
	if _, err := store.Runs().Start(ctx, uuid.New(), now); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown run: expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRunRepo_FinishRequiresRunning(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	job := newDueJob(t, store, now)

	run := domain.NewRun(job.ID, now)
	store.Runs().Create(ctx, run)

	run.MarkSucceeded("done", now)
	if err := store.Runs().Finish(ctx, run); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for pending run, got %v", err)
	}
}

func TestMemoryRunRepo_ListRecoverable(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	job := newDueJob(t, store, now)

	oldPending := domain.NewRun(job.ID, now.Add(-time.Hour))
	freshPending := domain.NewRun(job.ID, now)
	retryDue := domain.NewRun(job.ID, now.Add(-time.Hour))
	retryDue.Status = domain.RunStatusFailed
	retryDue.ScheduleRetry(now.Add(-time.Second))
	exhausted := domain.NewRun(job.ID, now.Add(-time.Hour))
	exhausted.Status = domain.RunStatusFailed

	for _, r := range []*domain.JobRun{oldPending, freshPending, retryDue, exhausted} {
		if err := store.Runs().Create(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := store.Runs().ListRecoverable(ctx, RecoverFilter{
		PendingBefore: now.Add(-time.Minute),
		RetryDueBy:    now,
		RunningBefore: now.Add(-time.Hour),
		Limit:         10,
	})
	if err != nil {
		t.Fatal(err)
	}

	got := map[uuid.UUID]bool{}
	for _, r := range runs {
		got[r.ID] = true
	}
	if len(runs) != 2 || !got[oldPending.ID] || !got[retryDue.ID] {
		t.Errorf("expected old pending and due retry, got %v", runs)
	}
}

func TestMemoryRunRepo_DeleteFinishedBefore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	job := newDueJob(t, store, now)

	old := domain.NewRun(job.ID, now.Add(-48*time.Hour))
	old.MarkSucceeded("", now.Add(-48*time.Hour))
	recent := domain.NewRun(job.ID, now)
	recent.MarkSucceeded("", now)
	waiting := domain.NewRun(job.ID, now.Add(-48*time.Hour))
	waiting.MarkFailed("boom", now.Add(-48*time.Hour))
	waiting.ScheduleRetry(now.Add(time.Hour))

	for _, r := range []*domain.JobRun{old, recent, waiting} {
		store.Runs().Create(ctx, r)
	}

	deleted, err := store.Runs().DeleteFinishedBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
	if _, err := store.Runs().GetByID(ctx, waiting.ID); err != nil {
		t.Errorf("run waiting for retry must survive cleanup: %v", err)
	}
}

func TestMemoryJobRepo_DeleteCascades(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	job := newDueJob(t, store, now)

	run := domain.NewRun(job.ID, now)
	store.Runs().Create(ctx, run)

	if err := store.Jobs().Delete(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Runs().GetByID(ctx, run.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("run should be deleted with job, got %v", err)
	}
}

func TestMemoryJobRepo_UpdateScheduleKeepsPause(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	job := newDueJob(t, store, now)

	// Пользователь поставил job на паузу во время выполнения
	paused := *job
	paused.Status = domain.JobStatusPaused
	store.Jobs().Update(ctx, &paused)

	job.RecordRun(now)
	job.Reschedule(nil, now)
	if err := store.Jobs().UpdateSchedule(ctx, job); err != nil {
		t.Fatal(err)
	}

	stored, _ := store.Jobs().GetByID(ctx, job.ID)
	if stored.Status != domain.JobStatusPaused {
		t.Errorf("expected paused, got %s", stored.Status)
	}
	if stored.LastRun == nil {
		t.Error("last_run should be recorded")
	}
}

// --- Edit Tests ---

func TestMemoryJobRepo_EditKeepsScheduleWithoutRearm(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	job := newDueJob(t, store, now.Add(-time.Second))

	read, _ := store.Jobs().GetByID(ctx, job.ID)
	read.Name = "renamed"
	read.NextRun = nil
	read.Status = domain.JobStatusCompleted
	read.UpdatedAt = now

	if err := store.Jobs().Edit(ctx, read, JobEdit{Version: job.UpdatedAt}); err != nil {
		t.Fatalf("edit: %v", err)
	}

	stored, _ := store.Jobs().GetByID(ctx, job.ID)
	if stored.Name != "renamed" {
		t.Errorf("name = %q", stored.Name)
	}
	if stored.Status != domain.JobStatusActive || stored.NextRun == nil {
		t.Errorf("schedule fields must not change without rearm, got %s %v", stored.Status, stored.NextRun)
	}
	if !stored.UpdatedAt.Equal(now) {
		t.Errorf("updated_at = %v, want %v", stored.UpdatedAt, now)
	}
}

func TestMemoryJobRepo_EditConflictsAfterClaim(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	job := newDueJob(t, store, now.Add(-time.Second))

	read, _ := store.Jobs().GetByID(ctx, job.ID)
	if _, _, err := store.Jobs().ClaimDue(ctx, now, nil, advance(now)); err != nil {
		t.Fatalf("claim: %v", err)
	}

	read.Name = "stale"
	err := store.Jobs().Edit(ctx, read, JobEdit{Version: read.UpdatedAt, Rearm: true})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	stored, _ := store.Jobs().GetByID(ctx, job.ID)
	if stored.Name != "job" || !stored.NextRun.After(now) {
		t.Errorf("claim result should be intact, got %q %v", stored.Name, stored.NextRun)
	}
}

func TestMemoryJobRepo_EditConflictsDuringClaim(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	job := newDueJob(t, store, now.Add(-time.Second))

	var editErr error
	_, _, err := store.Jobs().ClaimDue(ctx, now, nil, func(claimed *domain.Job) (*domain.JobRun, error) {
		// запись посреди захвата
		read, _ := store.Jobs().GetByID(ctx, job.ID)
		editErr = store.Jobs().Edit(ctx, read, JobEdit{Version: read.UpdatedAt})
		return advance(now)(claimed)
	})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !errors.Is(editErr, ErrConflict) {
		t.Errorf("expected ErrConflict while claimed, got %v", editErr)
	}
}

func TestMemoryJobRepo_EditUnknownJob(t *testing.T) {
	store := NewMemoryStore()
	job := &domain.Job{ID: uuid.New()}

	err := store.Jobs().Edit(context.Background(), job, JobEdit{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
