package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Tempo/internal/domain"
)

// RecoverFilter — границы поиска runs, требующих восстановления.
type RecoverFilter struct {
	// PendingBefore — pending runs, созданные раньше, считаются потерянными в очереди.
	PendingBefore time.Time

	// RetryDueBy — failed runs с next_retry_at <= RetryDueBy готовы к повтору.
	RetryDueBy time.Time

	// RunningBefore — running runs, стартовавшие раньше, считаются зависшими.
	RunningBefore time.Time

	Limit int
}

// RunRepo — репозиторий job_runs в PostgreSQL.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

const runColumns = `id, job_id, status, started_at, finished_at, logs, error,
		       retry_count, next_retry_at, created_at`

// dbtx — общее подмножество pgxpool.Pool и pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Create создаёт новый run.
func (r *RunRepo) Create(ctx context.Context, run *domain.JobRun) error {
	return insertRun(ctx, r.pool, run)
}

func insertRun(ctx context.Context, db dbtx, run *domain.JobRun) error {
	query := `
		INSERT INTO job_runs (id, job_id, status, started_at, finished_at, logs, error,
		                      retry_count, next_retry_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := db.Exec(ctx, query,
		run.ID,
		run.JobID,
		run.Status,
		run.StartedAt,
		run.FinishedAt,
		nullString(run.Logs),
		nullString(run.Error),
		run.RetryCount,
		run.NextRetryAt,
		run.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.JobRun, error) {
	query := `SELECT ` + runColumns + ` FROM job_runs WHERE id = $1`
	return scanRun(r.pool.QueryRow(ctx, query, id))
}

// ListByJob возвращает историю runs job (новые первыми) и общее количество.
func (r *RunRepo) ListByJob(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]domain.JobRun, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM job_runs WHERE job_id = $1`, jobID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	query := `
		SELECT ` + runColumns + `
		FROM job_runs
		WHERE job_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, jobID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs, err := collectRuns(rows)
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// Start переводит run в RUNNING, если он pending или failed с наступившим next_retry_at.
//
// Это условный UPDATE: из двух параллельных доставок одного run
// стартует только одна, вторая получает ErrInvalidState.
func (r *RunRepo) Start(ctx context.Context, id uuid.UUID, now time.Time) (*domain.JobRun, error) {
	query := `
		UPDATE job_runs
		SET status = 'running', started_at = $2, finished_at = NULL, next_retry_at = NULL
		WHERE id = $1
		  AND (status = 'pending'
		       OR (status = 'failed' AND next_retry_at IS NOT NULL AND next_retry_at <= $2))
		RETURNING ` + runColumns
	run, err := scanRun(r.pool.QueryRow(ctx, query, id, now))
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidState
	}
	return run, err
}

// Finish сохраняет результат попытки. Run должен быть в статусе RUNNING.
func (r *RunRepo) Finish(ctx context.Context, run *domain.JobRun) error {
	query := `
		UPDATE job_runs
		SET status = $2, finished_at = $3, logs = $4, error = $5,
		    retry_count = $6, next_retry_at = $7
		WHERE id = $1 AND status = 'running'
	`
	result, err := r.pool.Exec(ctx, query,
		run.ID,
		run.Status,
		run.FinishedAt,
		nullString(run.Logs),
		nullString(run.Error),
		run.RetryCount,
		run.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// ListRecoverable возвращает runs, которые нужно повторно поставить в очередь
// или признать потерянными.
func (r *RunRepo) ListRecoverable(ctx context.Context, filter RecoverFilter) ([]domain.JobRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM job_runs
		WHERE (status = 'pending' AND created_at <= $1)
		   OR (status = 'failed' AND next_retry_at IS NOT NULL AND next_retry_at <= $2)
		   OR (status = 'running' AND started_at <= $3)
		ORDER BY created_at ASC
		LIMIT $4
	`
	rows, err := r.pool.Query(ctx, query,
		filter.PendingBefore,
		filter.RetryDueBy,
		filter.RunningBefore,
		filter.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recoverable runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// DeleteFinishedBefore удаляет завершённые runs старше before.
// Runs, ожидающие retry, не удаляются.
func (r *RunRepo) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM job_runs
		WHERE status IN ('success', 'failed')
		  AND next_retry_at IS NULL
		  AND finished_at < $1
	`
	result, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("delete finished runs: %w", err)
	}
	return result.RowsAffected(), nil
}

// --- Helpers ---

func collectRuns(rows pgx.Rows) ([]domain.JobRun, error) {
	var runs []domain.JobRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// scanRun сканирует одну строку в JobRun.
func scanRun(row pgx.Row) (*domain.JobRun, error) {
	var run domain.JobRun
	var logs, runError *string

	err := row.Scan(
		&run.ID,
		&run.JobID,
		&run.Status,
		&run.StartedAt,
		&run.FinishedAt,
		&logs,
		&runError,
		&run.RetryCount,
		&run.NextRetryAt,
		&run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if logs != nil {
		run.Logs = *logs
	}
	if runError != nil {
		run.Error = *runError
	}

	return &run, nil
}
