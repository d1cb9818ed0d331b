package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Tempo/internal/domain"
)

// ClaimFunc вызывается для захваченного due job внутри транзакции захвата.
//
// Функция изменяет job (last_run, next_run, status) и возвращает run,
// который нужно создать. nil run — job обновляется без создания run
// (например, при некорректном расписании). Ошибка откатывает транзакцию.
type ClaimFunc func(job *domain.Job) (*domain.JobRun, error)

// JobFilter — параметры фильтрации jobs.
type JobFilter struct {
	Status  domain.JobStatus
	OwnerID string
	Limit   int
	Offset  int
}

// JobRepo — репозиторий jobs в PostgreSQL.
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `id, name, schedule_expr, timezone, payload, retry_policy, status,
		       last_run, next_run, owner_id, created_at, updated_at`

// Create создаёт новый job.
func (r *JobRepo) Create(ctx context.Context, job *domain.Job) error {
	payloadJSON, policyJSON, err := marshalJobJSON(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO jobs (id, name, schedule_expr, timezone, payload, retry_policy, status,
		                  last_run, next_run, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.Name,
		job.ScheduleExpr,
		job.Timezone,
		payloadJSON,
		policyJSON,
		job.Status,
		job.LastRun,
		job.NextRun,
		nullString(job.OwnerID),
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID возвращает job по ID.
func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return scanJob(r.pool.QueryRow(ctx, query, id))
}

// List возвращает страницу jobs и общее количество подходящих записей.
func (r *JobRepo) List(ctx context.Context, filter JobFilter) ([]domain.Job, int, error) {
	status := nullString(string(filter.Status))
	owner := nullString(filter.OwnerID)

	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM jobs
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR owner_id = $2)
	`, status, owner).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR owner_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query, status, owner, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, total, rows.Err()
}

// JobEdit — условия пользовательского изменения job.
type JobEdit struct {
	// Version — updated_at прочитанной версии job.
	// Запись проходит, только если job с тех пор не менялся.
	Version time.Time

	// Rearm — сохранить также status и next_run.
	// Без него поля расписания остаются такими, какими их оставил poller.
	Rearm bool
}

// Edit сохраняет пользовательские поля job при условии, что job не менялся с edit.Version.
// last_run не меняется никогда, status и next_run — только при edit.Rearm.
//
// Захват poller'ом держит блокировку строки и меняет updated_at,
// поэтому Edit, начатый до захвата, дождётся его и вернёт ErrConflict.
func (r *JobRepo) Edit(ctx context.Context, job *domain.Job, edit JobEdit) error {
	payloadJSON, policyJSON, err := marshalJobJSON(job)
	if err != nil {
		return err
	}

	query := `
		UPDATE jobs
		SET name = $3, schedule_expr = $4, timezone = $5, payload = $6, retry_policy = $7,
		    owner_id = $8, updated_at = $9,
		    status   = CASE WHEN $10::boolean THEN $11 ELSE status END,
		    next_run = CASE WHEN $10::boolean THEN $12 ELSE next_run END
		WHERE id = $1 AND updated_at = $2
	`
	result, err := r.pool.Exec(ctx, query,
		job.ID,
		edit.Version,
		job.Name,
		job.ScheduleExpr,
		job.Timezone,
		payloadJSON,
		policyJSON,
		nullString(job.OwnerID),
		job.UpdatedAt,
		edit.Rearm,
		job.Status,
		job.NextRun,
	)
	if err != nil {
		return fmt.Errorf("edit job: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, job.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check job: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

// UpdateSchedule сохраняет результат перепланирования после завершения run:
// last_run всегда, next_run и status — только если job всё ещё active.
// Пауза, выставленная пользователем во время выполнения, не перезаписывается.
func (r *JobRepo) UpdateSchedule(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE jobs
		SET last_run   = $2,
		    next_run   = CASE WHEN status = 'active' THEN $3 ELSE next_run END,
		    status     = CASE WHEN status = 'active' THEN $4 ELSE status END,
		    updated_at = $5
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, job.ID, job.LastRun, job.NextRun, job.Status, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update job schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет job. Runs удаляются каскадно.
func (r *JobRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimDue захватывает один due job и применяет к нему fn в одной транзакции.
//
// Выбирается active job с next_run <= now, не входящий в exclude.
// FOR UPDATE SKIP LOCKED гарантирует, что параллельные poller'ы
// никогда не захватят один и тот же job.
//
// Возвращает ErrNothingDue, если захватывать нечего.
// При ошибке fn или записи возвращается захваченный job вместе с ошибкой.
func (r *JobRepo) ClaimDue(ctx context.Context, now time.Time, exclude []uuid.UUID, fn ClaimFunc) (*domain.Job, *domain.JobRun, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	if exclude == nil {
		exclude = []uuid.UUID{}
	}

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = 'active'
		  AND next_run IS NOT NULL
		  AND next_run <= $1
		  AND NOT (id = ANY($2))
		ORDER BY next_run ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`
	job, err := scanJob(tx.QueryRow(ctx, query, now, exclude))
	if errors.Is(err, ErrNotFound) {
		return nil, nil, ErrNothingDue
	}
	if err != nil {
		return nil, nil, fmt.Errorf("select due job: %w", err)
	}

	run, err := fn(job)
	if err != nil {
		return job, nil, err
	}

	if run != nil {
		if err := insertRun(ctx, tx, run); err != nil {
			return job, nil, err
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE jobs
		SET last_run = $2, next_run = $3, status = $4, updated_at = $5
		WHERE id = $1
	`, job.ID, job.LastRun, job.NextRun, job.Status, job.UpdatedAt)
	if err != nil {
		return job, nil, fmt.Errorf("update claimed job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return job, nil, fmt.Errorf("commit claim: %w", err)
	}
	return job, run, nil
}

// --- Helpers ---

func marshalJobJSON(job *domain.Job) ([]byte, []byte, error) {
	payload := job.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}

	var policyJSON []byte
	if job.RetryPolicy != nil {
		policyJSON, err = json.Marshal(job.RetryPolicy)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal retry policy: %w", err)
		}
	}
	return payloadJSON, policyJSON, nil
}

// scanJob сканирует одну строку в Job.
// pgx.Rows удовлетворяет pgx.Row, поэтому helper общий для QueryRow и Query.
func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var payloadJSON, policyJSON []byte
	var ownerID *string

	err := row.Scan(
		&job.ID,
		&job.Name,
		&job.ScheduleExpr,
		&job.Timezone,
		&payloadJSON,
		&policyJSON,
		&job.Status,
		&job.LastRun,
		&job.NextRun,
		&ownerID,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &job.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if policyJSON != nil {
		var policy domain.RetryPolicy
		if err := json.Unmarshal(policyJSON, &policy); err != nil {
			return nil, fmt.Errorf("unmarshal retry policy: %w", err)
		}
		job.RetryPolicy = &policy
	}
	if ownerID != nil {
		job.OwnerID = *ownerID
	}

	return &job, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
