package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Tempo/internal/domain"
	"github.com/shaiso/Tempo/internal/repo"
	"github.com/shaiso/Tempo/internal/scheduler"
	"github.com/shaiso/Tempo/internal/telemetry"
)

// Повторы условной записи в UpdateJob.
const (
	maxEditAttempts = 3
	editRetryDelay  = 20 * time.Millisecond
)

// ListJobs возвращает страницу jobs с фильтрацией.
// GET /api/v1/jobs?status=...&owner_id=...&page=...&size=...
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	p, err := parsePagination(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	filter := repo.JobFilter{
		OwnerID: r.URL.Query().Get("owner_id"),
		Limit:   p.Size,
		Offset:  p.Offset(),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.JobStatus(s)
		if !status.IsValid() {
			BadRequest(w, "invalid status")
			return
		}
		filter.Status = status
	}

	jobs, total, err := h.jobs.List(r.Context(), filter)
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]JobResponse, len(jobs))
	for i := range jobs {
		result[i] = JobFromDomain(&jobs[i])
	}

	Page(w, result, total, p)
}

// CreateJob создаёт новый job и вычисляет его первый запуск.
// POST /api/v1/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		BadRequest(w, err.Error())
		return
	}

	now := h.now().UTC()
	job := &domain.Job{
		ID:           uuid.New(),
		Name:         req.Name,
		ScheduleExpr: req.ScheduleExpr,
		Timezone:     req.Timezone,
		Payload:      req.Payload,
		RetryPolicy:  req.RetryPolicy,
		Status:       req.Status,
		OwnerID:      req.OwnerID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if job.Timezone == "" {
		job.Timezone = domain.DefaultTimezone
	}
	if job.Status == "" {
		job.Status = domain.JobStatusActive
	}
	if job.Payload == nil {
		job.Payload = map[string]any{}
	}

	if HandleError(w, h.logger, arm(job, now), "") {
		return
	}
	if HandleError(w, h.logger, h.jobs.Create(r.Context(), job), "") {
		return
	}

	telemetry.FromContext(r.Context()).Info("job created",
		"job_id", job.ID,
		"name", job.Name,
		"schedule", job.ScheduleExpr,
		"next_run", job.NextRun,
	)
	Created(w, JobFromDomain(job))
}

// GetJob возвращает job по ID.
// GET /api/v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "job not found") {
		return
	}

	Success(w, JobFromDomain(job))
}

// UpdateJob частично обновляет job.
// PUT /api/v1/jobs/{id}
//
// next_run пересчитывается при изменении расписания, часового пояса или статуса.
func (h *Handler) UpdateJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	var req UpdateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		BadRequest(w, err.Error())
		return
	}

	job, err := h.editJob(r.Context(), id, &req)
	if HandleError(w, h.logger, err, "job not found") {
		return
	}

	telemetry.FromContext(r.Context()).Info("job updated", "job_id", job.ID, "status", job.Status, "next_run", job.NextRun)
	Success(w, JobFromDomain(job))
}

// editJob применяет req к свежей версии job и сохраняет её условной записью.
// Если между чтением и записью job захватил poller, попытка повторяется.
func (h *Handler) editJob(ctx context.Context, id uuid.UUID, req *UpdateJobRequest) (*domain.Job, error) {
	var err error
	for attempt := 0; attempt < maxEditAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(editRetryDelay):
			}
		}

		var job *domain.Job
		job, err = h.jobs.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		edit := repo.JobEdit{Version: job.UpdatedAt, Rearm: req.apply(job)}
		now := h.now().UTC()
		if edit.Rearm {
			if err := arm(job, now); err != nil {
				return nil, err
			}
		}
		job.UpdatedAt = now

		err = h.jobs.Edit(ctx, job, edit)
		if !errors.Is(err, repo.ErrConflict) {
			if err != nil {
				return nil, err
			}
			return job, nil
		}
	}
	return nil, err
}

// DeleteJob удаляет job вместе с историей runs.
// DELETE /api/v1/jobs/{id}
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	if HandleError(w, h.logger, h.jobs.Delete(r.Context(), id), "job not found") {
		return
	}

	telemetry.FromContext(r.Context()).Info("job deleted", "job_id", id)
	NoContent(w)
}

// arm проверяет расписание и вычисляет next_run.
// Только active job получает next_run; active job без будущих запусков сразу completed.
func arm(job *domain.Job, now time.Time) error {
	if err := scheduler.Validate(job.ScheduleExpr, job.Timezone); err != nil {
		return err
	}
	if !job.IsActive() {
		job.NextRun = nil
		return nil
	}

	next, err := scheduler.NextRun(job.ScheduleExpr, job.Timezone, now)
	if err != nil {
		return err
	}
	job.Reschedule(next, now)
	return nil
}
