package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Tempo/internal/domain"
)

// Ограничения полей.
const (
	maxNameLen  = 255
	maxOwnerLen = 100
)

// Job DTOs

// CreateJobRequest — запрос на создание job.
type CreateJobRequest struct {
	Name         string              `json:"name"`
	ScheduleExpr string              `json:"schedule_expr"`
	Timezone     string              `json:"timezone,omitempty"`
	Payload      map[string]any      `json:"payload,omitempty"`
	RetryPolicy  *domain.RetryPolicy `json:"retry_policy,omitempty"`
	OwnerID      string              `json:"owner_id,omitempty"`
	Status       domain.JobStatus    `json:"status,omitempty"`
}

// Validate проверяет поля, не связанные с расписанием.
func (r *CreateJobRequest) Validate() error {
	if r.Name == "" || len(r.Name) > maxNameLen {
		return fmt.Errorf("name is required and must be at most %d characters", maxNameLen)
	}
	if r.ScheduleExpr == "" {
		return errors.New("schedule_expr is required")
	}
	if len(r.OwnerID) > maxOwnerLen {
		return fmt.Errorf("owner_id must be at most %d characters", maxOwnerLen)
	}
	if r.Status != "" && !r.Status.IsValid() {
		return fmt.Errorf("status must be one of active, paused, completed")
	}
	return validatePolicy(r.RetryPolicy)
}

// UpdateJobRequest — частичное обновление job. Nil-поля не меняются.
type UpdateJobRequest struct {
	Name         *string             `json:"name,omitempty"`
	ScheduleExpr *string             `json:"schedule_expr,omitempty"`
	Timezone     *string             `json:"timezone,omitempty"`
	Payload      map[string]any      `json:"payload,omitempty"`
	RetryPolicy  *domain.RetryPolicy `json:"retry_policy,omitempty"`
	OwnerID      *string             `json:"owner_id,omitempty"`
	Status       *domain.JobStatus   `json:"status,omitempty"`
}

// Validate проверяет заданные поля.
func (r *UpdateJobRequest) Validate() error {
	if r.Name != nil && (*r.Name == "" || len(*r.Name) > maxNameLen) {
		return fmt.Errorf("name must be 1..%d characters", maxNameLen)
	}
	if r.ScheduleExpr != nil && *r.ScheduleExpr == "" {
		return errors.New("schedule_expr cannot be empty")
	}
	if r.OwnerID != nil && len(*r.OwnerID) > maxOwnerLen {
		return fmt.Errorf("owner_id must be at most %d characters", maxOwnerLen)
	}
	if r.Status != nil && !r.Status.IsValid() {
		return fmt.Errorf("status must be one of active, paused, completed")
	}
	return validatePolicy(r.RetryPolicy)
}

// apply переносит заданные поля в job и сообщает, нужно ли пересчитать next_run.
func (r *UpdateJobRequest) apply(job *domain.Job) (rearm bool) {
	if r.Name != nil {
		job.Name = *r.Name
	}
	if r.ScheduleExpr != nil && *r.ScheduleExpr != job.ScheduleExpr {
		job.ScheduleExpr = *r.ScheduleExpr
		rearm = true
	}
	if r.Timezone != nil && *r.Timezone != job.Timezone {
		job.Timezone = *r.Timezone
		rearm = true
	}
	if r.Payload != nil {
		job.Payload = r.Payload
	}
	if r.RetryPolicy != nil {
		job.RetryPolicy = r.RetryPolicy
	}
	if r.OwnerID != nil {
		job.OwnerID = *r.OwnerID
	}
	if r.Status != nil && *r.Status != job.Status {
		job.Status = *r.Status
		rearm = true
	}
	return rearm
}

func validatePolicy(p *domain.RetryPolicy) error {
	if p == nil {
		return nil
	}
	if p.MaxRetries != nil && *p.MaxRetries < 0 {
		return errors.New("retry_policy.max_retries cannot be negative")
	}
	if p.BaseDelaySeconds != nil && *p.BaseDelaySeconds < 0 {
		return errors.New("retry_policy.base_delay_seconds cannot be negative")
	}
	if p.BackoffFactor != nil && *p.BackoffFactor < 0 {
		return errors.New("retry_policy.backoff_factor cannot be negative")
	}
	if p.MaxDelaySeconds < 0 {
		return errors.New("retry_policy.max_delay_seconds cannot be negative")
	}
	return nil
}

// JobResponse — ответ с job.
type JobResponse struct {
	ID           uuid.UUID           `json:"id"`
	Name         string              `json:"name"`
	ScheduleExpr string              `json:"schedule_expr"`
	Timezone     string              `json:"timezone"`
	Payload      map[string]any      `json:"payload"`
	RetryPolicy  *domain.RetryPolicy `json:"retry_policy,omitempty"`
	Status       domain.JobStatus    `json:"status"`
	LastRun      *time.Time          `json:"last_run,omitempty"`
	NextRun      *time.Time          `json:"next_run,omitempty"`
	OwnerID      string              `json:"owner_id,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// JobFromDomain конвертирует domain.Job в JobResponse.
func JobFromDomain(j *domain.Job) JobResponse {
	payload := j.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return JobResponse{
		ID:           j.ID,
		Name:         j.Name,
		ScheduleExpr: j.ScheduleExpr,
		Timezone:     j.Timezone,
		Payload:      payload,
		RetryPolicy:  j.RetryPolicy,
		Status:       j.Status,
		LastRun:      j.LastRun,
		NextRun:      j.NextRun,
		OwnerID:      j.OwnerID,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

// Run DTOs

// RunResponse — ответ с run.
type RunResponse struct {
	ID          uuid.UUID        `json:"id"`
	JobID       uuid.UUID        `json:"job_id"`
	Status      domain.RunStatus `json:"status"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
	Logs        string           `json:"logs,omitempty"`
	Error       string           `json:"error,omitempty"`
	RetryCount  int              `json:"retry_count"`
	NextRetryAt *time.Time       `json:"next_retry_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// RunFromDomain конвертирует domain.JobRun в RunResponse.
func RunFromDomain(r *domain.JobRun) RunResponse {
	return RunResponse{
		ID:          r.ID,
		JobID:       r.JobID,
		Status:      r.Status,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Logs:        r.Logs,
		Error:       r.Error,
		RetryCount:  r.RetryCount,
		NextRetryAt: r.NextRetryAt,
		CreatedAt:   r.CreatedAt,
	}
}

// RunNowResponse — ответ на ручной запуск.
type RunNowResponse struct {
	JobID uuid.UUID `json:"job_id"`
	RunID uuid.UUID `json:"run_id"`
}
