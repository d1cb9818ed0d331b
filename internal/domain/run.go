package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobRun — запись об одной попытке выполнения job.
//
// JobRun создаётся poller'ом или запросом "run now" в статусе PENDING
// и изменяется только lifecycle.Manager. Повторная попытка не создаёт новый run:
// тот же run увеличивает RetryCount и снова проходит RUNNING.
type JobRun struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// JobID — ссылка на job-владельца.
	JobID uuid.UUID `json:"job_id"`

	// Status — текущий статус.
	Status RunStatus `json:"status"`

	// StartedAt — начало последней попытки. Nil до первого старта.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — конец последней попытки.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Logs — вывод успешного выполнения.
	Logs string `json:"logs,omitempty"`

	// Error — описание ошибки последней неудачной попытки.
	Error string `json:"error,omitempty"`

	// RetryCount — количество неудачных попыток.
	RetryCount int `json:"retry_count"`

	// NextRetryAt — когда run можно запустить повторно.
	// Не nil только пока FAILED run ждёт отложенного retry.
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// NewRun создаёт run в статусе PENDING.
func NewRun(jobID uuid.UUID, now time.Time) *JobRun {
	return &JobRun{
		ID:        uuid.New(),
		JobID:     jobID,
		Status:    RunStatusPending,
		CreatedAt: now.UTC(),
	}
}

// Duration возвращает продолжительность последней попытки.
func (r *JobRun) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён и больше не будет выполняться.
func (r *JobRun) IsFinished() bool {
	return r.Status.IsTerminal() && r.NextRetryAt == nil
}

// CanStart проверяет, можно ли перевести run в RUNNING.
func (r *JobRun) CanStart(now time.Time) bool {
	switch r.Status {
	case RunStatusPending:
		return true
	case RunStatusFailed:
		return r.NextRetryAt != nil && !r.NextRetryAt.After(now)
	default:
		return false
	}
}

// MarkRunning переводит run в статус RUNNING.
func (r *JobRun) MarkRunning(now time.Time) {
	t := now.UTC()
	r.Status = RunStatusRunning
	r.StartedAt = &t
	r.FinishedAt = nil
	r.NextRetryAt = nil
}

// MarkSucceeded переводит run в статус SUCCESS.
func (r *JobRun) MarkSucceeded(logs string, now time.Time) {
	t := now.UTC()
	r.Status = RunStatusSuccess
	r.FinishedAt = &t
	r.Logs = storableText(logs)
	r.Error = ""
}

// MarkFailed переводит run в статус FAILED и увеличивает RetryCount.
func (r *JobRun) MarkFailed(errMsg string, now time.Time) {
	t := now.UTC()
	r.Status = RunStatusFailed
	r.FinishedAt = &t
	r.Error = storableText(errMsg)
	r.RetryCount++
	r.NextRetryAt = nil
}

// ScheduleRetry запоминает момент отложенной повторной попытки.
func (r *JobRun) ScheduleRetry(at time.Time) {
	t := at.UTC()
	r.NextRetryAt = &t
}

// storableText приводит вывод executor'а к виду, который принимает колонка TEXT:
// невалидные UTF-8 последовательности заменяются на U+FFFD, байты NUL удаляются.
func storableText(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	return strings.ReplaceAll(s, "\x00", "")
}
