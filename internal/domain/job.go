package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTimezone — часовой пояс по умолчанию для интерпретации schedule_expr.
const DefaultTimezone = "UTC"

// Job — единица планирования.
//
// Job описывает, что выполнять (Payload) и когда (ScheduleExpr + Timezone).
// Каждое срабатывание создаёт JobRun.
//
// Poller ориентируется только на NextRun: job с Status=active и NextRun <= now
// считается due.
type Job struct {
	// ID — уникальный идентификатор job.
	ID uuid.UUID `json:"id"`

	// Name — отображаемое имя.
	Name string `json:"name"`

	// ScheduleExpr — выражение расписания.
	// Форматы:
	//   "*/5 * * * *"          — cron (5 полей)
	//   "2030-01-01T12:00:00Z" — разовый запуск в указанный момент
	//   "30s", "5m", "1h", "1d" — интервал от момента вычисления
	ScheduleExpr string `json:"schedule_expr"`

	// Timezone — IANA-зона для интерпретации ScheduleExpr.
	// Все сохраняемые времена — UTC.
	Timezone string `json:"timezone"`

	// Payload — данные для JobExecutor. Поле "type" выбирает стратегию выполнения.
	Payload map[string]any `json:"payload"`

	// RetryPolicy — политика повторов. Nil — значения по умолчанию.
	RetryPolicy *RetryPolicy `json:"retry_policy,omitempty"`

	// Status — active, paused или completed.
	Status JobStatus `json:"status"`

	// LastRun — время последнего запуска.
	LastRun *time.Time `json:"last_run,omitempty"`

	// NextRun — время следующего запуска. Nil — job не будет выбран poller'ом.
	NextRun *time.Time `json:"next_run,omitempty"`

	// OwnerID — владелец, используется только для фильтрации.
	OwnerID string `json:"owner_id,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего обновления.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive возвращает true, если job участвует в планировании.
func (j *Job) IsActive() bool {
	return j.Status == JobStatusActive
}

// IsDue проверяет, пора ли запускать job.
func (j *Job) IsDue(now time.Time) bool {
	if !j.IsActive() || j.NextRun == nil {
		return false
	}
	return !j.NextRun.After(now)
}

// PayloadType возвращает тип payload ("default", если не задан).
func (j *Job) PayloadType() string {
	return PayloadType(j.Payload)
}

// Policy возвращает политику повторов с учётом значений по умолчанию.
func (j *Job) Policy() RetryPolicy {
	if j.RetryPolicy == nil {
		return RetryPolicy{}
	}
	return *j.RetryPolicy
}

// Reschedule записывает новое время следующего запуска.
// next == nil означает, что будущих срабатываний нет: job завершается.
func (j *Job) Reschedule(next *time.Time, now time.Time) {
	j.NextRun = utcPtr(next)
	if next == nil && j.Status == JobStatusActive {
		j.Status = JobStatusCompleted
	}
	j.UpdatedAt = now.UTC()
}

// RecordRun записывает время запуска.
func (j *Job) RecordRun(at time.Time) {
	t := at.UTC()
	j.LastRun = &t
}

// Disarm снимает job с планирования, не меняя статус.
// Используется для job с некорректным расписанием: он остаётся active,
// но не будет выбран, пока расписание не исправят.
func (j *Job) Disarm(now time.Time) {
	j.NextRun = nil
	j.UpdatedAt = now.UTC()
}

// PayloadType извлекает поле "type" из payload.
func PayloadType(payload map[string]any) string {
	if t, ok := payload["type"].(string); ok && t != "" {
		return t
	}
	return "default"
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
