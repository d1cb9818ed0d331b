package domain

// JobStatus — статус job.
//
// Жизненный цикл:
//
//	ACTIVE ⇄ PAUSED
//	ACTIVE → COMPLETED (у расписания больше нет будущих срабатываний)
//
// COMPLETED — терминальный: poller больше никогда не выбирает такой job.
type JobStatus string

const (
	// JobStatusActive — job участвует в планировании.
	JobStatusActive JobStatus = "active"

	// JobStatusPaused — job приостановлен пользователем.
	JobStatusPaused JobStatus = "paused"

	// JobStatusCompleted — у job больше нет будущих запусков.
	JobStatusCompleted JobStatus = "completed"
)

// IsValid проверяет, что статус входит в допустимый набор.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusActive, JobStatusPaused, JobStatusCompleted:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление JobStatus.
func (s JobStatus) String() string {
	return string(s)
}

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCESS
//	                  ↘ FAILED (может снова стать RUNNING при отложенном retry)
//
// Retry — это решение, а не сохраняемый статус: тот же run накапливает retry_count.
type RunStatus string

const (
	// RunStatusPending — run создан и ожидает worker'а.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning — run выполняется.
	RunStatusRunning RunStatus = "running"

	// RunStatusSuccess — run завершился успешно.
	RunStatusSuccess RunStatus = "success"

	// RunStatusFailed — run завершился с ошибкой.
	RunStatusFailed RunStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный.
// FAILED с запланированным retry финальным не считается — см. JobRun.IsFinished.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusFailed:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что статус входит в допустимый набор.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusSuccess, RunStatusFailed:
		return true
	default:
		return false
	}
}
