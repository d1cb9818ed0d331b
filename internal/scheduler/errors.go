package scheduler

import "errors"

// ErrInvalidSchedule — выражение расписания не распознано
// или указан неизвестный часовой пояс.
var ErrInvalidSchedule = errors.New("invalid schedule")
