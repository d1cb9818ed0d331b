package lifecycle

import "errors"

var (
	// ErrJobNotActive — ручной запуск job, который не в статусе active.
	ErrJobNotActive = errors.New("job is not active")

	// ErrRunNotStartable — run уже выполняется, завершён или ждёт retry.
	// Возникает при повторной доставке одного run и безопасно игнорируется.
	ErrRunNotStartable = errors.New("run is not startable")
)
