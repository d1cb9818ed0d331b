package worker

import (
	"context"
	"errors"
)

// Ошибки выполнения.
var (
	// ErrUnknownType — нет executor'а для типа payload и не задан fallback.
	ErrUnknownType = errors.New("unknown payload type")

	// ErrInvalidPayload — в payload нет обязательного поля. Не повторяется.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrExecutionTimeout — выполнение превысило таймаут. Повторяется.
	ErrExecutionTimeout = errors.New("execution timeout")

	// ErrExecutionFailed — выполнение завершилось ошибкой. Повторяется.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrExecutorPanic — executor запаниковал. Не повторяется.
	ErrExecutorPanic = errors.New("executor panic")

	// ErrWorkerStopped — воркер остановлен.
	ErrWorkerStopped = errors.New("worker stopped")
)

// IsRetryable сообщает, имеет ли смысл повторять выполнение после err.
// Ошибки входных данных не исправятся сами, остальные считаются временными.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidPayload) || errors.Is(err, ErrUnknownType) || errors.Is(err, ErrExecutorPanic) {
		return false
	}
	return true
}

// IsCanceled сообщает, что выполнение прервано отменой контекста (остановка воркера),
// а не таймаутом.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
