package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// SimulatedExecutor — заглушка долгой операции: ждёт Duration и возвращает сообщение.
// Используется для data_processing, email_notification и ml_training.
type SimulatedExecutor struct {
	Duration time.Duration
	Message  func(payload map[string]any) string
}

// Execute ждёт Duration с учётом отмены ctx.
func (e *SimulatedExecutor) Execute(ctx context.Context, payload map[string]any) (*ExecutionResult, error) {
	if err := sleepCtx(ctx, e.Duration); err != nil {
		return nil, err
	}
	return &ExecutionResult{Logs: e.Message(payload)}, nil
}

// SleepExecutor — executor для dummy_sleep.
//
// Config (из payload):
//   - duration (number): длительность в единицах Unit (default: 5)
type SleepExecutor struct {
	Unit time.Duration
}

// Execute ждёт duration единиц.
func (e *SleepExecutor) Execute(ctx context.Context, payload map[string]any) (*ExecutionResult, error) {
	duration := getFloat(payload, "duration", 5)
	if duration < 0 {
		return nil, fmt.Errorf("%w: duration must be non-negative", ErrInvalidPayload)
	}

	unit := e.Unit
	if unit <= 0 {
		unit = time.Second
	}
	if err := sleepCtx(ctx, time.Duration(duration*float64(unit))); err != nil {
		return nil, err
	}

	return &ExecutionResult{
		Logs:    fmt.Sprintf("Dummy sleep job completed after %s seconds.", strconv.FormatFloat(duration, 'f', -1, 64)),
		Outputs: map[string]any{"duration": duration},
	}, nil
}

// DefaultExecutor — executor для неизвестных типов: короткая пауза и эхо payload.
// Никогда не возвращает ошибку, кроме отмены ctx.
type DefaultExecutor struct {
	Delay time.Duration
}

// Execute возвращает payload как outputs.
func (e *DefaultExecutor) Execute(ctx context.Context, payload map[string]any) (*ExecutionResult, error) {
	if err := sleepCtx(ctx, e.Delay); err != nil {
		return nil, err
	}

	outputs := payload
	if outputs == nil {
		outputs = make(map[string]any)
	}
	return &ExecutionResult{
		Logs:    fmt.Sprintf("Default job executed with data: %v.", outputs),
		Outputs: outputs,
	}, nil
}
