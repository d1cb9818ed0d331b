// Package queue — очередь выполнения runs.
//
// Scheduler и API ставят в очередь WorkUnit, worker'ы забирают его через Consume.
// Отложенные повторы (EnqueueAfter) реализуются самой очередью, а не сном worker'а.
//
// Реализации:
//   - Memory — канал и таймеры, для одного процесса (dev-режим, тесты)
//   - Redis  — список tempo:runs:ready и ZSET tempo:runs:delayed
//   - mq.WorkQueue (пакет internal/mq) — RabbitMQ с wait-очередью на TTL
//
// Доставка — at-least-once: повторная доставка одного run безвредна,
// так как переход в RUNNING условный.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrClosed — очередь закрыта.
var ErrClosed = errors.New("queue closed")

// WorkUnit — единица работы для worker'а.
type WorkUnit struct {
	JobID   uuid.UUID      `json:"job_id"`
	RunID   uuid.UUID      `json:"run_id"`
	Payload map[string]any `json:"payload"`
}

// Handler обрабатывает WorkUnit. Ошибка означает, что единицу обработать не удалось
// и очередь может отправить её в DLQ; результат run при этом уже сохранён.
type Handler func(ctx context.Context, unit WorkUnit) error

// Queue — очередь выполнения.
type Queue interface {
	// Enqueue ставит единицу в очередь для немедленной обработки.
	Enqueue(ctx context.Context, unit WorkUnit) error

	// EnqueueAfter ставит единицу в очередь с задержкой.
	EnqueueAfter(ctx context.Context, unit WorkUnit, delay time.Duration) error

	// Consume блокируется до отмены ctx, вызывая handler последовательно.
	Consume(ctx context.Context, handler Handler) error

	// Close освобождает ресурсы очереди.
	Close() error
}
