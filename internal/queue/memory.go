package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Memory — очередь в памяти процесса.
type Memory struct {
	ch     chan WorkUnit
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	logger *slog.Logger
}

// NewMemory создаёт очередь с буфером size.
func NewMemory(size int, logger *slog.Logger) *Memory {
	if size <= 0 {
		size = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		ch:     make(chan WorkUnit, size),
		done:   make(chan struct{}),
		timers: make(map[*time.Timer]struct{}),
		logger: logger,
	}
}

// Enqueue ставит единицу в очередь. Блокируется, если буфер заполнен.
func (q *Memory) Enqueue(ctx context.Context, unit WorkUnit) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.ch <- unit:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueueAfter ставит единицу в очередь по таймеру.
func (q *Memory) EnqueueAfter(ctx context.Context, unit WorkUnit, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, unit)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		q.mu.Unlock()

		// ctx вызывающего к этому моменту уже может быть отменён
		if err := q.Enqueue(context.Background(), unit); err != nil {
			q.logger.Warn("delayed enqueue dropped", "run_id", unit.RunID, "error", err)
		}
	})
	q.timers[timer] = struct{}{}
	return nil
}

// Consume забирает единицы до отмены ctx или закрытия очереди.
func (q *Memory) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			return ErrClosed
		case unit := <-q.ch:
			if err := handler(ctx, unit); err != nil {
				q.logger.Warn("work unit handler failed", "run_id", unit.RunID, "error", err)
			}
		}
	}
}

// Len возвращает количество единиц, готовых к обработке.
func (q *Memory) Len() int {
	return len(q.ch)
}

// Delayed возвращает количество единиц, ожидающих своего таймера.
func (q *Memory) Delayed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}

// Close останавливает таймеры отложенных единиц и закрывает очередь.
func (q *Memory) Close() error {
	q.once.Do(func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		for t := range q.timers {
			t.Stop()
		}
		q.timers = map[*time.Timer]struct{}{}
		close(q.done)
	})
	return nil
}
