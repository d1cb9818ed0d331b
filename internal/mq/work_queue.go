package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Tempo/internal/queue"
)

// WorkQueue — реализация queue.Queue поверх RabbitMQ.
//
// Enqueue публикует в runs.pending, EnqueueAfter — в runs.retry с TTL,
// Consume создаёт Consumer на отдельном канале.
type WorkQueue struct {
	conn      *Connection
	publisher *Publisher
	logger    *slog.Logger
	prefetch  int
}

var _ queue.Queue = (*WorkQueue)(nil)

// NewWorkQueue подключается к RabbitMQ и объявляет топологию.
func NewWorkQueue(ctx context.Context, url string, prefetch int, logger *slog.Logger) (*WorkQueue, error) {
	if url == "" {
		url = DefaultURL()
	}

	conn, err := NewConnection(url, logger)
	if err != nil {
		return nil, err
	}

	if err := SetupTopology(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setup topology: %w", err)
	}
	logger.Debug("rabbitmq topology declared", "topology", TopologyInfo())

	return &WorkQueue{
		conn:      conn,
		publisher: NewPublisher(conn, logger),
		logger:    logger,
		prefetch:  prefetch,
	}, nil
}

// Enqueue публикует единицу в runs.pending.
func (q *WorkQueue) Enqueue(ctx context.Context, unit queue.WorkUnit) error {
	return q.publisher.PublishRunReady(ctx, unit)
}

// EnqueueAfter публикует единицу в runs.retry с per-message TTL.
//
// RabbitMQ истекает сообщения только с головы очереди, поэтому короткая задержка
// за длинной может сработать позже срока. Такие runs подбирает
// lifecycle.Manager.Reconcile по next_retry_at.
func (q *WorkQueue) EnqueueAfter(ctx context.Context, unit queue.WorkUnit, delay time.Duration) error {
	return q.publisher.PublishRunRetry(ctx, unit, delay)
}

// Consume потребляет runs.pending до отмены ctx.
func (q *WorkQueue) Consume(ctx context.Context, handler queue.Handler) error {
	consumer := NewConsumer(q.conn, q.logger, ConsumerConfig{
		Queue:    string(QueueRunsPending),
		Prefetch: q.prefetch,
		Handler: func(ctx context.Context, d *Delivery) error {
			unit, err := ParsePayload[queue.WorkUnit](&d.Message)
			if err != nil {
				return err
			}
			return handler(ctx, unit)
		},
	})
	return consumer.Start(ctx)
}

// Ping сообщает, есть ли живое соединение с брокером.
func (q *WorkQueue) Ping(_ context.Context) error {
	if !q.conn.IsConnected() {
		return fmt.Errorf("rabbitmq: not connected")
	}
	return nil
}

// Close закрывает соединение.
func (q *WorkQueue) Close() error {
	return q.conn.Close()
}
