package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/Tempo/internal/config"
	"github.com/shaiso/Tempo/internal/mq"
	"github.com/shaiso/Tempo/internal/queue"
)

// memoryQueueSize — буфер готовых единиц memory-очереди.
const memoryQueueSize = 1024

// OpenQueue создаёт очередь выполнения по QUEUE_BACKEND.
//
// prefetch задаёт QoS RabbitMQ и обычно равен числу consumer'ов.
func OpenQueue(ctx context.Context, cfg config.Queue, prefetch int, logger *slog.Logger) (queue.Queue, error) {
	switch cfg.Backend {
	case config.QueueMemory:
		return queue.NewMemory(memoryQueueSize, logger), nil

	case config.QueueRedis:
		q, err := queue.NewRedis(queue.RedisOptions{URL: cfg.RedisURL}, logger)
		if err != nil {
			return nil, fmt.Errorf("open redis queue: %w", err)
		}
		return q, nil

	case config.QueueAMQP:
		q, err := mq.NewWorkQueue(ctx, cfg.RabbitMQURL, prefetch, logger)
		if err != nil {
			return nil, fmt.Errorf("open rabbitmq queue: %w", err)
		}
		return q, nil

	default:
		return nil, fmt.Errorf("%w: unknown queue backend %q", config.ErrInvalid, cfg.Backend)
	}
}
