package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	readyKey   = "tempo:runs:ready"   // список единиц, готовых к обработке
	delayedKey = "tempo:runs:delayed" // ZSET отложенных единиц, score — unix-время готовности в мс
)

// RedisOptions — параметры подключения к Redis.
type RedisOptions struct {
	URL            string
	ConnectTimeout time.Duration
	PollTimeout    time.Duration // таймаут BRPOP, он же период переноса отложенных (default: 1s)
	PromoteBatch   int64         // максимум отложенных единиц за один перенос (default: 100)
}

// Redis — очередь на Redis.
//
// Готовые единицы лежат в списке (LPUSH / BRPOP), отложенные — в ZSET.
// Consume перед каждым BRPOP переносит наступившие отложенные единицы в список.
// Перенос защищён ZREM: единицу переносит только тот consumer, чей ZREM её удалил.
type Redis struct {
	client  redis.Cmdable
	closer  func() error
	opts    RedisOptions
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewRedis подключается к Redis и проверяет соединение.
func NewRedis(opts RedisOptions, logger *slog.Logger) (*Redis, error) {
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	redisOpts.DialTimeout = opts.ConnectTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	q := NewRedisWithClient(client, opts, logger)
	q.closer = client.Close
	return q, nil
}

// NewRedisWithClient создаёт очередь поверх готового клиента.
func NewRedisWithClient(client redis.Cmdable, opts RedisOptions, logger *slog.Logger) *Redis {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = time.Second
	}
	if opts.PromoteBatch <= 0 {
		opts.PromoteBatch = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		client:  client,
		opts:    opts,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Enqueue ставит единицу в список готовых.
func (q *Redis) Enqueue(ctx context.Context, unit WorkUnit) error {
	data, err := json.Marshal(unit)
	if err != nil {
		return fmt.Errorf("marshal work unit: %w", err)
	}
	if err := q.client.LPush(ctx, readyKey, data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// EnqueueAfter кладёт единицу в ZSET со временем готовности в качестве score.
func (q *Redis) EnqueueAfter(ctx context.Context, unit WorkUnit, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, unit)
	}

	data, err := json.Marshal(unit)
	if err != nil {
		return fmt.Errorf("marshal work unit: %w", err)
	}

	err = q.client.ZAdd(ctx, delayedKey, &redis.Z{
		Score:  readyScore(q.nowFunc().Add(delay)),
		Member: data,
	}).Err()
	if err != nil {
		return fmt.Errorf("zadd: %w", err)
	}
	return nil
}

// Consume обрабатывает единицы до отмены ctx.
func (q *Redis) Consume(ctx context.Context, handler Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := q.PromoteDue(ctx); err != nil && ctx.Err() == nil {
			q.logger.Warn("failed to promote delayed units", "error", err)
		}

		result, err := q.client.BRPop(ctx, q.opts.PollTimeout, readyKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.logger.Error("brpop failed", "error", err)
			sleepCtx(ctx, q.opts.PollTimeout)
			continue
		}
		if len(result) != 2 {
			q.logger.Error("unexpected BRPOP result", "result", result)
			continue
		}

		var unit WorkUnit
		if err := json.Unmarshal([]byte(result[1]), &unit); err != nil {
			q.logger.Error("dropping malformed work unit", "error", err)
			continue
		}

		if err := handler(ctx, unit); err != nil {
			q.logger.Warn("work unit handler failed", "run_id", unit.RunID, "error", err)
		}
	}
}

// PromoteDue переносит наступившие отложенные единицы в список готовых.
// Возвращает количество перенесённых единиц.
func (q *Redis) PromoteDue(ctx context.Context) (int, error) {
	maxScore := strconv.FormatInt(q.nowFunc().UnixMilli(), 10)
	members, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   maxScore,
		Count: q.opts.PromoteBatch,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore: %w", err)
	}

	promoted := 0
	for _, member := range members {
		removed, err := q.client.ZRem(ctx, delayedKey, member).Result()
		if err != nil {
			return promoted, fmt.Errorf("zrem: %w", err)
		}
		if removed == 0 {
			// единицу уже перенёс другой consumer
			continue
		}
		if err := q.client.LPush(ctx, readyKey, member).Err(); err != nil {
			return promoted, fmt.Errorf("lpush: %w", err)
		}
		promoted++
	}
	return promoted, nil
}

// readyScore — score отложенной единицы: unix-время в миллисекундах,
// округлённое вверх. Единица не становится готовой раньше readyAt.
func readyScore(readyAt time.Time) float64 {
	ms := readyAt.UnixMilli()
	if readyAt.Sub(time.UnixMilli(ms)) > 0 {
		ms++
	}
	return float64(ms)
}

// Size возвращает количество готовых и отложенных единиц.
func (q *Redis) Size(ctx context.Context) (ready, delayed int64, err error) {
	pipe := q.client.Pipeline()
	readyCmd := pipe.LLen(ctx, readyKey)
	delayedCmd := pipe.ZCard(ctx, delayedKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("queue size: %w", err)
	}
	return readyCmd.Val(), delayedCmd.Val(), nil
}

// Ping проверяет соединение с Redis.
func (q *Redis) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close закрывает соединение, если очередь его создала.
func (q *Redis) Close() error {
	if q.closer != nil {
		return q.closer()
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
