package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// Тесты Redis выполняются только при заданном TEMPO_TEST_REDIS_URL.
func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	url := os.Getenv("TEMPO_TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEMPO_TEST_REDIS_URL not set")
	}

	q, err := NewRedis(RedisOptions{URL: url, PollTimeout: 100 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	client := q.client.(*redis.Client)
	client.Del(context.Background(), readyKey, delayedKey)
	t.Cleanup(func() {
		client.Del(context.Background(), readyKey, delayedKey)
		q.Close()
	})
	return q
}

func TestRedis_EnqueueConsume(t *testing.T) {
	q := newTestRedis(t)
	if err := q.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}

	unit := newUnit()
	if err := q.Enqueue(context.Background(), unit); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	got, ok := consumeOne(t, q, 2*time.Second)
	if !ok || got.RunID != unit.RunID {
		t.Fatalf("expected unit %s, got %v (ok=%v)", unit.RunID, got.RunID, ok)
	}
}

func TestRedis_PromoteDue(t *testing.T) {
	q := newTestRedis(t)
	ctx := context.Background()

	now := time.Now()
	q.nowFunc = func() time.Time { return now }

	if err := q.EnqueueAfter(ctx, newUnit(), time.Minute); err != nil {
		t.Fatalf("enqueue after: %v", err)
	}

	if n, _ := q.PromoteDue(ctx); n != 0 {
		t.Fatalf("nothing should be promoted yet, got %d", n)
	}

	q.nowFunc = func() time.Time { return now.Add(2 * time.Minute) }
	if n, err := q.PromoteDue(ctx); err != nil || n != 1 {
		t.Fatalf("expected 1 promoted, got %d (%v)", n, err)
	}

	ready, delayed, err := q.Size(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ready != 1 || delayed != 0 {
		t.Errorf("expected 1 ready / 0 delayed, got %d / %d", ready, delayed)
	}
}

func TestReadyScore_RoundsUp(t *testing.T) {
	// Score не должен опережать момент готовности даже на долю миллисекунды
	at := time.Date(2030, 1, 1, 12, 0, 0, 700_000_001, time.UTC)
	want := float64(at.Truncate(time.Millisecond).UnixMilli() + 1)
	if got := readyScore(at); got != want {
		t.Errorf("readyScore(%v) = %v, want %v", at, got, want)
	}

	exact := time.Date(2030, 1, 1, 12, 0, 0, 700_000_000, time.UTC)
	if got := readyScore(exact); got != float64(exact.UnixMilli()) {
		t.Errorf("exact millisecond should not be rounded, got %v", got)
	}
}
