package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newUnit() WorkUnit {
	return WorkUnit{JobID: uuid.New(), RunID: uuid.New(), Payload: map[string]any{"type": "default"}}
}

// consumeOne запускает Consume и возвращает первую полученную единицу.
func consumeOne(t *testing.T, q Queue, timeout time.Duration) (WorkUnit, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	got := make(chan WorkUnit, 1)
	go q.Consume(ctx, func(_ context.Context, unit WorkUnit) error {
		select {
		case got <- unit:
		default:
		}
		cancel()
		return nil
	})

	select {
	case unit := <-got:
		return unit, true
	case <-ctx.Done():
		select {
		case unit := <-got:
			return unit, true
		default:
			return WorkUnit{}, false
		}
	}
}

// --- Memory Tests ---

func TestMemory_EnqueueConsume(t *testing.T) {
	q := NewMemory(10, nil)
	defer q.Close()

	unit := newUnit()
	if err := q.Enqueue(context.Background(), unit); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	got, ok := consumeOne(t, q, time.Second)
	if !ok {
		t.Fatal("expected a unit")
	}
	if got.RunID != unit.RunID {
		t.Errorf("expected run %s, got %s", unit.RunID, got.RunID)
	}
}

func TestMemory_EnqueueAfter(t *testing.T) {
	q := NewMemory(10, nil)
	defer q.Close()

	unit := newUnit()
	if err := q.EnqueueAfter(context.Background(), unit, 50*time.Millisecond); err != nil {
		t.Fatalf("enqueue after: %v", err)
	}
	if q.Len() != 0 {
		t.Fatal("delayed unit should not be ready yet")
	}

	start := time.Now()
	got, ok := consumeOne(t, q, 2*time.Second)
	if !ok {
		t.Fatal("expected delayed unit")
	}
	if got.RunID != unit.RunID {
		t.Errorf("unexpected unit %s", got.RunID)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Errorf("unit delivered too early: %v", time.Since(start))
	}
}

func TestMemory_Close(t *testing.T) {
	q := NewMemory(1, nil)
	q.EnqueueAfter(context.Background(), newUnit(), time.Hour)
	q.Close()

	if err := q.Enqueue(context.Background(), newUnit()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := q.Consume(context.Background(), func(context.Context, WorkUnit) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Consume, got %v", err)
	}
}

func TestMemory_EnqueueRespectsContext(t *testing.T) {
	q := NewMemory(1, nil)
	defer q.Close()

	q.Enqueue(context.Background(), newUnit())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Enqueue(ctx, newUnit()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded on full buffer, got %v", err)
	}
}
