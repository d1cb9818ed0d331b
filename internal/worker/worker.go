package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Tempo/internal/queue"
)

// Default configuration values.
const (
	defaultConcurrency  = 4
	defaultPollInterval = 30 * time.Second
	consumeRetryDelay   = 5 * time.Second
)

// Processor обрабатывает одну единицу работы: выполняет run и сохраняет результат.
type Processor interface {
	HandleUnit(ctx context.Context, unit queue.WorkUnit) error
}

// Reconciler возвращает в очередь runs, которые потерялись между процессами.
type Reconciler interface {
	Reconcile(ctx context.Context, now time.Time) (int, error)
}

// Worker — пул consumer'ов очереди выполнения.
//
// Worker stateless: состояние runs хранится в БД, очередь только доставляет
// идентификаторы. Несколько экземпляров потребляют из одной очереди.
type Worker struct {
	queue      queue.Queue
	processor  Processor
	reconciler Reconciler

	concurrency  int
	pollInterval time.Duration

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	Queue     queue.Queue
	Processor Processor

	// Reconciler (опционально) — polling fallback для потерянных runs.
	Reconciler Reconciler

	Concurrency  int           // количество consumer'ов (default: 4)
	PollInterval time.Duration // интервал reconcile (default: 30s)

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		queue:        cfg.Queue,
		processor:    cfg.Processor,
		reconciler:   cfg.Reconciler,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Start запускает consumer'ы и polling fallback. Не блокируется.
func (w *Worker) Start(ctx context.Context) error {
	if w.IsStopped() {
		return ErrWorkerStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"concurrency", w.concurrency,
		"poll_interval", w.pollInterval,
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			w.consumeLoop(ctx, id)
		}(i)
	}

	if w.reconciler != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.pollLoop(ctx)
		}()
	}

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker и ждёт завершения текущих runs.
// Прерванные runs сохраняются Processor'ом как failed с повтором.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	if w.stopped {
		w.stoppedMu.Unlock()
		return
	}
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// consumeLoop перезапускает Consume, пока ctx не отменён.
func (w *Worker) consumeLoop(ctx context.Context, id int) {
	logger := w.logger.With("consumer", id)

	for {
		err := w.queue.Consume(ctx, w.processor.HandleUnit)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, queue.ErrClosed) {
			logger.Info("queue closed, consumer exiting")
			return
		}
		if err != nil {
			logger.Error("consume failed, retrying", "error", err, "delay", consumeRetryDelay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(consumeRetryDelay):
		}
	}
}

// pollLoop — цикл reconcile.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый проход сразу: подхватываем runs, созданные пока воркеры были выключены
	w.reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reconcile(ctx)
		}
	}
}

func (w *Worker) reconcile(ctx context.Context) {
	n, err := w.reconciler.Reconcile(ctx, time.Now().UTC())
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("reconcile failed", "error", err)
		}
		return
	}
	if n > 0 {
		w.logger.Info("re-enqueued lost runs", "count", n)
	}
}
