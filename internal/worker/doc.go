// Package worker выполняет runs из очереди.
//
// # Обзор
//
// Worker — stateless пул consumer'ов очереди выполнения. Каждая полученная
// единица работы (queue.WorkUnit) передаётся Processor'у, который переводит run
// в RUNNING, вызывает Registry и сохраняет результат. Periodic Reconcile
// подхватывает runs, потерянные очередью или упавшим процессом.
//
//	w := worker.New(worker.Config{
//	    Queue:      q,
//	    Processor:  manager,
//	    Reconciler: manager,
//	    Logger:     logger,
//	})
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Executor
//
// Стратегия выполнения одного типа payload:
//
//	type Executor interface {
//	    Execute(ctx context.Context, payload map[string]any) (*ExecutionResult, error)
//	}
//
// Встроенные реализации (NewRegistry):
//   - python_code, shell_script — ScriptExecutor, подпроцесс во временном каталоге
//   - data_processing, email_notification, ml_training — SimulatedExecutor
//   - dummy_sleep — SleepExecutor
//   - number_crunching — NumberExecutor
//   - http_request — HTTPExecutor
//   - всё остальное — DefaultExecutor
//
// # Шаблоны payload
//
// Payload с "template": true рендерится перед каждой попыткой (RenderPayload,
// text/template) данными попытки:
//
//	{"type": "http_request", "template": true,
//	 "url": "https://example.com/report?day={{ .Now.Format \"2006-01-02\" }}&attempt={{ .Run.Attempt }}"}
//
// Ошибка шаблона — ErrInvalidPayload.
//
// # Ошибки
//
// ErrInvalidPayload и ErrUnknownType не повторяются. ErrExecutionFailed,
// ErrExecutionTimeout и прочие ошибки считаются временными (IsRetryable).
// Отмена ctx (остановка воркера) возвращается как context.Canceled.
package worker
