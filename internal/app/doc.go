// Package app собирает компоненты Tempo для бинарников.
//
// Open выбирает хранилище (STORE_BACKEND) и очередь (QUEUE_BACKEND) и создаёт
// lifecycle.Manager. Из App бинарники получают нужные им роли:
//
//	a, err := app.Open(ctx, cfg, logger)
//	defer a.Close()
//
//	a.Scheduler().Run(ctx, cfg.Scheduler.PollInterval, cfg.Runs.CleanupInterval)
//	a.Worker().Start(ctx)
//	a.APIHandler().RegisterRoutes(mux)
//
// App.Mux добавляет к /healthz и /metrics проверку /readyz: ping Postgres
// и очереди (Redis, RabbitMQ).
//
// Memory-хранилище и memory-очередь живут внутри процесса, поэтому имеют смысл
// только в tempo-standalone, где все роли работают вместе.
package app
