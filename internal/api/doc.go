// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go     — Handler с DI (хранилища, RunStarter, logger)
//   - routes.go      — регистрация маршрутов
//   - middleware.go  — middleware (logging, recovery, metrics, X-API-Key)
//   - response.go    — унифицированные JSON-ответы, пагинация и обработка ошибок
//   - dto.go         — Data Transfer Objects (request/response)
//   - job_handler.go — обработчики для /jobs
//   - run_handler.go — обработчики для /runs и ручного запуска
//
// Некорректное расписание — 400 INVALID_SCHEDULE, ручной запуск неактивного job — 422.
package api
