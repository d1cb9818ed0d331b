// Package telemetry обеспечивает наблюдаемость Tempo.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики планировщика, worker'ов и API
//
// Все бинарники используют единый формат логирования
// и экспортируют метрики на /metrics endpoint.
package telemetry
