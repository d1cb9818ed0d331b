// Package repo — слой хранения jobs и job_runs.
//
// Две реализации с одинаковым набором методов:
//   - JobRepo / RunRepo — PostgreSQL через pgx (production)
//   - MemoryStore — in-memory (dev-режим и тесты)
//
// Захват due job выполняется через ClaimDue: в PostgreSQL это
// SELECT ... FOR UPDATE SKIP LOCKED в отдельной транзакции на каждый job,
// в MemoryStore — claim lease под мьютексом. В обоих случаях
// один due job забирает ровно один poller.
//
// Переход run в RUNNING (Start) — условный UPDATE: повторная доставка
// того же run получает ErrInvalidState и ничего не меняет.
package repo
