// Package lifecycle управляет жизненным циклом JobRun.
//
// Manager — единственное место, где меняется статус run:
//
//	PENDING ──Start──► RUNNING ──► SUCCESS
//	                      │
//	                      └──► FAILED ──(next_retry_at наступил)──► RUNNING
//
// Переход в RUNNING условный (repo Start), поэтому повторная доставка
// одного WorkUnit не приводит к двойному выполнению.
//
// После неудачной попытки Manager решает, повторять ли её: ошибка должна быть
// временной (worker.IsRetryable), а политика — разрешать ещё одну попытку.
// Повтор — это тот же run, поставленный в очередь с задержкой NextDelay(retry_count).
// Результат попытки возвращается явно в Outcome.
//
// Reconcile подбирает runs, потерянные между процессами: pending без сообщения
// в очереди, failed с наступившим next_retry_at и зависшие в RUNNING.
package lifecycle
