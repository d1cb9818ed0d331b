// Package mq — backend очереди выполнения на RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация WorkUnit
//   - consumer.go   — потребление сообщений на отдельном канале
//   - work_queue.go — WorkQueue, реализация queue.Queue
//
// Отложенные повторы:
//
// runs.retry не имеет consumer'ов. Сообщение публикуется туда с per-message TTL,
// по истечении которого RabbitMQ через dead-letter возвращает его в runs.pending.
//
// Exchanges:
//   - tempo.runs — runs.pending и runs.retry
//   - tempo.dlq  — dead letter queue
package mq
