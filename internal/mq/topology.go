package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// QueueName — тип для имени очереди.
type QueueName string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeRuns Exchange = "tempo.runs"
	ExchangeDLQ  Exchange = "tempo.dlq"
)

// Queues — имена очередей.
const (
	QueueRunsPending QueueName = "runs.pending"
	QueueRunsRetry   QueueName = "runs.retry"
	QueueDLQRuns     QueueName = "dlq.runs"
)

// Routing keys.
const (
	RoutingKeyPending RoutingKey = "pending"
	RoutingKeyRetry   RoutingKey = "retry"
	RoutingKeyDLQRuns RoutingKey = "runs"
)

// SetupTopology объявляет exchanges, queues и bindings. Операция идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	for _, name := range []Exchange{ExchangeRuns, ExchangeDLQ} {
		err := ch.ExchangeDeclare(
			string(name), // name
			"direct",     // type
			true,         // durable
			false,        // auto-deleted
			false,        // internal
			false,        // no-wait
			nil,          // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}
	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	queues := []struct {
		name QueueName
		args amqp.Table
	}{
		// runs.pending — необработанные сообщения уходят в dlq.runs
		{QueueRunsPending, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQRuns),
		}},

		// runs.retry — без consumer'ов: сообщение лежит до истечения
		// per-message TTL и возвращается в runs.pending через dead-letter
		{QueueRunsRetry, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeRuns),
			"x-dead-letter-routing-key": string(RoutingKeyPending),
		}},

		{QueueDLQRuns, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      QueueName
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueRunsPending, RoutingKeyPending, ExchangeRuns},
		{QueueRunsRetry, RoutingKeyRetry, ExchangeRuns},
		{QueueDLQRuns, RoutingKeyDLQRuns, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Tempo RabbitMQ Topology:

    tempo.runs (direct)
    ├── runs.pending [routing: pending]
    │       Consumer: tempo-worker
    │       DLQ: dlq.runs
    └── runs.retry [routing: retry]
            No consumers, per-message TTL
            Dead-letter: tempo.runs / pending

    tempo.dlq (direct)
    └── dlq.runs [routing: runs]
            Manual processing
  `
}
