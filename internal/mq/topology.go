package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeJobs     Exchange = "clipline.jobs"
	ExchangeUnits    Exchange = "clipline.units"
	ExchangeDLQ      Exchange = "clipline.dlq"
	ExchangeProgress Exchange = "clipline.progress"
)

// Queues — имена очередей.
const (
	QueueJobsCreated    Queue = "jobs.created"
	QueueUnitsReady     Queue = "units.ready"
	QueueUnitsCompleted Queue = "units.completed"
	QueueDLQUnits       Queue = "dlq.units"
)

// Routing keys.
const (
	RoutingKeyCreated   RoutingKey = "created"
	RoutingKeyReady     RoutingKey = "ready"
	RoutingKeyCompleted RoutingKey = "completed"
	RoutingKeyDLQUnits  RoutingKey = "units"
)

// SetupTopology объявляет exchanges, queues и bindings.
// Идемпотентно: повторное объявление с теми же параметрами безопасно,
// поэтому топологию поднимает каждый процесс при старте.
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
// clipline.progress — fanout: каждый подписчик (процесс с WebSocket
// клиентами) получает полный поток progress-событий через собственную
// эксклюзивную очередь.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeJobs, "direct"},
		{ExchangeUnits, "direct"},
		{ExchangeDLQ, "direct"},
		{ExchangeProgress, "fanout"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	// Аргументы для очередей с DLQ
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQUnits),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// jobs.created — без DLQ (создание job обрабатывается один раз)
		{QueueJobsCreated, nil},

		// units.ready — с DLQ (unit может уйти в DLQ после исчерпания retry)
		{QueueUnitsReady, dlqArgs},

		// units.completed — без DLQ (события завершения)
		{QueueUnitsCompleted, nil},

		// dlq.units — сама DLQ очередь
		{QueueDLQUnits, nil},
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
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueJobsCreated, RoutingKeyCreated, ExchangeJobs},
		{QueueUnitsReady, RoutingKeyReady, ExchangeUnits},
		{QueueUnitsCompleted, RoutingKeyCompleted, ExchangeUnits},
		{QueueDLQUnits, RoutingKeyDLQUnits, ExchangeDLQ},
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

// DeclareProgressQueue объявляет эксклюзивную очередь процесса и
// привязывает её к fanout-обменнику clipline.progress.
// Очередь живёт, пока жив подписчик: auto-delete + exclusive.
// Возвращает сгенерированное имя очереди.
func DeclareProgressQueue(ctx context.Context, conn *Connection) (string, error) {
	var name string
	err := conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		q, err := ch.QueueDeclare(
			"",    // name (auto-generated)
			false, // durable
			true,  // delete when unused
			true,  // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare progress queue: %w", err)
		}

		if err := ch.QueueBind(q.Name, "", string(ExchangeProgress), false, nil); err != nil {
			return fmt.Errorf("bind progress queue: %w", err)
		}

		name = q.Name
		return nil
	})
	return name, err
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Clipline RabbitMQ Topology:

    clipline.jobs (direct)
    └── jobs.created [routing: created]
            Consumer: Coordinator

    clipline.units (direct)
    ├── units.ready [routing: ready]
    │       Consumer: Worker
    │       DLQ: dlq.units
    └── units.completed [routing: completed]
            Consumer: Coordinator

    clipline.dlq (direct)
    └── dlq.units [routing: units]
            Manual processing

    clipline.progress (fanout)
    └── <exclusive per-process queue>
            Consumer: Hub relay (WebSocket broadcast)
  `
}
