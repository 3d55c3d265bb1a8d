// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//   - memory.go     — in-process шина progress-событий (однопроцессный режим, тесты)
//
// Типы сообщений:
//   - job.created     — новый job ожидает запуска pipeline
//   - unit.ready      — unit готов к выполнению worker'ом
//   - unit.completed  — unit завершён (успех или ошибка)
//   - progress        — частичное обновление состояния job для подписчиков
//
// Exchanges:
//   - clipline.jobs      — события jobs
//   - clipline.units     — события units
//   - clipline.dlq       — dead letter queue
//   - clipline.progress  — fanout progress-событий (по эксклюзивной очереди на процесс)
package mq
