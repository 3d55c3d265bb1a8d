// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go     — Handler с DI (stores, publisher, hub, logger)
//   - routes.go      — регистрация маршрутов
//   - middleware.go  — middleware (logging, recovery)
//   - response.go    — унифицированные JSON-ответы и обработка ошибок
//   - dto.go         — Data Transfer Objects (request/response)
//   - job_handler.go — REST обработчики для /jobs
//   - ws_handler.go  — WebSocket подписка на progress-события job
//
// API предоставляет REST endpoints для управления jobs и realtime-канал
// наблюдения за ходом генерации.
package api
