// Package cli реализует инструмент командной строки Clipline.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Clipline API.
// Работает через HTTP и WebSocket, не импортирует внутренние пакеты
// системы. CLI используется для управления jobs и наблюдения за ходом
// генерации.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Clipline API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок. WatchJob дополнительно открывает WebSocket
// подписку на progress-события.
//
//	client := cli.NewClient("http://localhost:8080")
//	jobs, err := client.ListJobs(cli.ListJobsOpts{})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: clipline job list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы в группу job:
//   - job: list, create, show, units, cancel, fail, delete, watch
//
// Группа создаётся через фабричную функцию NewJobCmd, принимающую
// clientFn и outputFn — замыкания для ленивого создания Client
// и Output после парсинга PersistentFlags.
package cli
