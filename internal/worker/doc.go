// Package worker реализует выполнение units pipeline.
//
// Worker потребляет units.ready, выполняет unit через executor
// соответствующего типа и публикует результат в units.completed.
// Состояние job worker не читает и не пишет: весь контракт с
// координатором — payload unit'а на входе и outputs на выходе.
//
// Типы units и их executors:
//   - plan   → PlanExecutor   (сценарий и раскадровка)
//   - image  → ImageExecutor  (изображения сцен)
//   - voice  → VoiceExecutor  (озвучка)
//   - music  → MusicExecutor  (фоновая музыка)
//   - render → RenderExecutor (сборка видео)
//   - qa     → QAExecutor     (проверка результата)
//
// Retry: инфраструктурные и логические ошибки выполнения повторяются
// с exponential backoff в пределах MaxAttempts. Отрицательный вердикт
// QA — не ошибка: он уходит координатору как passed=false.
//
// Использование:
//
//	wrk := worker.New(worker.Config{
//	    Units:     unitStore,
//	    Publisher: publisher,
//	    Conn:      conn, // nil — режим polling-only
//	})
//	wrk.Start(ctx)
//	defer wrk.Stop()
package worker
