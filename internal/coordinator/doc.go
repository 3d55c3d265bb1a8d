// Package coordinator реализует управление прохождением jobs
// через pipeline генерации видео.
//
// Pipeline: PLAN → ASSET_GENERATION (fan-out: image, voice, music)
// → RENDER → QA. QA может вернуть job на новый проход (QA → PLAN)
// в пределах бюджета retry.
//
// Coordinator — единственный писатель состояния job. Workers
// возвращают результаты через очередь units.completed и job-запись
// не трогают. Все записи job защищены optimistic locking: решения
// (выпуск fan-in барьера, финализация) выполняются не более одного
// раза даже при дубликатах событий и нескольких координаторах.
package coordinator
