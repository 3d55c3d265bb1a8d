package store

import "errors"

// Общие ошибки State Store.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrStaleVersion — compare-and-swap не прошёл: запись была
	// конкурентно перезаписана. Вызывающий обязан перечитать job
	// и повторить мутацию, но никогда не писать по устаревшим данным.
	ErrStaleVersion = errors.New("stale job version")

	// ErrUnknownSchema — версия схемы записи не поддерживается
	// этим процессом.
	ErrUnknownSchema = errors.New("unknown record schema version")
)
