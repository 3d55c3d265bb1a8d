package worker

import "errors"

// Ошибки worker'а.
var (
	// ErrUnitNotFound — unit не найден в БД.
	ErrUnitNotFound = errors.New("unit not found")

	// ErrUnitNotQueued — unit не в статусе QUEUED (уже взят другим worker'ом).
	ErrUnitNotQueued = errors.New("unit is not in QUEUED status")

	// ErrUnknownUnitKind — для типа unit не зарегистрирован executor.
	ErrUnknownUnitKind = errors.New("unknown unit kind")
)
