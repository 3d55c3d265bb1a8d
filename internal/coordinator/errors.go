package coordinator

import "errors"

// Ошибки координатора.
var (
	// ErrJobNotFound — job не найден в БД.
	ErrJobNotFound = errors.New("job not found")

	// ErrUnitNotFound — unit не найден в БД.
	ErrUnitNotFound = errors.New("unit not found")

	// ErrJobFinished — job уже в терминальном состоянии, событие игнорируется.
	ErrJobFinished = errors.New("job already finished")

	// ErrStalePass — событие относится к предыдущему проходу pipeline.
	ErrStalePass = errors.New("unit belongs to a previous pass")

	// ErrMutationConflict — CAS-запись не прошла после всех попыток.
	ErrMutationConflict = errors.New("job mutation conflict")
)
