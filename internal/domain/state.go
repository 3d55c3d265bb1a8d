package domain

// JobState — состояние job в конечном автомате генерации.
//
// Жизненный цикл:
//
//	INIT → PLAN → ASSET_GENERATION → RENDER → QA → END
//	                                           ↓
//	                                         PLAN (retry, ограничен бюджетом)
//
// Из любого нетерминального состояния возможен переход в FAILED.
type JobState string

const (
	// StateInit — job создан, pipeline ещё не стартовал.
	StateInit JobState = "INIT"

	// StatePlan — генерация сценария и раскадровки.
	StatePlan JobState = "PLAN"

	// StateAssets — параллельная генерация ассетов (image, voice, music).
	StateAssets JobState = "ASSET_GENERATION"

	// StateRender — сборка финального видео из ассетов.
	StateRender JobState = "RENDER"

	// StateQA — проверка результата; провал возвращает в PLAN.
	StateQA JobState = "QA"

	// StateEnd — job успешно завершён (терминальное).
	StateEnd JobState = "END"

	// StateFailed — job завершился с ошибкой (терминальное).
	StateFailed JobState = "FAILED"
)

// Transitions — граф допустимых переходов.
// Терминальные состояния не имеют исходящих рёбер.
var Transitions = map[JobState][]JobState{
	StateInit:   {StatePlan, StateFailed},
	StatePlan:   {StateAssets, StateFailed},
	StateAssets: {StateRender, StateFailed},
	StateRender: {StateQA, StateFailed},
	StateQA:     {StateEnd, StatePlan, StateFailed},
	StateEnd:    {},
	StateFailed: {},
}

// CanTransition проверяет, есть ли ребро from → to в графе переходов.
func CanTransition(from, to JobState) bool {
	for _, s := range Transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal возвращает true для END и FAILED.
func (s JobState) IsTerminal() bool {
	return s == StateEnd || s == StateFailed
}

// Valid проверяет, что состояние известно автомату.
func (s JobState) Valid() bool {
	_, ok := Transitions[s]
	return ok
}

// UnitStatus — статус выполнения unit.
//
// Жизненный цикл:
//
//	QUEUED → RUNNING → SUCCEEDED
//	                 ↘ FAILED
type UnitStatus string

const (
	// UnitStatusQueued — unit в очереди, ожидает выполнения.
	UnitStatusQueued UnitStatus = "QUEUED"

	// UnitStatusRunning — unit выполняется воркером.
	UnitStatusRunning UnitStatus = "RUNNING"

	// UnitStatusSucceeded — unit успешно завершён.
	UnitStatusSucceeded UnitStatus = "SUCCEEDED"

	// UnitStatusFailed — unit завершился с ошибкой (после всех retry).
	UnitStatusFailed UnitStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s UnitStatus) IsTerminal() bool {
	return s == UnitStatusSucceeded || s == UnitStatusFailed
}
