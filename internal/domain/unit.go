package domain

import (
	"time"

	"github.com/google/uuid"
)

// UnitKind — тип единицы работы pipeline.
type UnitKind string

const (
	// UnitKindPlan — генерация сценария и раскадровки.
	UnitKindPlan UnitKind = "plan"

	// UnitKindImage — генерация изображений сцен.
	UnitKindImage UnitKind = "image"

	// UnitKindVoice — синтез озвучки.
	UnitKindVoice UnitKind = "voice"

	// UnitKindMusic — генерация фоновой музыки.
	UnitKindMusic UnitKind = "music"

	// UnitKindRender — сборка финального видео.
	UnitKindRender UnitKind = "render"

	// UnitKindQA — проверка готового результата.
	UnitKindQA UnitKind = "qa"
)

// AssetKinds — фиксированный набор параллельных units стадии ASSET_GENERATION.
// Порядок не имеет значения: fan-in барьер ждёт завершения всех.
var AssetKinds = []UnitKind{UnitKindImage, UnitKindVoice, UnitKindMusic}

// Unit — отдельная единица работы внутри job.
//
// Unit создаётся Coordinator'ом: по одному для линейных стадий
// (PLAN, RENDER, QA) и по одному на каждый элемент AssetKinds при fan-out.
// Unit выполняется Worker'ом; результат возвращается через очередь
// units.completed, job-запись worker не трогает.
type Unit struct {
	// ID — уникальный идентификатор unit.
	ID uuid.UUID `json:"id"`

	// JobID — ссылка на родительский job.
	JobID uuid.UUID `json:"job_id"`

	// Kind — тип работы (определяет executor на стороне worker).
	Kind UnitKind `json:"kind"`

	// Stage — состояние FSM, в рамках которого unit был создан.
	Stage JobState `json:"stage"`

	// Pass — номер прохода pipeline (равен RetryCount job на момент
	// создания). Барьер считает завершения только внутри своего прохода.
	Pass int `json:"pass"`

	// Attempt — номер попытки (начиная с 1), растёт при retry worker'а.
	Attempt int `json:"attempt"`

	// Status — текущий статус unit.
	Status UnitStatus `json:"status"`

	// Payload — job-scoped вход для executor'а (спека, ссылки на артефакты).
	Payload map[string]any `json:"payload,omitempty"`

	// Outputs — результат выполнения; ссылки на артефакты лежат
	// под ключом "artifacts".
	Outputs map[string]any `json:"outputs,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки при неудаче.
	Error string `json:"error,omitempty"`

	// CreatedAt — время создания unit.
	CreatedAt time.Time `json:"created_at"`
}

// NewUnit создаёт unit в статусе QUEUED.
func NewUnit(jobID uuid.UUID, kind UnitKind, stage JobState, pass int, payload map[string]any) *Unit {
	return &Unit{
		ID:        uuid.New(),
		JobID:     jobID,
		Kind:      kind,
		Stage:     stage,
		Pass:      pass,
		Status:    UnitStatusQueued,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
func (u *Unit) Duration() time.Duration {
	if u.StartedAt == nil || u.FinishedAt == nil {
		return 0
	}
	return u.FinishedAt.Sub(*u.StartedAt)
}

// IsFinished возвращает true, если unit завершён.
func (u *Unit) IsFinished() bool {
	return u.Status.IsTerminal()
}

// MarkRunning переводит unit в статус RUNNING.
func (u *Unit) MarkRunning() {
	now := time.Now()
	u.Status = UnitStatusRunning
	u.StartedAt = &now
	u.Attempt++
}

// MarkSucceeded переводит unit в статус SUCCEEDED с результатами.
func (u *Unit) MarkSucceeded(outputs map[string]any) {
	now := time.Now()
	u.Status = UnitStatusSucceeded
	u.FinishedAt = &now
	u.Outputs = outputs
}

// MarkFailed переводит unit в статус FAILED с ошибкой.
func (u *Unit) MarkFailed(err string) {
	now := time.Now()
	u.Status = UnitStatusFailed
	u.FinishedAt = &now
	u.Error = err
}

// ResetForRetry подготавливает unit для повторной попытки worker'а.
func (u *Unit) ResetForRetry() {
	u.Status = UnitStatusQueued
	u.StartedAt = nil
	u.FinishedAt = nil
	u.Error = ""
}

// CanRetry проверяет, можно ли сделать ещё одну попытку.
func (u *Unit) CanRetry(maxAttempts int) bool {
	return u.Attempt < maxAttempts
}

// ArtifactRefs извлекает ссылки на артефакты из Outputs.
func (u *Unit) ArtifactRefs() map[string]string {
	raw, ok := u.Outputs["artifacts"]
	if !ok {
		return nil
	}

	refs := make(map[string]string)
	switch m := raw.(type) {
	case map[string]string:
		for k, v := range m {
			refs[k] = v
		}
	case map[string]any:
		// После round-trip через JSON значения приходят как any
		for k, v := range m {
			if s, ok := v.(string); ok {
				refs[k] = s
			}
		}
	}
	return refs
}
