package domain

import "github.com/google/uuid"

// ProgressEvent — неизменяемое сообщение о дельте состояния job.
//
// Каждое поле кроме JobID опционально: отсутствие означает "без изменений".
// События публикуются в Progress Bus и доставляются подписчикам
// в порядке публикации (FIFO в рамках одного job id).
type ProgressEvent struct {
	// JobID — job, к которому относится событие.
	JobID uuid.UUID `json:"job_id"`

	// State — новое состояние FSM, если оно изменилось.
	State *JobState `json:"state,omitempty"`

	// Progress — новое значение прогресса [0.0, 1.0], если изменилось.
	Progress *float64 `json:"progress,omitempty"`

	// Log — строка журнала, если добавлена.
	Log string `json:"log,omitempty"`

	// Artifacts — дельта артефактов (имя → ссылка), если добавлены.
	Artifacts map[string]string `json:"artifacts,omitempty"`
}

// NewProgressEvent создаёт событие только с job id; поля-дельты
// добавляются билдер-методами.
func NewProgressEvent(jobID uuid.UUID) *ProgressEvent {
	return &ProgressEvent{JobID: jobID}
}

// WithState добавляет изменение состояния.
func (e *ProgressEvent) WithState(s JobState) *ProgressEvent {
	e.State = &s
	return e
}

// WithProgress добавляет изменение прогресса.
func (e *ProgressEvent) WithProgress(p float64) *ProgressEvent {
	e.Progress = &p
	return e
}

// WithLog добавляет строку журнала.
func (e *ProgressEvent) WithLog(line string) *ProgressEvent {
	e.Log = line
	return e
}

// WithArtifacts добавляет дельту артефактов.
func (e *ProgressEvent) WithArtifacts(artifacts map[string]string) *ProgressEvent {
	e.Artifacts = artifacts
	return e
}
