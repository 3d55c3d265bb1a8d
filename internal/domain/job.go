package domain

import (
	"time"

	"github.com/google/uuid"
)

// maxLogLines — максимальная длина журнала job.
// При превышении старые записи отбрасываются.
const maxLogLines = 200

// JobSpec — параметры генерации, переданные пользователем.
type JobSpec struct {
	// Prompt — текстовый запрос, из которого генерируется ролик.
	Prompt string `json:"prompt"`

	// Mode — режим генерации: "general", "story", "ad".
	Mode string `json:"mode,omitempty"`

	// NumScenes — количество сцен в ролике.
	NumScenes int `json:"num_scenes,omitempty"`

	// ArtStyle — художественный стиль изображений.
	ArtStyle string `json:"art_style,omitempty"`

	// MusicGenre — жанр фоновой музыки.
	MusicGenre string `json:"music_genre,omitempty"`
}

// Job — один запрос на генерацию ролика, отслеживаемый end-to-end.
//
// Job создаётся API при запросе пользователя и мутируется исключительно
// Coordinator'ом через переходы FSM. После достижения терминального
// состояния запись становится неизменяемой и удаляется sweeper'ом
// по истечении retention-окна.
type Job struct {
	// ID — уникальный идентификатор job, неизменяемый.
	ID uuid.UUID `json:"id"`

	// Spec — параметры генерации.
	Spec JobSpec `json:"spec"`

	// State — текущее состояние FSM.
	State JobState `json:"state"`

	// Progress — прогресс в [0.0, 1.0]. Монотонно неубывающий внутри
	// одного прохода pipeline; retry сбрасывает его назад.
	Progress float64 `json:"progress"`

	// RetryCount — сколько раз сработал переход QA → PLAN.
	RetryCount int `json:"retry_count"`

	// Logs — append-only журнал (старые записи обрезаются).
	Logs []string `json:"logs,omitempty"`

	// Artifacts — логическое имя → ссылка (URI/путь).
	// Заполняется по мере прохождения стадий, внутри прохода не удаляется.
	Artifacts map[string]string `json:"artifacts,omitempty"`

	// History — последовательность посещённых состояний (append-only).
	History []JobState `json:"history"`

	// Error — текст ошибки, если job завершился с FAILED.
	Error string `json:"error,omitempty"`

	// Version — счётчик версий записи для compare-and-swap в State Store.
	// Инкрементируется при каждой успешной записи.
	Version int64 `json:"version"`

	// CreatedAt — время создания job.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последней записи.
	UpdatedAt time.Time `json:"updated_at"`

	// ExpiresAt — когда запись может быть удалена sweeper'ом.
	// Устанавливается при достижении терминального состояния.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// NewJob создаёт job в начальном состоянии.
func NewJob(spec JobSpec) *Job {
	return &Job{
		ID:        uuid.New(),
		Spec:      spec,
		State:     StateInit,
		History:   []JobState{StateInit},
		Artifacts: make(map[string]string),
		CreatedAt: time.Now(),
	}
}

// IsFinished возвращает true, если job в терминальном состоянии.
func (j *Job) IsFinished() bool {
	return j.State.IsTerminal()
}

// AppendLog добавляет строку в журнал, обрезая старые записи.
func (j *Job) AppendLog(line string) {
	j.Logs = append(j.Logs, line)
	if len(j.Logs) > maxLogLines {
		j.Logs = j.Logs[len(j.Logs)-maxLogLines:]
	}
}

// SetArtifact записывает ссылку на артефакт под логическим именем.
func (j *Job) SetArtifact(name, ref string) {
	if j.Artifacts == nil {
		j.Artifacts = make(map[string]string)
	}
	j.Artifacts[name] = ref
}

// MergeArtifacts добавляет набор артефактов.
func (j *Job) MergeArtifacts(artifacts map[string]string) {
	for name, ref := range artifacts {
		j.SetArtifact(name, ref)
	}
}

// SetProgress обновляет прогресс, не позволяя ему уйти назад
// внутри текущего прохода.
func (j *Job) SetProgress(p float64) {
	if p > j.Progress {
		j.Progress = p
	}
}

// ResetProgress откатывает прогресс при retry нового прохода.
func (j *Job) ResetProgress(p float64) {
	j.Progress = p
}
