package store

import (
	"encoding/json"
	"fmt"

	"github.com/shaiso/Clipline/internal/domain"
)

// recordSchemaVersion — текущая версия схемы сериализованной записи job.
// Поднимается при несовместимых изменениях формата.
const recordSchemaVersion = 1

// jobRecord — явная версионированная схема той части Job, которая
// хранится единым JSON-документом. Формат языконезависимый: любой
// процесс может читать и писать запись, ориентируясь только на
// schema_version (никаких языкоспецифичных object graph).
//
// Индексируемые поля (state, progress, retry_count, error, version,
// временные метки) хранятся отдельными колонками таблицы jobs.
type jobRecord struct {
	SchemaVersion int               `json:"schema_version"`
	Spec          domain.JobSpec    `json:"spec"`
	Logs          []string          `json:"logs,omitempty"`
	Artifacts     map[string]string `json:"artifacts,omitempty"`
	History       []domain.JobState `json:"history"`
}

// encodeRecord сериализует документную часть job.
func encodeRecord(job *domain.Job) ([]byte, error) {
	rec := jobRecord{
		SchemaVersion: recordSchemaVersion,
		Spec:          job.Spec,
		Logs:          job.Logs,
		Artifacts:     job.Artifacts,
		History:       job.History,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal job record: %w", err)
	}
	return data, nil
}

// decodeRecord восстанавливает документную часть job из JSON.
func decodeRecord(data []byte, job *domain.Job) error {
	var rec jobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("unmarshal job record: %w", err)
	}

	if rec.SchemaVersion != recordSchemaVersion {
		return fmt.Errorf("%w: %d", ErrUnknownSchema, rec.SchemaVersion)
	}

	job.Spec = rec.Spec
	job.Logs = rec.Logs
	job.Artifacts = rec.Artifacts
	job.History = rec.History
	if job.Artifacts == nil {
		job.Artifacts = make(map[string]string)
	}
	return nil
}
