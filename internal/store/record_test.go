package store

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shaiso/Clipline/internal/domain"
)

func TestRecordRoundTrip(t *testing.T) {
	job := domain.NewJob(domain.JobSpec{
		Prompt:    "a cat in space",
		Mode:      "short",
		NumScenes: 3,
	})
	job.AppendLog("planning started")
	job.SetArtifact("scenario", "s3://bucket/scenario.json")
	job.History = append(job.History, domain.StatePlan)

	data, err := encodeRecord(job)
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}

	var restored domain.Job
	if err := decodeRecord(data, &restored); err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}

	if restored.Spec.Prompt != job.Spec.Prompt {
		t.Errorf("Spec.Prompt = %q, want %q", restored.Spec.Prompt, job.Spec.Prompt)
	}
	if len(restored.Logs) != 1 || restored.Logs[0] != "planning started" {
		t.Errorf("Logs = %v, want one entry", restored.Logs)
	}
	if restored.Artifacts["scenario"] != "s3://bucket/scenario.json" {
		t.Errorf("Artifacts = %v", restored.Artifacts)
	}
	if len(restored.History) != 2 {
		t.Errorf("History = %v, want [INIT PLAN]", restored.History)
	}
}

func TestDecodeRecord_UnknownSchemaVersion(t *testing.T) {
	data, err := json.Marshal(map[string]any{
		"schema_version": 99,
		"spec":           map[string]any{},
		"history":        []string{"INIT"},
	})
	if err != nil {
		t.Fatal(err)
	}

	var job domain.Job
	err = decodeRecord(data, &job)
	if !errors.Is(err, ErrUnknownSchema) {
		t.Errorf("decodeRecord error = %v, want ErrUnknownSchema", err)
	}
}

func TestDecodeRecord_NilArtifactsBecomesEmptyMap(t *testing.T) {
	// A record written without artifacts must decode into a usable map,
	// so callers can SetArtifact without nil checks.
	job := domain.NewJob(domain.JobSpec{Prompt: "test"})
	job.Artifacts = nil

	data, err := encodeRecord(job)
	if err != nil {
		t.Fatal(err)
	}

	var restored domain.Job
	if err := decodeRecord(data, &restored); err != nil {
		t.Fatal(err)
	}
	if restored.Artifacts == nil {
		t.Error("Artifacts is nil after decode, want empty map")
	}
}
