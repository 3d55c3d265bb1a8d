package domain

import (
	"fmt"
	"testing"
)

func TestNewJob(t *testing.T) {
	job := NewJob(JobSpec{Prompt: "a cat in space", NumScenes: 3})

	if job.State != StateInit {
		t.Errorf("expected INIT, got %s", job.State)
	}
	if len(job.History) != 1 || job.History[0] != StateInit {
		t.Errorf("history should start with INIT, got %v", job.History)
	}
	if job.Progress != 0 {
		t.Errorf("expected progress 0, got %f", job.Progress)
	}
	if job.Artifacts == nil {
		t.Error("artifacts map should be initialized")
	}
}

func TestJob_AppendLog_Trims(t *testing.T) {
	job := NewJob(JobSpec{Prompt: "p"})

	for i := 0; i < maxLogLines+50; i++ {
		job.AppendLog(fmt.Sprintf("line %d", i))
	}

	if len(job.Logs) != maxLogLines {
		t.Fatalf("expected %d log lines, got %d", maxLogLines, len(job.Logs))
	}
	// Oldest entries are dropped, the last one survives
	if job.Logs[len(job.Logs)-1] != fmt.Sprintf("line %d", maxLogLines+49) {
		t.Errorf("last line should be the newest, got %q", job.Logs[len(job.Logs)-1])
	}
	if job.Logs[0] != "line 50" {
		t.Errorf("expected oldest kept line to be %q, got %q", "line 50", job.Logs[0])
	}
}

func TestJob_SetProgress_Monotonic(t *testing.T) {
	job := NewJob(JobSpec{Prompt: "p"})

	job.SetProgress(0.25)
	job.SetProgress(0.1) // must not go backwards within a pass
	if job.Progress != 0.25 {
		t.Errorf("expected 0.25, got %f", job.Progress)
	}

	job.ResetProgress(0.1) // retry explicitly rewinds
	if job.Progress != 0.1 {
		t.Errorf("expected 0.1 after reset, got %f", job.Progress)
	}
}

func TestJob_MergeArtifacts(t *testing.T) {
	job := NewJob(JobSpec{Prompt: "p"})
	job.SetArtifact("script", "file://data/script.json")
	job.MergeArtifacts(map[string]string{
		"scene_image[0]": "file://data/img0.png",
		"voice_track":    "file://data/voice.mp3",
	})

	if len(job.Artifacts) != 3 {
		t.Fatalf("expected 3 artifacts, got %d", len(job.Artifacts))
	}
	if job.Artifacts["script"] != "file://data/script.json" {
		t.Error("existing artifact should survive merge")
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to JobState
		want     bool
	}{
		{StateInit, StatePlan, true},
		{StatePlan, StateAssets, true},
		{StateAssets, StateRender, true},
		{StateRender, StateQA, true},
		{StateQA, StateEnd, true},
		{StateQA, StatePlan, true},
		{StateInit, StateFailed, true},
		{StateQA, StateFailed, true},
		{StateInit, StateRender, false},
		{StatePlan, StateQA, false},
		{StateEnd, StatePlan, false},
		{StateEnd, StateFailed, false},
		{StateFailed, StatePlan, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestJobState_IsTerminal(t *testing.T) {
	for state, successors := range Transitions {
		if state.IsTerminal() && len(successors) != 0 {
			t.Errorf("terminal state %s must have no outgoing edges", state)
		}
		if !state.IsTerminal() {
			// Every non-terminal state can fail
			if !CanTransition(state, StateFailed) {
				t.Errorf("non-terminal state %s must allow transition to FAILED", state)
			}
		}
	}
}
