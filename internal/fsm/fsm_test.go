package fsm

import (
	"errors"
	"testing"

	"github.com/shaiso/Clipline/internal/domain"
)

func TestMachine_Transition_HappyPath(t *testing.T) {
	m := New(3)
	job := domain.NewJob(domain.JobSpec{Prompt: "p"})

	path := []domain.JobState{
		domain.StatePlan,
		domain.StateAssets,
		domain.StateRender,
		domain.StateQA,
		domain.StateEnd,
	}

	for _, target := range path {
		if err := m.Transition(job, target); err != nil {
			t.Fatalf("transition to %s failed: %v", target, err)
		}
	}

	if job.State != domain.StateEnd {
		t.Errorf("expected END, got %s", job.State)
	}

	wantHistory := append([]domain.JobState{domain.StateInit}, path...)
	if len(job.History) != len(wantHistory) {
		t.Fatalf("expected history of %d states, got %d", len(wantHistory), len(job.History))
	}
	for i, s := range wantHistory {
		if job.History[i] != s {
			t.Errorf("history[%d] = %s, want %s", i, job.History[i], s)
		}
	}
}

func TestMachine_Transition_Illegal(t *testing.T) {
	m := New(3)
	job := domain.NewJob(domain.JobSpec{Prompt: "p"})

	err := m.Transition(job, domain.StateRender)
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}

	// Job must be left untouched
	if job.State != domain.StateInit {
		t.Errorf("state should remain INIT, got %s", job.State)
	}
	if len(job.History) != 1 {
		t.Errorf("history should not grow on failed transition, got %v", job.History)
	}
}

func TestMachine_TerminalStatesAbsorbing(t *testing.T) {
	m := New(3)

	for _, terminal := range []domain.JobState{domain.StateEnd, domain.StateFailed} {
		job := domain.NewJob(domain.JobSpec{Prompt: "p"})
		job.State = terminal

		for target := range domain.Transitions {
			if err := m.Transition(job, target); !errors.Is(err, ErrIllegalTransition) {
				t.Errorf("%s → %s should be illegal, got %v", terminal, target, err)
			}
		}
		if err := m.Fail(job, "late failure"); !errors.Is(err, ErrIllegalTransition) {
			t.Errorf("Fail from %s should be illegal, got %v", terminal, err)
		}
	}
}

func TestMachine_Retry_BumpsCounter(t *testing.T) {
	m := New(2)
	job := domain.NewJob(domain.JobSpec{Prompt: "p"})
	job.State = domain.StateQA

	if err := m.Retry(job); err != nil {
		t.Fatalf("first retry failed: %v", err)
	}
	if job.RetryCount != 1 {
		t.Errorf("expected retry_count 1, got %d", job.RetryCount)
	}
	if job.State != domain.StatePlan {
		t.Errorf("expected PLAN after retry, got %s", job.State)
	}
}

func TestMachine_Retry_BudgetExceeded(t *testing.T) {
	m := New(2)
	job := domain.NewJob(domain.JobSpec{Prompt: "p"})
	job.State = domain.StateQA
	job.RetryCount = 2

	err := m.Retry(job)
	if !errors.Is(err, ErrRetryBudgetExceeded) {
		t.Fatalf("expected ErrRetryBudgetExceeded, got %v", err)
	}

	// Budget check fires exactly at N == MaxRetries; job untouched
	if job.RetryCount != 2 {
		t.Errorf("retry_count should stay 2, got %d", job.RetryCount)
	}
	if job.State != domain.StateQA {
		t.Errorf("state should remain QA, got %s", job.State)
	}
}

func TestMachine_Transition_QAToPlanRoutesThroughRetry(t *testing.T) {
	m := New(1)
	job := domain.NewJob(domain.JobSpec{Prompt: "p"})
	job.State = domain.StateQA

	if err := m.Transition(job, domain.StatePlan); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.RetryCount != 1 {
		t.Errorf("Transition(QA, PLAN) must bump retry_count, got %d", job.RetryCount)
	}

	job.State = domain.StateQA
	if err := m.Transition(job, domain.StatePlan); !errors.Is(err, ErrRetryBudgetExceeded) {
		t.Fatalf("expected budget error on second retry, got %v", err)
	}
}

func TestMachine_Fail(t *testing.T) {
	m := New(3)
	job := domain.NewJob(domain.JobSpec{Prompt: "p"})
	job.State = domain.StateRender

	if err := m.Fail(job, "renderer crashed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.State != domain.StateFailed {
		t.Errorf("expected FAILED, got %s", job.State)
	}
	if job.Error != "renderer crashed" {
		t.Errorf("expected error reason recorded, got %q", job.Error)
	}
	if len(job.Logs) == 0 || job.Logs[len(job.Logs)-1] != "renderer crashed" {
		t.Error("failure reason should be appended to logs")
	}
}

func TestMachine_RetryCountNonDecreasing(t *testing.T) {
	m := New(3)
	job := domain.NewJob(domain.JobSpec{Prompt: "p"})

	prev := 0
	for i := 0; i < 3; i++ {
		// Drive one full pass to QA
		for _, target := range []domain.JobState{domain.StatePlan, domain.StateAssets, domain.StateRender, domain.StateQA} {
			if i > 0 && target == domain.StatePlan {
				continue // retry already put the job in PLAN
			}
			if err := m.Transition(job, target); err != nil {
				t.Fatalf("pass %d: transition to %s failed: %v", i, target, err)
			}
		}
		if job.RetryCount < prev {
			t.Fatalf("retry_count decreased: %d → %d", prev, job.RetryCount)
		}
		prev = job.RetryCount

		if i < 2 {
			if err := m.Retry(job); err != nil {
				t.Fatalf("pass %d: retry failed: %v", i, err)
			}
		}
	}

	if job.RetryCount > m.MaxRetries() {
		t.Errorf("retry_count %d exceeds budget %d", job.RetryCount, m.MaxRetries())
	}
}
