package provider

import (
	"context"
	"testing"
)

func TestStubPlanComposer_Deterministic(t *testing.T) {
	composer := StubPlanComposer{}
	req := PlanRequest{Prompt: "a cat in space", NumScenes: 3}

	first, err := composer.ComposePlan(context.Background(), req)
	if err != nil {
		t.Fatalf("ComposePlan: %v", err)
	}
	second, err := composer.ComposePlan(context.Background(), req)
	if err != nil {
		t.Fatalf("ComposePlan: %v", err)
	}

	if first.Artifacts["scenario"] != second.Artifacts["scenario"] {
		t.Error("same prompt produced different scenario refs")
	}
	if first.Artifacts["scenario"] == "" || first.Artifacts["storyboard"] == "" {
		t.Errorf("missing artifacts: %v", first.Artifacts)
	}
}

func TestStubPlanComposer_EmptyPrompt(t *testing.T) {
	if _, err := (StubPlanComposer{}).ComposePlan(context.Background(), PlanRequest{}); err == nil {
		t.Error("expected error for empty prompt")
	}
}

func TestStubImageSynthesizer_ScenePerScene(t *testing.T) {
	req := AssetRequest{
		NumScenes: 3,
		Artifacts: map[string]string{"scenario": "local://plans/abc.json"},
	}
	result, err := (StubImageSynthesizer{}).SynthesizeImages(context.Background(), req)
	if err != nil {
		t.Fatalf("SynthesizeImages: %v", err)
	}
	if len(result.Artifacts) != 3 {
		t.Errorf("artifacts = %d, want 3", len(result.Artifacts))
	}
}

func TestStubImageSynthesizer_RequiresScenario(t *testing.T) {
	if _, err := (StubImageSynthesizer{}).SynthesizeImages(context.Background(), AssetRequest{}); err == nil {
		t.Error("expected error when scenario artifact missing")
	}
}

func TestStubReviewer(t *testing.T) {
	reviewer := StubReviewer{}

	verdict, err := reviewer.Review(context.Background(), ReviewRequest{
		Artifacts: map[string]string{"video": "local://videos/x.mp4"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !verdict.Passed {
		t.Error("expected pass with video artifact")
	}

	verdict, err = reviewer.Review(context.Background(), ReviewRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if verdict.Passed {
		t.Error("expected rejection without video artifact")
	}
	if verdict.Reason == "" {
		t.Error("rejection must carry a reason")
	}
}
