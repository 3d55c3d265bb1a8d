package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
)

// ref строит детерминированную ссылку на артефакт: один и тот же
// вход всегда даёт одну и ту же ссылку.
func ref(category, seed, ext string) string {
	h := fnv.New64a()
	h.Write([]byte(seed))
	return fmt.Sprintf("local://%s/%016x.%s", category, h.Sum64(), ext)
}

// StubPlanComposer — заглушка планировщика.
type StubPlanComposer struct{}

func (StubPlanComposer) ComposePlan(_ context.Context, req PlanRequest) (*PlanResult, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("empty prompt")
	}
	return &PlanResult{
		Title: fmt.Sprintf("clip: %.40s", req.Prompt),
		Artifacts: map[string]string{
			"scenario":   ref("plans", req.Prompt, "json"),
			"storyboard": ref("storyboards", req.Prompt, "json"),
		},
	}, nil
}

// StubImageSynthesizer — заглушка генератора изображений.
type StubImageSynthesizer struct{}

func (StubImageSynthesizer) SynthesizeImages(_ context.Context, req AssetRequest) (*AssetResult, error) {
	scenario, ok := req.Artifacts["scenario"]
	if !ok {
		return nil, fmt.Errorf("scenario artifact missing")
	}

	artifacts := make(map[string]string)
	n := req.NumScenes
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("scene_%d", i)
		artifacts[key] = ref("images", scenario+key+req.ArtStyle, "png")
	}
	return &AssetResult{Artifacts: artifacts}, nil
}

// StubSpeechSynthesizer — заглушка синтеза озвучки.
type StubSpeechSynthesizer struct{}

func (StubSpeechSynthesizer) SynthesizeSpeech(_ context.Context, req AssetRequest) (*AssetResult, error) {
	scenario, ok := req.Artifacts["scenario"]
	if !ok {
		return nil, fmt.Errorf("scenario artifact missing")
	}
	return &AssetResult{
		Artifacts: map[string]string{
			"voice": ref("voice", scenario, "mp3"),
		},
	}, nil
}

// StubMusicComposer — заглушка генератора музыки.
type StubMusicComposer struct{}

func (StubMusicComposer) ComposeMusic(_ context.Context, req AssetRequest) (*AssetResult, error) {
	scenario, ok := req.Artifacts["scenario"]
	if !ok {
		return nil, fmt.Errorf("scenario artifact missing")
	}
	return &AssetResult{
		Artifacts: map[string]string{
			"music": ref("music", scenario+req.MusicGenre, "mp3"),
		},
	}, nil
}

// StubRenderer — заглушка рендера.
type StubRenderer struct{}

func (StubRenderer) Render(_ context.Context, req RenderRequest) (*RenderResult, error) {
	if len(req.Artifacts) == 0 {
		return nil, fmt.Errorf("no artifacts to render")
	}

	keys := make([]string, 0, len(req.Artifacts))
	for k := range req.Artifacts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var seed string
	for _, k := range keys {
		seed += k + req.Artifacts[k]
	}
	return &RenderResult{
		Artifacts: map[string]string{
			"video": ref("videos", seed, "mp4"),
		},
	}, nil
}

// StubReviewer — заглушка проверки: результат принимается, если
// рендер произвёл видео.
type StubReviewer struct{}

func (StubReviewer) Review(_ context.Context, req ReviewRequest) (*ReviewResult, error) {
	if _, ok := req.Artifacts["video"]; !ok {
		return &ReviewResult{Passed: false, Reason: "video artifact missing"}, nil
	}
	return &ReviewResult{Passed: true}, nil
}
