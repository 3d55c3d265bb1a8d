package worker

import (
	"context"
	"fmt"

	"github.com/shaiso/Clipline/internal/domain"
	"github.com/shaiso/Clipline/internal/provider"
)

// PlanExecutor выполняет plan-units: генерация сценария и раскадровки.
type PlanExecutor struct {
	Composer provider.PlanComposer
}

func (e *PlanExecutor) Execute(ctx context.Context, unit *domain.Unit) (*ExecutionResult, error) {
	req := provider.PlanRequest{
		Prompt:     payloadString(unit, "prompt"),
		Mode:       payloadString(unit, "mode"),
		NumScenes:  payloadInt(unit, "num_scenes"),
		ArtStyle:   payloadString(unit, "art_style"),
		MusicGenre: payloadString(unit, "music_genre"),
	}

	result, err := e.Composer.ComposePlan(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("compose plan: %w", err)
	}

	return &ExecutionResult{
		Outputs: map[string]any{
			"title":     result.Title,
			"artifacts": result.Artifacts,
		},
	}, nil
}

// ImageExecutor выполняет image-units: изображения сцен по раскадровке.
type ImageExecutor struct {
	Synthesizer provider.ImageSynthesizer
}

func (e *ImageExecutor) Execute(ctx context.Context, unit *domain.Unit) (*ExecutionResult, error) {
	result, err := e.Synthesizer.SynthesizeImages(ctx, assetRequest(unit))
	if err != nil {
		return nil, fmt.Errorf("synthesize images: %w", err)
	}
	return &ExecutionResult{Outputs: map[string]any{"artifacts": result.Artifacts}}, nil
}

// VoiceExecutor выполняет voice-units: синтез озвучки по сценарию.
type VoiceExecutor struct {
	Synthesizer provider.SpeechSynthesizer
}

func (e *VoiceExecutor) Execute(ctx context.Context, unit *domain.Unit) (*ExecutionResult, error) {
	result, err := e.Synthesizer.SynthesizeSpeech(ctx, assetRequest(unit))
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	return &ExecutionResult{Outputs: map[string]any{"artifacts": result.Artifacts}}, nil
}

// MusicExecutor выполняет music-units: фоновая музыка.
type MusicExecutor struct {
	Composer provider.MusicComposer
}

func (e *MusicExecutor) Execute(ctx context.Context, unit *domain.Unit) (*ExecutionResult, error) {
	result, err := e.Composer.ComposeMusic(ctx, assetRequest(unit))
	if err != nil {
		return nil, fmt.Errorf("compose music: %w", err)
	}
	return &ExecutionResult{Outputs: map[string]any{"artifacts": result.Artifacts}}, nil
}

// RenderExecutor выполняет render-units: сборка финального видео.
type RenderExecutor struct {
	Renderer provider.Renderer
}

func (e *RenderExecutor) Execute(ctx context.Context, unit *domain.Unit) (*ExecutionResult, error) {
	req := provider.RenderRequest{
		Mode:      payloadString(unit, "mode"),
		Artifacts: payloadArtifacts(unit),
	}

	result, err := e.Renderer.Render(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return &ExecutionResult{Outputs: map[string]any{"artifacts": result.Artifacts}}, nil
}

// QAExecutor выполняет qa-units: проверка готового результата.
// Вердикт — логический результат, а не ошибка выполнения: отклонённый
// результат возвращается как passed=false с указанием причины.
type QAExecutor struct {
	Reviewer provider.Reviewer
}

func (e *QAExecutor) Execute(ctx context.Context, unit *domain.Unit) (*ExecutionResult, error) {
	req := provider.ReviewRequest{
		Prompt:    payloadString(unit, "prompt"),
		Artifacts: payloadArtifacts(unit),
	}

	verdict, err := e.Reviewer.Review(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("review: %w", err)
	}

	return &ExecutionResult{
		Outputs: map[string]any{
			"passed": verdict.Passed,
			"reason": verdict.Reason,
		},
	}, nil
}

// --- Payload helpers ---

func assetRequest(unit *domain.Unit) provider.AssetRequest {
	return provider.AssetRequest{
		NumScenes:  payloadInt(unit, "num_scenes"),
		ArtStyle:   payloadString(unit, "art_style"),
		MusicGenre: payloadString(unit, "music_genre"),
		Artifacts:  payloadArtifacts(unit),
	}
}

func payloadString(unit *domain.Unit, key string) string {
	s, _ := unit.Payload[key].(string)
	return s
}

// payloadInt достаёт число из payload.
// После round-trip через JSON числа приходят как float64.
func payloadInt(unit *domain.Unit, key string) int {
	switch v := unit.Payload[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func payloadArtifacts(unit *domain.Unit) map[string]string {
	raw, ok := unit.Payload["artifacts"]
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
		for k, v := range m {
			if s, ok := v.(string); ok {
				refs[k] = s
			}
		}
	}
	return refs
}
