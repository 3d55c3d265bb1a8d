package coordinator

import (
	"github.com/shaiso/Clipline/internal/domain"
)

// Контрольные точки прогресса pipeline.
//
// Прогресс монотонно растёт внутри одного прохода и сбрасывается
// при retry (QA → PLAN). Каждый завершённый asset-unit добавляет
// assetProgressStep, суммарно не выше progressAssetsCap.
const (
	progressPlanStart  = 0.10
	progressPlanDone   = 0.25
	assetProgressStep  = 0.15
	progressAssetsCap  = 0.70
	progressRenderDone = 0.80
	progressComplete   = 1.0
)

// AssetPolicy — политика обработки упавших asset-units на fan-in барьере.
type AssetPolicy string

const (
	// PolicyFailFast — любой упавший asset валит job целиком.
	PolicyFailFast AssetPolicy = "fail_fast"

	// PolicyPartial — job продолжает в RENDER, если успешен хотя бы
	// один asset. Ноль успешных валит job при любой политике.
	PolicyPartial AssetPolicy = "partial"
)

// Valid проверяет, что политика известна.
func (p AssetPolicy) Valid() bool {
	return p == PolicyFailFast || p == PolicyPartial
}

// planPayload строит вход для plan-unit.
func planPayload(job *domain.Job) map[string]any {
	return map[string]any{
		"prompt":      job.Spec.Prompt,
		"mode":        job.Spec.Mode,
		"num_scenes":  job.Spec.NumScenes,
		"art_style":   job.Spec.ArtStyle,
		"music_genre": job.Spec.MusicGenre,
	}
}

// assetPayload строит вход для asset-unit.
// Asset-units получают спеку и артефакты плана (сценарий, раскадровка).
func assetPayload(job *domain.Job, kind domain.UnitKind) map[string]any {
	return map[string]any{
		"kind":        string(kind),
		"num_scenes":  job.Spec.NumScenes,
		"art_style":   job.Spec.ArtStyle,
		"music_genre": job.Spec.MusicGenre,
		"artifacts":   copyArtifacts(job.Artifacts),
	}
}

// renderPayload строит вход для render-unit: все накопленные артефакты.
func renderPayload(job *domain.Job) map[string]any {
	return map[string]any{
		"mode":      job.Spec.Mode,
		"artifacts": copyArtifacts(job.Artifacts),
	}
}

// qaPayload строит вход для qa-unit.
// Проверяемый результат передаётся через payload: worker не читает
// job-запись, весь контракт — вход unit и его outputs.
func qaPayload(job *domain.Job) map[string]any {
	return map[string]any{
		"prompt":    job.Spec.Prompt,
		"artifacts": copyArtifacts(job.Artifacts),
	}
}

func copyArtifacts(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
