// Package provider определяет интерфейсы внешних генеративных
// сервисов, которыми пользуются executors worker'а: сценарий,
// изображения, озвучка, музыка, рендер и проверка результата.
//
// Продакшен-реализации ходят в API моделей; в комплекте поставляются
// детерминированные заглушки для локальной разработки и тестов.
package provider

import "context"

// PlanRequest — запрос на генерацию сценария и раскадровки.
type PlanRequest struct {
	Prompt     string
	Mode       string
	NumScenes  int
	ArtStyle   string
	MusicGenre string
}

// PlanResult — результат планирования.
// Artifacts — ссылки на сохранённые артефакты (сценарий, раскадровка).
type PlanResult struct {
	Title     string
	Artifacts map[string]string
}

// AssetRequest — запрос на генерацию asset'а по готовому плану.
type AssetRequest struct {
	NumScenes  int
	ArtStyle   string
	MusicGenre string

	// Artifacts — артефакты плана (сценарий, раскадровка).
	Artifacts map[string]string
}

// AssetResult — результат генерации asset'а.
type AssetResult struct {
	Artifacts map[string]string
}

// RenderRequest — запрос на сборку финального видео.
type RenderRequest struct {
	Mode      string
	Artifacts map[string]string
}

// RenderResult — результат рендера.
type RenderResult struct {
	Artifacts map[string]string
}

// ReviewRequest — запрос на проверку готового результата.
type ReviewRequest struct {
	Prompt    string
	Artifacts map[string]string
}

// ReviewResult — вердикт проверки.
type ReviewResult struct {
	Passed bool
	Reason string
}

// PlanComposer генерирует сценарий и раскадровку.
type PlanComposer interface {
	ComposePlan(ctx context.Context, req PlanRequest) (*PlanResult, error)
}

// ImageSynthesizer генерирует изображения сцен.
type ImageSynthesizer interface {
	SynthesizeImages(ctx context.Context, req AssetRequest) (*AssetResult, error)
}

// SpeechSynthesizer синтезирует озвучку.
type SpeechSynthesizer interface {
	SynthesizeSpeech(ctx context.Context, req AssetRequest) (*AssetResult, error)
}

// MusicComposer генерирует фоновую музыку.
type MusicComposer interface {
	ComposeMusic(ctx context.Context, req AssetRequest) (*AssetResult, error)
}

// Renderer собирает финальное видео из артефактов.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (*RenderResult, error)
}

// Reviewer проверяет готовый результат на соответствие запросу.
type Reviewer interface {
	Review(ctx context.Context, req ReviewRequest) (*ReviewResult, error)
}
