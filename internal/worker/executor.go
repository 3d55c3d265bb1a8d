package worker

import (
	"context"
	"fmt"

	"github.com/shaiso/Clipline/internal/domain"
	"github.com/shaiso/Clipline/internal/provider"
)

// Executor — интерфейс для выполнения конкретного типа unit.
//
// unit.Payload содержит вход, собранный координатором. Весь контракт
// между worker и координатором — payload и outputs: job-запись
// executor не читает и не пишет.
type Executor interface {
	Execute(ctx context.Context, unit *domain.Unit) (*ExecutionResult, error)
}

// ExecutionResult — результат выполнения unit.
type ExecutionResult struct {
	// Outputs — выходные данные выполнения. Ссылки на артефакты
	// лежат под ключом "artifacts".
	Outputs map[string]any

	// Error — сообщение о логической ошибке выполнения.
	// Инфраструктурные ошибки возвращаются через error в Execute().
	Error string
}

// Providers — набор генеративных сервисов для executors.
type Providers struct {
	Plan     provider.PlanComposer
	Images   provider.ImageSynthesizer
	Speech   provider.SpeechSynthesizer
	Music    provider.MusicComposer
	Renderer provider.Renderer
	Reviewer provider.Reviewer
}

// DefaultProviders возвращает детерминированные заглушки.
func DefaultProviders() Providers {
	return Providers{
		Plan:     provider.StubPlanComposer{},
		Images:   provider.StubImageSynthesizer{},
		Speech:   provider.StubSpeechSynthesizer{},
		Music:    provider.StubMusicComposer{},
		Renderer: provider.StubRenderer{},
		Reviewer: provider.StubReviewer{},
	}
}

// Registry — реестр executor'ов по типу unit.
type Registry struct {
	executors map[domain.UnitKind]Executor
}

// NewRegistry создаёт реестр с executor'ами для всех типов units
// pipeline: plan, image, voice, music, render, qa.
func NewRegistry(p Providers) *Registry {
	r := &Registry{executors: make(map[domain.UnitKind]Executor)}
	r.Register(domain.UnitKindPlan, &PlanExecutor{Composer: p.Plan})
	r.Register(domain.UnitKindImage, &ImageExecutor{Synthesizer: p.Images})
	r.Register(domain.UnitKindVoice, &VoiceExecutor{Synthesizer: p.Speech})
	r.Register(domain.UnitKindMusic, &MusicExecutor{Composer: p.Music})
	r.Register(domain.UnitKindRender, &RenderExecutor{Renderer: p.Renderer})
	r.Register(domain.UnitKindQA, &QAExecutor{Reviewer: p.Reviewer})
	return r
}

// Register добавляет executor для типа unit.
func (r *Registry) Register(kind domain.UnitKind, executor Executor) {
	r.executors[kind] = executor
}

// Get возвращает executor для типа unit.
func (r *Registry) Get(kind domain.UnitKind) (Executor, error) {
	executor, ok := r.executors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUnitKind, kind)
	}
	return executor, nil
}
