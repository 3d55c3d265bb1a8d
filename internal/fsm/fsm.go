// Package fsm реализует конечный автомат жизненного цикла job.
//
// Machine — чистая логика переходов без какого-либо хранения:
// проверяет допустимость ребра, обновляет состояние, историю
// и счётчик retry. Атомарность конкурентных переходов обеспечивается
// на уровне State Store (compare-and-swap по версии записи).
package fsm

import (
	"fmt"

	"github.com/shaiso/Clipline/internal/domain"
)

// DefaultMaxRetries — бюджет retry по умолчанию для цикла QA → PLAN.
const DefaultMaxRetries = 3

// Machine — конечный автомат с настраиваемым бюджетом retry.
//
// Создаётся в каждом процессе явно (никаких глобальных реестров)
// и инжектируется в Coordinator.
type Machine struct {
	maxRetries int
}

// New создаёт Machine с заданным бюджетом retry.
func New(maxRetries int) *Machine {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Machine{maxRetries: maxRetries}
}

// MaxRetries возвращает бюджет retry.
func (m *Machine) MaxRetries() int {
	return m.maxRetries
}

// Transition переводит job в состояние target.
//
// Возвращает ErrIllegalTransition, если ребро отсутствует в графе;
// job при этом не изменяется. Ребро QA → PLAN дополнительно ограничено
// бюджетом retry — для него используйте Retry.
func (m *Machine) Transition(job *domain.Job, target domain.JobState) error {
	if !domain.CanTransition(job.State, target) {
		return fmt.Errorf("%w: %s → %s", ErrIllegalTransition, job.State, target)
	}

	if job.State == domain.StateQA && target == domain.StatePlan {
		return m.Retry(job)
	}

	m.apply(job, target)
	return nil
}

// Retry выполняет переход QA → PLAN с учётом бюджета.
//
// Инкрементирует RetryCount; при исчерпании бюджета возвращает
// ErrRetryBudgetExceeded, не изменяя job — вызывающий обязан
// перевести job в FAILED с причиной в журнале.
func (m *Machine) Retry(job *domain.Job) error {
	if !domain.CanTransition(job.State, domain.StatePlan) {
		return fmt.Errorf("%w: %s → %s", ErrIllegalTransition, job.State, domain.StatePlan)
	}

	if job.RetryCount >= m.maxRetries {
		return fmt.Errorf("%w: %d of %d attempts used", ErrRetryBudgetExceeded, job.RetryCount, m.maxRetries)
	}

	job.RetryCount++
	m.apply(job, domain.StatePlan)
	return nil
}

// Fail переводит job в FAILED с причиной.
//
// Допустим из любого нетерминального состояния. Для уже терминального
// job возвращает ErrIllegalTransition.
func (m *Machine) Fail(job *domain.Job, reason string) error {
	if !domain.CanTransition(job.State, domain.StateFailed) {
		return fmt.Errorf("%w: %s → %s", ErrIllegalTransition, job.State, domain.StateFailed)
	}

	m.apply(job, domain.StateFailed)
	job.Error = reason
	job.AppendLog(reason)
	return nil
}

// CanRetry проверяет, остался ли бюджет для ещё одного прохода.
func (m *Machine) CanRetry(job *domain.Job) bool {
	return job.RetryCount < m.maxRetries
}

// apply выполняет сам переход: состояние + история.
func (m *Machine) apply(job *domain.Job, target domain.JobState) {
	job.State = target
	job.History = append(job.History, target)
}
