package fsm

import "errors"

// Ошибки конечного автомата.
var (
	// ErrIllegalTransition — попытка перехода по отсутствующему ребру.
	// Ошибка программирования, никогда не игнорируется молча.
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrRetryBudgetExceeded — цикл QA → PLAN исчерпал бюджет retry.
	ErrRetryBudgetExceeded = errors.New("retry budget exceeded")
)
