package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState — операция не легальна в текущем статусе прогона
	ErrInvalidState = errors.New("operation not allowed in current run status")
	// ErrRunNotFound — прогон не зарегистрирован в менеджере
	ErrRunNotFound = errors.New("run not found")
	// ErrValidation — битый вход (blueprint/timeline/action)
	ErrValidation = errors.New("validation failed")
	// ErrDecisionTimeout — агент не уложился в дедлайн. НЕ фатально для тика:
	// фиксируем в аудите и идем дальше без его действий.
	ErrDecisionTimeout = errors.New("agent decision timed out")

	// Ошибки конечного автомата approvals
	ErrInvalidTransition = errors.New("invalid approval status transition")
	ErrAlreadyProcessed  = errors.New("approval request already processed")
	ErrApprovalNotFound  = errors.New("approval request not found")
)

// IntegrityError — расхождение hash-цепочки аудита. Фатально для доверия
// к истории прогона, но движок не роняет: отдаем наверх с номером
// первой битой записи.
type IntegrityError struct {
	Sequence int64
	Reason   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("audit chain integrity violation at sequence %d: %s", e.Sequence, e.Reason)
}

// PersistenceError — сторедж не смог надежно записать. Тик не может
// примениться частично, поэтому прогон уходит в failed.
type PersistenceError struct {
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }
