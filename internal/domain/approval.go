package domain

import (
	"fmt"
	"time"
)

// Статусы State Machine заявки на подтверждение (HITL)
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// ApprovalKey — составной ключ эскалированного действия:
// (run id, decision id, action index).
type ApprovalKey struct {
	RunID       string `json:"run_id"`
	DecisionID  string `json:"decision_id"`
	ActionIndex int    `json:"action_index"`
}

// String — каноническая форма ключа для URL и мап.
func (k ApprovalKey) String() string {
	return fmt.Sprintf("%s:%d", k.DecisionID, k.ActionIndex)
}

// ApprovalRequest — эскалированное действие, зависшее в очереди до
// внешнего (человеческого) решения.
type ApprovalRequest struct {
	Key       ApprovalKey    `json:"key"`
	AgentRole string         `json:"agent_role"`
	Action    ProposedAction `json:"action"`
	Reason    string         `json:"reason"` // почему политика эскалировала
	Tick      int            `json:"tick"`   // тик, на котором эскалировали
	Status    ApprovalStatus `json:"status"`

	ReviewerID *string `json:"reviewer_id,omitempty"`
	Comment    *string `json:"comment,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanTransitionTo проверяет правила конечного автомата:
// решение принимается ровно один раз (защита от Double Decision).
func (a *ApprovalRequest) CanTransitionTo(next ApprovalStatus) error {
	if a.Status != ApprovalPending {
		return ErrAlreadyProcessed
	}
	if next == ApprovalPending {
		return ErrInvalidTransition
	}
	return nil
}
