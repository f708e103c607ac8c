package agents

import (
	"context"

	"github.com/xela07ax/corpsim-engine/internal/domain"
)

// DecisionRequest — вход decision capability: спека агента и его
// time-locked наблюдение. Больше агент не знает ничего.
type DecisionRequest struct {
	Spec        domain.AgentSpec   `json:"spec"`
	Observation domain.Observation `json:"observation"`
}

// DecisionResult — ответ агента: трейс рассуждения и ноль или больше
// предложенных действий из фиксированного словаря.
type DecisionResult struct {
	Reasoning string                  `json:"reasoning"`
	Actions   []domain.ProposedAction `json:"actions"`
}

// Provider — pluggable decision capability. Ядро движка тестируется с
// детерминированной реализацией; LLM-бэкенд подключается снаружи той же
// границей, не протекая в корректность движка.
type Provider interface {
	Decide(ctx context.Context, req DecisionRequest) (*DecisionResult, error)
}
