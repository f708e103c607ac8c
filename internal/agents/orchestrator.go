package agents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/corpsim-engine/internal/domain"
)

// RoleDecision — итог раунда для одной роли. Degraded означает, что
// провайдер не уложился в таймаут или упал: роль в этом тике молчит,
// но раунд продолжается.
type RoleDecision struct {
	Role      string
	Reasoning string
	Actions   []domain.ProposedAction
	Degraded  bool
	Err       error
}

// Orchestrator собирает решения со всех ролей. Вызовы идут параллельно,
// но результат всегда redуцируется в порядке ролей из конфигурации —
// порядок обхода map сюда не протекает.
type Orchestrator struct {
	provider Provider
	timeout  time.Duration
	logger   *zap.Logger
}

func NewOrchestrator(provider Provider, timeout time.Duration, logger *zap.Logger) *Orchestrator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Orchestrator{provider: provider, timeout: timeout, logger: logger}
}

// CollectDecisions опрашивает каждую роль с её собственным наблюдением.
// specs задает канонический порядок; observations ключуются ролью.
func (o *Orchestrator) CollectDecisions(ctx context.Context, specs []domain.AgentSpec, observations map[string]domain.Observation) []RoleDecision {
	results := make([]RoleDecision, len(specs))

	var wg sync.WaitGroup
	for i, spec := range specs {
		obs, ok := observations[spec.Role]
		if !ok {
			results[i] = RoleDecision{Role: spec.Role, Degraded: true}
			continue
		}

		wg.Add(1)
		go func(idx int, spec domain.AgentSpec, obs domain.Observation) {
			defer wg.Done()
			results[idx] = o.decideOne(ctx, spec, obs)
		}(i, spec, obs)
	}
	wg.Wait()

	return results
}

func (o *Orchestrator) decideOne(ctx context.Context, spec domain.AgentSpec, obs domain.Observation) RoleDecision {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	res, err := o.provider.Decide(callCtx, DecisionRequest{Spec: spec, Observation: obs})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", domain.ErrDecisionTimeout, err)
		}
		// Деградация вместо отказа: тик не должен падать из-за одной роли
		o.logger.Warn("decision provider degraded",
			zap.String("role", spec.Role),
			zap.Int("tick", obs.Tick),
			zap.Error(err))
		return RoleDecision{Role: spec.Role, Degraded: true, Err: err}
	}

	// Провайдер не вправе говорить за чужую роль или чужой тик
	actions := make([]domain.ProposedAction, 0, len(res.Actions))
	for _, a := range res.Actions {
		a.AgentRole = spec.Role
		a.Tick = obs.Tick
		a.DeriveCost()
		actions = append(actions, a)
	}

	return RoleDecision{Role: spec.Role, Reasoning: res.Reasoning, Actions: actions}
}
