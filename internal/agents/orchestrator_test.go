package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/corpsim-engine/internal/domain"
)

// funcProvider допускает по-ролевое поведение прямо в тесте.
type funcProvider func(ctx context.Context, req DecisionRequest) (*DecisionResult, error)

func (f funcProvider) Decide(ctx context.Context, req DecisionRequest) (*DecisionResult, error) {
	return f(ctx, req)
}

func obsForRole(role string, tick int) map[string]domain.Observation {
	return map[string]domain.Observation{role: {Tick: tick}}
}

func TestCollectDecisionsPreservesConfigOrder(t *testing.T) {
	specs := []domain.AgentSpec{
		{Role: domain.RoleCEO},
		{Role: domain.RoleCFO},
		{Role: domain.RoleRisk},
	}
	observations := map[string]domain.Observation{
		domain.RoleCEO:  {Tick: 7},
		domain.RoleCFO:  {Tick: 7},
		domain.RoleRisk: {Tick: 7},
	}
	provider := funcProvider(func(_ context.Context, req DecisionRequest) (*DecisionResult, error) {
		// Разный простой разных горутин не должен влиять на порядок итога
		if req.Spec.Role == domain.RoleCEO {
			time.Sleep(20 * time.Millisecond)
		}
		return &DecisionResult{Reasoning: "from " + req.Spec.Role}, nil
	})

	orch := NewOrchestrator(provider, time.Second, zap.NewNop())
	results := orch.CollectDecisions(context.Background(), specs, observations)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, spec := range specs {
		if results[i].Role != spec.Role {
			t.Fatalf("result %d is for %q, want %q", i, results[i].Role, spec.Role)
		}
		if results[i].Reasoning != "from "+spec.Role {
			t.Fatalf("result %d carries wrong reasoning: %q", i, results[i].Reasoning)
		}
	}
}

func TestProviderErrorDegradesRoleOnly(t *testing.T) {
	specs := []domain.AgentSpec{{Role: domain.RoleCEO}, {Role: domain.RoleCFO}}
	observations := map[string]domain.Observation{
		domain.RoleCEO: {Tick: 1},
		domain.RoleCFO: {Tick: 1},
	}
	provider := funcProvider(func(_ context.Context, req DecisionRequest) (*DecisionResult, error) {
		if req.Spec.Role == domain.RoleCEO {
			return nil, errors.New("backend down")
		}
		return &DecisionResult{Reasoning: "ok"}, nil
	})

	orch := NewOrchestrator(provider, time.Second, zap.NewNop())
	results := orch.CollectDecisions(context.Background(), specs, observations)

	if !results[0].Degraded || results[0].Err == nil {
		t.Fatalf("ceo must degrade on provider error: %+v", results[0])
	}
	if results[1].Degraded {
		t.Fatalf("cfo must survive ceo failure: %+v", results[1])
	}
}

func TestSlowProviderDegradesOnTimeout(t *testing.T) {
	provider := funcProvider(func(ctx context.Context, _ DecisionRequest) (*DecisionResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	orch := NewOrchestrator(provider, 10*time.Millisecond, zap.NewNop())
	results := orch.CollectDecisions(context.Background(),
		[]domain.AgentSpec{{Role: domain.RoleCOO}}, obsForRole(domain.RoleCOO, 2))

	if !results[0].Degraded {
		t.Fatalf("role must degrade on timeout: %+v", results[0])
	}
	if !errors.Is(results[0].Err, domain.ErrDecisionTimeout) || !errors.Is(results[0].Err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want decision timeout", results[0].Err)
	}
}

func TestDecisionsStampedWithRoleTickAndCost(t *testing.T) {
	// Провайдер врет про роль и тик и не считает стоимость
	provider := funcProvider(func(_ context.Context, _ DecisionRequest) (*DecisionResult, error) {
		return &DecisionResult{Actions: []domain.ProposedAction{{
			AgentRole: "impostor",
			Tick:      999,
			Type:      domain.ActionModifyHeadcount,
			Params:    domain.ActionParams{Delta: 3, CostPerHead: 12_000},
		}}}, nil
	})

	orch := NewOrchestrator(provider, time.Second, zap.NewNop())
	results := orch.CollectDecisions(context.Background(),
		[]domain.AgentSpec{{Role: domain.RoleCOO}}, obsForRole(domain.RoleCOO, 4))

	a := results[0].Actions[0]
	if a.AgentRole != domain.RoleCOO || a.Tick != 4 {
		t.Fatalf("action not stamped with caller identity: %+v", a)
	}
	if a.EstimatedCost != 36_000 {
		t.Fatalf("estimated cost = %v, want 36000", a.EstimatedCost)
	}
}

func TestMissingObservationDegrades(t *testing.T) {
	provider := funcProvider(func(_ context.Context, _ DecisionRequest) (*DecisionResult, error) {
		t.Fatal("provider must not be called without an observation")
		return nil, nil
	})

	orch := NewOrchestrator(provider, time.Second, zap.NewNop())
	results := orch.CollectDecisions(context.Background(),
		[]domain.AgentSpec{{Role: domain.RoleSales}}, map[string]domain.Observation{})

	if !results[0].Degraded {
		t.Fatalf("missing observation must degrade the role: %+v", results[0])
	}
}
