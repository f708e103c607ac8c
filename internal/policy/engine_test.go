package policy

import (
	"testing"

	"go.uber.org/zap"

	"github.com/xela07ax/corpsim-engine/internal/domain"
)

func testEngine() *Engine {
	return NewEngine(
		domain.Policies{
			SpendLimitMonthly: 500_000,
			MaxPercentChange:  map[string]float64{"pricing": 0.2, "headcount": 0.25},
			WorkingCapitalMin: 100_000,
		},
		domain.Constraints{},
		zap.NewNop(),
	)
}

func testSpec() domain.AgentSpec {
	return domain.AgentSpec{
		Role: domain.RoleCFO,
		Permissions: []string{
			domain.ActionAllocateBudget,
			domain.ActionModifyHeadcount,
			domain.ActionModifyPricing,
		},
		ApprovalThreshold: 100_000,
	}
}

func testState() domain.CompanyState {
	return domain.CompanyState{
		Cash:      1_000_000,
		Headcount: 20,
		Pricing:   map[string]float64{"pro": 100},
	}
}

func budgetAction(total float64) domain.ProposedAction {
	a := domain.ProposedAction{
		AgentRole: domain.RoleCFO,
		Type:      domain.ActionAllocateBudget,
		Params:    domain.ActionParams{Allocation: map[string]float64{"ops": total}},
	}
	a.DeriveCost()
	return a
}

func TestPermissionDenied(t *testing.T) {
	e := testEngine()
	a := domain.ProposedAction{Type: domain.ActionModifyExpansion}
	a.DeriveCost()

	res := e.Evaluate(a, testSpec(), testState(), 0)
	if res.Decision != domain.PolicyDeny {
		t.Fatalf("expected deny, got %s", res.Decision)
	}
	if len(res.Rules) != 1 || res.Rules[0] != RulePermission {
		t.Fatalf("expected permission rule, got %v", res.Rules)
	}
}

func TestThresholdBoundaryInclusive(t *testing.T) {
	e := testEngine()
	spec := testSpec()
	state := testState()

	// Ровно на пороге — уже эскалация
	if res := e.Evaluate(budgetAction(100_000), spec, state, 0); res.Decision != domain.PolicyEscalate {
		t.Fatalf("cost == threshold must escalate, got %s (%s)", res.Decision, res.Reason)
	}
	// На доллар ниже — проходит
	if res := e.Evaluate(budgetAction(99_999), spec, state, 0); res.Decision != domain.PolicyApprove {
		t.Fatalf("cost below threshold must approve, got %s (%s)", res.Decision, res.Reason)
	}
}

func TestSpendLimitCumulative(t *testing.T) {
	e := testEngine()
	spec := testSpec()
	state := testState()

	// Само по себе действие проходит...
	if res := e.Evaluate(budgetAction(90_000), spec, state, 0); res.Decision != domain.PolicyApprove {
		t.Fatalf("expected approve, got %s", res.Decision)
	}
	// ...но с учетом уже исполненного за месяц — превышает лимит
	res := e.Evaluate(budgetAction(90_000), spec, state, 450_000)
	if res.Decision != domain.PolicyDeny {
		t.Fatalf("expected deny on cumulative limit, got %s", res.Decision)
	}
	if res.Rules[0] != RuleSpendLimit {
		t.Fatalf("expected spend limit rule, got %v", res.Rules)
	}
}

func TestSpendLimitBeatsThreshold(t *testing.T) {
	// Лимит и порог сработали бы оба: порядок правил фиксирован,
	// побеждает spend_limit
	e := testEngine()
	res := e.Evaluate(budgetAction(600_000), testSpec(), testState(), 0)
	if res.Decision != domain.PolicyDeny {
		t.Fatalf("expected deny, got %s", res.Decision)
	}
	if res.Rules[0] != RuleSpendLimit {
		t.Fatalf("rule order violated, got %v", res.Rules)
	}
}

func TestPercentCapPricing(t *testing.T) {
	e := testEngine()
	spec := testSpec()
	state := testState()

	over := domain.ProposedAction{
		Type:   domain.ActionModifyPricing,
		Params: domain.ActionParams{Pricing: map[string]float64{"pro": 130}}, // +30% > 20%
	}
	over.DeriveCost()
	if res := e.Evaluate(over, spec, state, 0); res.Decision != domain.PolicyDeny {
		t.Fatalf("expected deny on pricing cap, got %s", res.Decision)
	}

	within := domain.ProposedAction{
		Type:   domain.ActionModifyPricing,
		Params: domain.ActionParams{Pricing: map[string]float64{"pro": 115}},
	}
	within.DeriveCost()
	if res := e.Evaluate(within, spec, state, 0); res.Decision != domain.PolicyApprove {
		t.Fatalf("expected approve within cap, got %s (%s)", res.Decision, res.Reason)
	}

	// Новый продукт: не от чего считать процент, кэп не применяется
	newProduct := domain.ProposedAction{
		Type:   domain.ActionModifyPricing,
		Params: domain.ActionParams{Pricing: map[string]float64{"ultra": 999}},
	}
	newProduct.DeriveCost()
	if res := e.Evaluate(newProduct, spec, state, 0); res.Decision != domain.PolicyApprove {
		t.Fatalf("new product pricing must pass, got %s", res.Decision)
	}
}

func TestPostInvariantWorkingCapital(t *testing.T) {
	e := testEngine()
	spec := testSpec()
	state := testState()
	state.Cash = 180_000

	// 90k спенд оставил бы 90k < working_capital_min 100k
	res := e.Evaluate(budgetAction(90_000), spec, state, 0)
	if res.Decision != domain.PolicyDeny {
		t.Fatalf("expected deny on working capital floor, got %s", res.Decision)
	}
	if res.Rules[0] != RulePostInvariants {
		t.Fatalf("expected post invariants rule, got %v", res.Rules)
	}
}

func TestNegativeHeadcountDenied(t *testing.T) {
	e := testEngine()
	spec := testSpec()
	spec.ApprovalThreshold = 0 // порог выключен
	state := testState()
	state.Headcount = 2

	a := domain.ProposedAction{
		Type:   domain.ActionModifyHeadcount,
		Params: domain.ActionParams{Delta: -3, CostPerHead: 1},
	}
	a.DeriveCost()
	res := e.Evaluate(a, spec, state, 0)
	if res.Decision != domain.PolicyDeny {
		t.Fatalf("expected deny on negative headcount, got %s (%s)", res.Decision, res.Reason)
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	e := testEngine()
	spec := testSpec()
	state := testState()
	a := budgetAction(100_000)

	first := e.Evaluate(a, spec, state, 50_000)
	for i := 0; i < 10; i++ {
		got := e.Evaluate(a, spec, state, 50_000)
		if got.Decision != first.Decision || got.Reason != first.Reason {
			t.Fatalf("evaluation %d diverged: %+v vs %+v", i, got, first)
		}
	}
}
