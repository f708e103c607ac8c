package agents

import (
	"context"
	"testing"

	"github.com/xela07ax/corpsim-engine/internal/domain"
)

func decide(t *testing.T, spec domain.AgentSpec, obs domain.Observation) *DecisionResult {
	t.Helper()
	res, err := NewHeuristicProvider().Decide(context.Background(), DecisionRequest{Spec: spec, Observation: obs})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	return res
}

func TestCEOCutsCostsOnShortRunway(t *testing.T) {
	spec := domain.AgentSpec{Role: domain.RoleCEO, RiskAppetite: 0.5}
	obs := domain.Observation{Company: domain.ObservedCompany{RunwayMonths: 3}}

	res := decide(t, spec, obs)
	if len(res.Actions) != 1 || res.Actions[0].Type != domain.ActionModifyCosts {
		t.Fatalf("expected cost cut, got %+v", res.Actions)
	}
}

func TestCEOHoldsWhenComfortable(t *testing.T) {
	spec := domain.AgentSpec{Role: domain.RoleCEO, RiskAppetite: 0.5}
	// runway выше болевого порога (6 для appetite 0.5), сентимент невнятный
	obs := domain.Observation{
		Company: domain.ObservedCompany{RunwayMonths: 12, Cash: 1_000_000, CostsMonthly: 80_000},
		Market:  domain.ObservedMarket{SentimentScore: 0.5},
	}

	res := decide(t, spec, obs)
	if len(res.Actions) != 0 {
		t.Fatalf("expected no actions, got %+v", res.Actions)
	}
}

func TestCEOExpandsOnStrongMarket(t *testing.T) {
	spec := domain.AgentSpec{Role: domain.RoleCEO, RiskAppetite: 1.0}
	obs := domain.Observation{
		Company: domain.ObservedCompany{RunwayMonths: 30, Cash: 3_000_000, CostsMonthly: 100_000},
		Market:  domain.ObservedMarket{SentimentScore: 0.8},
	}

	res := decide(t, spec, obs)
	if len(res.Actions) != 1 || res.Actions[0].Type != domain.ActionModifyExpansion {
		t.Fatalf("expected expansion, got %+v", res.Actions)
	}
	if res.Actions[0].Params.Investment <= 0 {
		t.Fatalf("expansion without investment: %+v", res.Actions[0])
	}
}

func TestProductFollowsDemand(t *testing.T) {
	spec := domain.AgentSpec{Role: domain.RoleProduct}
	obs := domain.Observation{
		Company: domain.ObservedCompany{Pricing: map[string]float64{"pro": 100}},
		Market:  domain.ObservedMarket{DemandMultiplier: 1.5},
	}

	res := decide(t, spec, obs)
	if len(res.Actions) != 1 || res.Actions[0].Type != domain.ActionModifyPricing {
		t.Fatalf("expected pricing move, got %+v", res.Actions)
	}
	if got := res.Actions[0].Params.Pricing["pro"]; got != 105 {
		t.Fatalf("price = %v, want 105 on hot demand", got)
	}

	obs.Market.DemandMultiplier = 0.6
	res = decide(t, spec, obs)
	if got := res.Actions[0].Params.Pricing["pro"]; got != 95 {
		t.Fatalf("price = %v, want 95 on weak demand", got)
	}
}

func TestSalesSpendsOnLowAwareness(t *testing.T) {
	low := 0.2
	spec := domain.AgentSpec{Role: domain.RoleSales}
	obs := domain.Observation{
		Company: domain.ObservedCompany{RevenueMonthly: 400_000},
		Market:  domain.ObservedMarket{AwarenessLevel: &low},
	}

	res := decide(t, spec, obs)
	if len(res.Actions) != 1 || res.Actions[0].Type != domain.ActionAllocateBudget {
		t.Fatalf("expected marketing budget, got %+v", res.Actions)
	}
	if got := res.Actions[0].Params.Allocation["marketing"]; got != 80_000 {
		t.Fatalf("budget = %v, want 80000 (20%% of revenue)", got)
	}

	// Без видимости awareness роль молчит
	obs.Market.AwarenessLevel = nil
	if res := decide(t, spec, obs); len(res.Actions) != 0 {
		t.Fatalf("expected silence without awareness visibility, got %+v", res.Actions)
	}
}

func TestRiskFundsComplianceRemediation(t *testing.T) {
	bad := 0.7
	spec := domain.AgentSpec{Role: domain.RoleRisk}
	obs := domain.Observation{Company: domain.ObservedCompany{ComplianceScore: &bad}}

	res := decide(t, spec, obs)
	if len(res.Actions) != 1 || res.Actions[0].Params.Allocation["compliance"] != 50_000 {
		t.Fatalf("expected compliance budget, got %+v", res.Actions)
	}
}

func TestUnknownRoleObservesOnly(t *testing.T) {
	res := decide(t, domain.AgentSpec{Role: "janitor"}, domain.Observation{})
	if len(res.Actions) != 0 {
		t.Fatalf("unknown role must not act: %+v", res.Actions)
	}
}
