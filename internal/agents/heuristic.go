package agents

import (
	"context"
	"fmt"
	"math"

	"github.com/xela07ax/corpsim-engine/internal/domain"
)

// HeuristicProvider — детерминированная decision capability по ролям.
// Чистая функция от наблюдения: ни часов, ни рандома, ни внешних вызовов.
// Используется как дефолтный провайдер и в тестах детерминизма вместо
// LLM-бэкенда.
type HeuristicProvider struct{}

func NewHeuristicProvider() *HeuristicProvider { return &HeuristicProvider{} }

func (p *HeuristicProvider) Decide(_ context.Context, req DecisionRequest) (*DecisionResult, error) {
	obs := req.Observation
	switch req.Spec.Role {
	case domain.RoleCEO:
		return p.decideCEO(req.Spec, obs), nil
	case domain.RoleCFO:
		return p.decideCFO(req.Spec, obs), nil
	case domain.RoleCOO:
		return p.decideCOO(req.Spec, obs), nil
	case domain.RoleProduct:
		return p.decideProduct(req.Spec, obs), nil
	case domain.RoleSales:
		return p.decideSales(req.Spec, obs), nil
	case domain.RoleRisk:
		return p.decideRisk(req.Spec, obs), nil
	default:
		// Незнакомая роль — наблюдаем, ничего не предлагаем
		return &DecisionResult{Reasoning: "no playbook for role " + req.Spec.Role}, nil
	}
}

// CEO: стратегия. Режет косты при давлении на runway, инвестирует в
// экспансию при деньгах и хорошем сентименте.
func (p *HeuristicProvider) decideCEO(spec domain.AgentSpec, obs domain.Observation) *DecisionResult {
	runway := obs.Company.RunwayMonths

	// Аппетит к риску сдвигает болевой порог: трусливый CEO режет раньше
	panicRunway := 4.0 + (1.0-spec.RiskAppetite)*4.0
	if runway < panicRunway {
		return &DecisionResult{
			Reasoning: fmt.Sprintf("runway %.1f months is below comfort %.1f, cutting discretionary costs", runway, panicRunway),
			Actions: []domain.ProposedAction{{
				AgentRole: spec.Role,
				Type:      domain.ActionModifyCosts,
				Params:    domain.ActionParams{ReductionPercent: 0.1},
				Reason:    "protect runway",
			}},
		}
	}

	if obs.Market.SentimentScore > 0.7 && obs.Company.Cash > obs.Company.CostsMonthly*12 {
		invest := math.Round(obs.Company.Cash * 0.05 * (0.5 + spec.RiskAppetite))
		return &DecisionResult{
			Reasoning: fmt.Sprintf("sentiment %.2f with %.1f months of cash, expanding", obs.Market.SentimentScore, runway),
			Actions: []domain.ProposedAction{{
				AgentRole: spec.Role,
				Type:      domain.ActionModifyExpansion,
				Params:    domain.ActionParams{Investment: invest},
				Reason:    "capture favorable market",
			}},
		}
	}

	return &DecisionResult{Reasoning: "position acceptable, holding course"}
}

// CFO: финансовая дисциплина. Смотрит на burn против выручки.
func (p *HeuristicProvider) decideCFO(spec domain.AgentSpec, obs domain.Observation) *DecisionResult {
	runway := obs.Company.RunwayMonths
	if runway < 6 {
		cut := 0.05 + (1.0-spec.RiskAppetite)*0.1
		return &DecisionResult{
			Reasoning: fmt.Sprintf("runway %.1f months, tightening costs by %.0f%%", runway, cut*100),
			Actions: []domain.ProposedAction{{
				AgentRole: spec.Role,
				Type:      domain.ActionModifyCosts,
				Params:    domain.ActionParams{ReductionPercent: cut},
				Reason:    "burn discipline",
			}},
		}
	}
	return &DecisionResult{Reasoning: fmt.Sprintf("runway %.1f months, no intervention", runway)}
}

// COO: операции. Нанимает против проседающего сервиса, следит за capacity.
func (p *HeuristicProvider) decideCOO(spec domain.AgentSpec, obs domain.Observation) *DecisionResult {
	if obs.Company.ServiceLevel < 0.95 {
		delta := math.Ceil(float64(obs.Company.Headcount) * 0.05)
		if delta < 1 {
			delta = 1
		}
		return &DecisionResult{
			Reasoning: fmt.Sprintf("service level %.2f below SLA target, adding %v heads", obs.Company.ServiceLevel, delta),
			Actions: []domain.ProposedAction{{
				AgentRole: spec.Role,
				Type:      domain.ActionModifyHeadcount,
				Params:    domain.ActionParams{Delta: delta},
				Reason:    "restore service level",
			}},
		}
	}
	if obs.Company.Capacity != nil && *obs.Company.Capacity < 0.7 {
		return &DecisionResult{
			Reasoning: fmt.Sprintf("capacity utilization %.2f, renegotiating suppliers", *obs.Company.Capacity),
			Actions: []domain.ProposedAction{{
				AgentRole: spec.Role,
				Type:      domain.ActionModifySuppliers,
				Params:    domain.ActionParams{SwitchingCost: 20000, CapacityDelta: 0.1},
				Reason:    "capacity headroom",
			}},
		}
	}
	return &DecisionResult{Reasoning: "operations nominal"}
}

// Product: цены двигаются за спросом, в пределах кэпов политики.
func (p *HeuristicProvider) decideProduct(spec domain.AgentSpec, obs domain.Observation) *DecisionResult {
	if len(obs.Company.Pricing) == 0 {
		return &DecisionResult{Reasoning: "no pricing visibility"}
	}

	var factor float64
	switch {
	case obs.Market.DemandMultiplier > 1.2:
		factor = 1.05
	case obs.Market.DemandMultiplier < 0.8:
		factor = 0.95
	default:
		return &DecisionResult{Reasoning: fmt.Sprintf("demand multiplier %.2f, pricing unchanged", obs.Market.DemandMultiplier)}
	}

	newPricing := make(map[string]float64, len(obs.Company.Pricing))
	for product, price := range obs.Company.Pricing {
		newPricing[product] = math.Round(price*factor*100) / 100
	}
	return &DecisionResult{
		Reasoning: fmt.Sprintf("demand multiplier %.2f, moving prices by %+.0f%%", obs.Market.DemandMultiplier, (factor-1)*100),
		Actions: []domain.ProposedAction{{
			AgentRole: spec.Role,
			Type:      domain.ActionModifyPricing,
			Params:    domain.ActionParams{Pricing: newPricing},
			Reason:    "follow demand",
		}},
	}
}

// Sales: маркетинговый бюджет, когда awareness отстает.
func (p *HeuristicProvider) decideSales(spec domain.AgentSpec, obs domain.Observation) *DecisionResult {
	if obs.Market.AwarenessLevel == nil || *obs.Market.AwarenessLevel >= 0.5 {
		return &DecisionResult{Reasoning: "awareness healthy or not visible, no spend"}
	}

	budget := math.Round(obs.Company.RevenueMonthly * 0.2)
	if budget < 25000 {
		budget = 25000
	}
	return &DecisionResult{
		Reasoning: fmt.Sprintf("awareness %.2f lagging, allocating %.0f to marketing", *obs.Market.AwarenessLevel, budget),
		Actions: []domain.ProposedAction{{
			AgentRole: spec.Role,
			Type:      domain.ActionAllocateBudget,
			Params:    domain.ActionParams{Allocation: map[string]float64{"marketing": budget}},
			Reason:    "grow awareness",
		}},
	}
}

// Risk: вмешивается только при деградации комплаенса.
func (p *HeuristicProvider) decideRisk(spec domain.AgentSpec, obs domain.Observation) *DecisionResult {
	if obs.Company.ComplianceScore != nil && *obs.Company.ComplianceScore < 0.9 {
		return &DecisionResult{
			Reasoning: fmt.Sprintf("compliance score %.2f, funding remediation", *obs.Company.ComplianceScore),
			Actions: []domain.ProposedAction{{
				AgentRole: spec.Role,
				Type:      domain.ActionAllocateBudget,
				Params:    domain.ActionParams{Allocation: map[string]float64{"compliance": 50000}},
				Reason:    "remediate compliance",
			}},
		}
	}
	return &DecisionResult{Reasoning: "risk posture acceptable"}
}
