package policy

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/xela07ax/corpsim-engine/internal/domain"
)

// Идентификаторы правил в порядке вычисления. Порядок фиксирован:
// первое сработавшее правило выигрывает и дает reason — иначе результат
// зависел бы от обхода и ломал детерминизм реплея.
const (
	RulePermission     = "permission"
	RuleSpendLimit     = "spend_limit_monthly"
	RuleThreshold      = "approval_threshold"
	RulePercentChange  = "max_percent_change"
	RulePostInvariants = "post_invariants"
)

// Engine — централизованный допуск предложенных действий.
// Evaluate — чистая функция от (действие, спека агента, состояние,
// накопленный месячный спенд): один и тот же вход дает один и тот же
// вердикт, сколько бы раз его ни спрашивали.
type Engine struct {
	policies    domain.Policies
	constraints domain.Constraints
	logger      *zap.Logger
}

func NewEngine(policies domain.Policies, constraints domain.Constraints, logger *zap.Logger) *Engine {
	return &Engine{
		policies:    policies,
		constraints: constraints,
		logger:      logger.Named("policy"),
	}
}

// Evaluate прогоняет действие по правилам в фиксированном порядке:
//  1. тип действия входит в permissions агента — иначе deny;
//  2. estimated_cost против spend_limit_monthly накопительно за месяц — deny;
//  3. estimated_cost против approval_threshold агента — escalate (граница
//     ВКЛЮЧИТЕЛЬНО: cost == threshold уже уходит на подтверждение);
//  4. проценты изменения pricing/headcount против кэпов — deny;
//  5. пост-инварианты по состоянию, которое ПОЛУЧИЛОСЬ БЫ — deny.
func (e *Engine) Evaluate(
	action domain.ProposedAction,
	spec domain.AgentSpec,
	state domain.CompanyState,
	monthSpend float64,
) domain.PolicyCheckResult {
	// 1. Права агента
	if !spec.HasPermission(action.Type) {
		return deny(RulePermission,
			fmt.Sprintf("agent %q has no permission for %s", spec.Role, action.Type))
	}

	// 2. Накопительный месячный лимит (hard policy limit)
	if limit := e.policies.SpendLimitMonthly; limit > 0 {
		if monthSpend+action.EstimatedCost > limit {
			return deny(RuleSpendLimit,
				fmt.Sprintf("spend_limit: %.0f + %.0f > %.0f", monthSpend, action.EstimatedCost, limit))
		}
	}

	// 3. Порог эскалации агента (инклюзивная граница)
	if th := spec.ApprovalThreshold; th > 0 && action.EstimatedCost >= th {
		return domain.PolicyCheckResult{
			Decision: domain.PolicyEscalate,
			Reason:   fmt.Sprintf("requires approval: estimated cost %.0f >= threshold %.0f", action.EstimatedCost, th),
			Rules:    []string{RuleThreshold},
		}
	}

	// 4. Кэпы на процент изменения
	if res, violated := e.checkPercentCaps(action, state); violated {
		return res
	}

	// 5. Пост-инварианты по проекции состояния
	if res, violated := e.checkPostInvariants(action, state); violated {
		return res
	}

	return domain.PolicyCheckResult{
		Decision: domain.PolicyApprove,
		Reason:   "action complies with all policies",
	}
}

func (e *Engine) checkPercentCaps(action domain.ProposedAction, state domain.CompanyState) (domain.PolicyCheckResult, bool) {
	caps := e.policies.MaxPercentChange
	if len(caps) == 0 {
		return domain.PolicyCheckResult{}, false
	}

	switch action.Type {
	case domain.ActionModifyPricing:
		cap, ok := caps["pricing"]
		if !ok {
			return domain.PolicyCheckResult{}, false
		}
		for product, newPrice := range action.Params.Pricing {
			oldPrice, known := state.Pricing[product]
			if !known || oldPrice <= 0 {
				continue // новый продукт — не от чего считать процент
			}
			change := math.Abs(newPrice-oldPrice) / oldPrice
			if change > cap {
				return deny(RulePercentChange,
					fmt.Sprintf("pricing_change: %.1f%% > %.1f%% for %s", change*100, cap*100, product)), true
			}
		}
	case domain.ActionModifyHeadcount:
		cap, ok := caps["headcount"]
		if !ok || state.Headcount == 0 {
			return domain.PolicyCheckResult{}, false
		}
		change := math.Abs(action.Params.Delta) / float64(state.Headcount)
		if change > cap {
			return deny(RulePercentChange,
				fmt.Sprintf("headcount_change: %.1f%% > %.1f%%", change*100, cap*100)), true
		}
	}
	return domain.PolicyCheckResult{}, false
}

// checkPostInvariants проецирует денежный эффект действия и проверяет
// инварианты итогового состояния. Проекция грубая (только кэш/headcount) —
// точную трансформацию делает аппликатор, но для допуска этого достаточно
// и это держит политику чистой функцией.
func (e *Engine) checkPostInvariants(action domain.ProposedAction, state domain.CompanyState) (domain.PolicyCheckResult, bool) {
	projectedCash := state.Cash - action.EstimatedCost

	if projectedCash < 0 {
		return deny(RulePostInvariants,
			fmt.Sprintf("cash_negative: %.0f after action", projectedCash)), true
	}
	if min := e.policies.WorkingCapitalMin; min > 0 && projectedCash < min {
		return deny(RulePostInvariants,
			fmt.Sprintf("working_capital_min: %.0f < %.0f", projectedCash, min)), true
	}
	if action.Type == domain.ActionModifyHeadcount {
		if float64(state.Headcount)+action.Params.Delta < 0 {
			return deny(RulePostInvariants, "headcount_negative"), true
		}
	}
	return domain.PolicyCheckResult{}, false
}

func deny(rule, reason string) domain.PolicyCheckResult {
	return domain.PolicyCheckResult{
		Decision: domain.PolicyDeny,
		Reason:   reason,
		Rules:    []string{rule},
	}
}
