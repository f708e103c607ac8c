package domain

import (
	"math"
	"time"
)

// Фиксированный словарь типов действий
const (
	ActionModifyHeadcount = "modify_headcount"
	ActionModifyPricing   = "modify_pricing"
	ActionAllocateBudget  = "allocate_budget"
	ActionModifyInventory = "modify_inventory"
	ActionModifySuppliers = "modify_suppliers"
	ActionModifyCosts     = "modify_costs"
	ActionModifyExpansion = "modify_expansion"
)

// ActionParams — типизированные параметры действия. Заполняются только
// поля, релевантные типу; omitempty держит канонический JSON компактным
// и стабильным для хэширования.
type ActionParams struct {
	Delta       float64 `json:"delta,omitempty"`         // modify_headcount
	CostPerHead float64 `json:"cost_per_head,omitempty"` // modify_headcount

	Pricing map[string]float64 `json:"pricing,omitempty"` // modify_pricing

	Allocation map[string]float64 `json:"allocation,omitempty"` // allocate_budget

	Inventory map[string]float64 `json:"inventory,omitempty"` // modify_inventory
	UnitCost  float64            `json:"unit_cost,omitempty"`

	SwitchingCost float64 `json:"switching_cost,omitempty"` // modify_suppliers
	CapacityDelta float64 `json:"capacity_delta,omitempty"`

	ReductionPercent float64 `json:"reduction_percent,omitempty"` // modify_costs

	Investment float64 `json:"investment,omitempty"` // modify_expansion
}

// ProposedAction — действие, предложенное агентом в рамках решения.
type ProposedAction struct {
	AgentRole     string       `json:"agent_role"`
	Tick          int          `json:"tick"`
	Type          string       `json:"type"`
	Params        ActionParams `json:"params"`
	EstimatedCost float64      `json:"estimated_cost"` // деривируется, см. DeriveCost
	Reason        string       `json:"reason,omitempty"`
}

// DeriveCost вычисляет оценку стоимости действия для сравнения с порогами.
// Чистая функция от параметров: политика и аудит видят одно и то же число.
func (a *ProposedAction) DeriveCost() {
	switch a.Type {
	case ActionModifyHeadcount:
		perHead := a.Params.CostPerHead
		if perHead == 0 {
			perHead = 10000
		}
		a.EstimatedCost = math.Abs(a.Params.Delta) * perHead
	case ActionAllocateBudget:
		var total float64
		for _, v := range a.Params.Allocation {
			total += v
		}
		a.EstimatedCost = total
	case ActionModifyInventory:
		var units float64
		for _, v := range a.Params.Inventory {
			units += math.Abs(v)
		}
		a.EstimatedCost = units * a.Params.UnitCost
	case ActionModifySuppliers:
		a.EstimatedCost = a.Params.SwitchingCost
	case ActionModifyExpansion:
		a.EstimatedCost = a.Params.Investment
	default:
		// modify_pricing и modify_costs кэш напрямую не тратят
		a.EstimatedCost = 0
	}
}

// Исходы политики
type PolicyDecision string

const (
	PolicyApprove  PolicyDecision = "approve"
	PolicyDeny     PolicyDecision = "deny"
	PolicyEscalate PolicyDecision = "escalate"
)

// PolicyCheckResult — вердикт по одному действию. Deny/escalate — это НЕ
// ошибки, а штатные результаты, всегда попадающие в аудит.
type PolicyCheckResult struct {
	Decision PolicyDecision `json:"decision"`
	Reason   string         `json:"reason"`
	Rules    []string       `json:"rules,omitempty"` // какие правила сработали
}

// Decision — запись решения агента за тик. После записи — append-only.
type Decision struct {
	ID              string              `json:"id"`
	Tick            int                 `json:"tick"`
	AgentRole       string              `json:"agent_role"`
	ObservationHash string              `json:"observation_hash"` // ссылка на снапшот наблюдений
	Reasoning       string              `json:"reasoning"`
	ProposedActions []ProposedAction    `json:"proposed_actions"`
	Results         []PolicyCheckResult `json:"results"` // выровнены по индексу действия
	Approved        bool                `json:"approved"` // хотя бы одно действие одобрено
	Executed        bool                `json:"executed"` // хотя бы одно действие исполнено
	CreatedAt       time.Time           `json:"created_at"`
}
