package engine

import (
	"math"

	"github.com/xela07ax/corpsim-engine/internal/domain"
)

// Applier — трансформатор состояния. Каждый метод берет снапшот и
// возвращает НОВЫЙ снапшот (Clone), старый никогда не мутируется:
// пары before/after в аудите получаются бесплатно.
type Applier struct {
	constraints domain.Constraints
	tickDays    int
}

func NewApplier(constraints domain.Constraints, tickDays int) *Applier {
	if tickDays <= 0 {
		tickDays = 30
	}
	return &Applier{constraints: constraints, tickDays: tickDays}
}

// ApplyPassive — пассивная динамика тика: выручка и косты умножаются на
// долю месяца, спрос рынка масштабирует только выручку. Компания без
// выручки просто сжигает burn — арифметика runway сходится точно.
func (ap *Applier) ApplyPassive(state domain.CompanyState, market domain.MarketState) domain.CompanyState {
	next := state.Clone()
	frac := float64(ap.tickDays) / 30.0

	revenue := state.RevenueMonthly * frac * market.DemandMultiplier
	costs := state.CostsMonthly * frac
	next.Cash = state.Cash + revenue - costs

	if revenue > 0 {
		next.Margin = (revenue - costs) / revenue
	}
	return next
}

// ApplyAction применяет одобренное действие. Политика уже отработала:
// здесь остаются только жесткие операционные клампы из constraints.
func (ap *Applier) ApplyAction(state domain.CompanyState, action domain.ProposedAction) domain.CompanyState {
	next := state.Clone()

	switch action.Type {
	case domain.ActionModifyHeadcount:
		delta := action.Params.Delta
		if vmax := ap.constraints.HiringVelocityMax; vmax > 0 {
			delta = clampRange(delta, -float64(vmax), float64(vmax))
		}
		perHead := action.Params.CostPerHead
		if perHead == 0 {
			perHead = ap.constraints.CostPerHead
		}
		if perHead == 0 {
			perHead = 10000
		}
		next.Headcount = int(math.Max(0, float64(state.Headcount)+delta))
		applied := float64(next.Headcount - state.Headcount)
		next.CostsMonthly = state.CostsMonthly + applied*perHead
		next.MonthlyBurn = next.CostsMonthly

	case domain.ActionModifyPricing:
		if next.Pricing == nil {
			next.Pricing = make(map[string]float64, len(action.Params.Pricing))
		}
		for product, price := range action.Params.Pricing {
			next.Pricing[product] = price
		}

	case domain.ActionAllocateBudget:
		var total float64
		for _, v := range action.Params.Allocation {
			total += v
		}
		next.Cash = state.Cash - total
		if action.Params.Allocation["compliance"] > 0 {
			next.ComplianceScore = clamp01(state.ComplianceScore + 0.05)
		}

	case domain.ActionModifyInventory:
		if next.Inventory == nil {
			next.Inventory = make(map[string]float64, len(action.Params.Inventory))
		}
		for item, qty := range action.Params.Inventory {
			next.Inventory[item] = qty
		}
		next.Cash = state.Cash - action.EstimatedCost

	case domain.ActionModifySuppliers:
		next.Cash = state.Cash - action.Params.SwitchingCost
		next.Capacity = state.Capacity + action.Params.CapacityDelta
		next.ServiceLevel = clamp01(state.ServiceLevel + action.Params.CapacityDelta*0.1)

	case domain.ActionModifyCosts:
		reduction := action.Params.ReductionPercent
		next.CostsMonthly = state.CostsMonthly * (1 - reduction)
		next.MonthlyBurn = next.CostsMonthly

	case domain.ActionModifyExpansion:
		next.Cash = state.Cash - action.Params.Investment
		next.MarketExposure = clamp01(state.MarketExposure + action.Params.Investment/10_000_000)
		// Экспансия конвертируется в выручку постепенно, не мгновенно
		next.RevenueMonthly = state.RevenueMonthly + action.Params.Investment*0.005
	}

	return next
}

// ApplyEvent применяет эффекты сработавшего события мира к компании.
// Рыночные эффекты того же события живут в UpdateMarket.
func (ap *Applier) ApplyEvent(state domain.CompanyState, ev domain.TimelineEvent) domain.CompanyState {
	next := state.Clone()
	mag := ev.Magnitude

	switch ev.Type {
	case domain.EventMarketShock:
		next.RevenueMonthly = state.RevenueMonthly * (1 - mag)
	case domain.EventDemandSurge:
		next.RevenueMonthly = state.RevenueMonthly * (1 + mag)
	case domain.EventRegulation:
		next.ComplianceScore = clamp01(state.ComplianceScore * (1 - mag*0.5))
		next.CostsMonthly = state.CostsMonthly * (1 + mag*0.1)
		next.MonthlyBurn = next.CostsMonthly
	case domain.EventCompetitorLaunch:
		next.MarketExposure = clamp01(state.MarketExposure * (1 - mag*0.5))
	case domain.EventReputationHit:
		next.ServiceLevel = clamp01(state.ServiceLevel * (1 - mag*0.2))
	}

	return next
}
