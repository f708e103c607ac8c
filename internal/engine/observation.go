package engine

import (
	"time"

	"github.com/xela07ax/corpsim-engine/internal/domain"
)

/*
Файл observation.go — построитель time-locked наблюдений.

Информационный барьер всей платформы обеспечивается здесь, на одной
точке: в Observation попадают ТОЛЬКО события с trigger tick <= текущего.
Никакой другой путь данных к агентам не существует, поэтому «утечка
будущего» невозможна по построению.
*/

// VisibleEvents возвращает события, раскрытые к данному тику (trigger
// tick <= tick), в стабильном порядке по тику.
func VisibleEvents(tl domain.Timeline, tick int) []domain.TimelineEvent {
	var out []domain.TimelineEvent
	for _, ev := range tl.Sorted() {
		if ev.Tick <= tick {
			out = append(out, ev)
		}
	}
	return out
}

// EventsAt возвращает события, срабатывающие ровно на этом тике.
func EventsAt(tl domain.Timeline, tick int) []domain.TimelineEvent {
	var out []domain.TimelineEvent
	for _, ev := range tl.Sorted() {
		if ev.Tick == tick {
			out = append(out, ev)
		}
	}
	return out
}

// BuildObservation собирает снапшот для одного агента. Заголовочные
// финансы видят все; операционные поля скоупятся по permissions роли.
func BuildObservation(
	tick int,
	simTime time.Time,
	state domain.CompanyState,
	market domain.MarketState,
	spec domain.AgentSpec,
	tl domain.Timeline,
) domain.Observation {
	company := domain.ObservedCompany{
		Cash:           state.Cash,
		MonthlyBurn:    state.MonthlyBurn,
		RevenueMonthly: state.RevenueMonthly,
		CostsMonthly:   state.CostsMonthly,
		RunwayMonths:   state.RunwayMonths(),
		Headcount:      state.Headcount,
		ServiceLevel:   state.ServiceLevel,
	}

	if spec.HasPermission(domain.ActionModifyPricing) {
		company.Pricing = copyPricing(state.Pricing)
	}
	if spec.HasPermission(domain.ActionModifyInventory) {
		company.Inventory = copyPricing(state.Inventory)
	}
	if spec.HasPermission(domain.ActionModifySuppliers) || spec.HasPermission(domain.ActionModifyHeadcount) {
		company.Capacity = ptr(state.Capacity)
	}
	if spec.Role == domain.RoleRisk || spec.Role == domain.RoleCEO {
		company.ComplianceScore = ptr(state.ComplianceScore)
	}
	if spec.Role == domain.RoleCEO || spec.Role == domain.RoleSales {
		company.MarketExposure = ptr(state.MarketExposure)
	}

	observedMarket := domain.ObservedMarket{
		DemandMultiplier: market.DemandMultiplier,
		SentimentScore:   market.SentimentScore,
	}
	// Расширенную картину рынка видят роли, работающие со спросом
	if spec.HasPermission(domain.ActionAllocateBudget) || spec.HasPermission(domain.ActionModifyPricing) {
		observedMarket.AwarenessLevel = ptr(market.AwarenessLevel)
		observedMarket.TrustLevel = ptr(market.TrustLevel)
		observedMarket.ViralCoefficient = ptr(market.ViralCoefficient)
		observedMarket.Dynamics = copyPricing(market.Dynamics)
	}

	return domain.Observation{
		Tick:         tick,
		SimTime:      simTime,
		Company:      company,
		Market:       observedMarket,
		Events:       VisibleEvents(tl, tick),
		ActiveEvents: EventsAt(tl, tick),
		Objectives:   spec.Objectives,
		RiskAppetite: spec.RiskAppetite,
	}
}

func copyPricing(src map[string]float64) map[string]float64 {
	if src == nil {
		return nil
	}
	dst := make(map[string]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func ptr(v float64) *float64 { return &v }
