package domain

import (
	"fmt"
	"sort"
	"time"
)

// InitialConditions — стартовая точка компании из blueprint.
type InitialConditions struct {
	Cash         float64            `json:"cash"`
	MonthlyBurn  float64            `json:"monthly_burn"`
	Headcount    int                `json:"headcount"`
	Pricing      map[string]float64 `json:"pricing,omitempty"`
	Margins      float64            `json:"margins,omitempty"`
	Capacity     float64            `json:"capacity,omitempty"`
	ServiceLevel float64            `json:"service_level,omitempty"`
}

// Constraints — жесткие операционные ограничения (клампы аппликатора).
type Constraints struct {
	HiringVelocityMax int     `json:"hiring_velocity_max,omitempty"` // макс. изменение headcount за тик
	MinRunwayMonths   float64 `json:"min_runway_months,omitempty"`
	CostPerHead       float64 `json:"cost_per_head,omitempty"` // дефолт для modify_headcount
}

// Policies — правила допуска действий (Policy Engine).
type Policies struct {
	SpendLimitMonthly float64            `json:"spend_limit_monthly,omitempty"` // накопительный лимит за месяц
	MaxPercentChange  map[string]float64 `json:"max_percent_change,omitempty"`  // "pricing", "headcount"
	WorkingCapitalMin float64            `json:"working_capital_min,omitempty"` // пост-инвариант по кэшу
}

// Blueprint — иммутабельная стартовая конфигурация компании.
// Приходит от коллабораторов уже провалидированной, мы только читаем.
type Blueprint struct {
	ID                string            `json:"id,omitempty"`
	Industry          string            `json:"industry,omitempty"`
	InitialConditions InitialConditions `json:"initial_conditions"`
	Constraints       Constraints       `json:"constraints"`
	Policies          Policies          `json:"policies"`
	MarketExposure    float64           `json:"market_exposure,omitempty"`
}

// Типы событий таймлайна (известные движку рынка)
const (
	EventMarketShock      = "market_shock"
	EventDemandSurge      = "demand_surge"
	EventReputationHit    = "reputation_hit"
	EventCompetitorLaunch = "competitor_launch"
	EventRegulation       = "regulation"
)

// TimelineEvent — запланированное событие мира. Read-only вход.
type TimelineEvent struct {
	Tick        int     `json:"tick"` // точка срабатывания
	Type        string  `json:"type"`
	Magnitude   float64 `json:"magnitude"`
	Description string  `json:"description,omitempty"`
}

// Timeline — упорядоченное расписание событий мира, ключ — trigger tick.
type Timeline struct {
	ID        string          `json:"id,omitempty"`
	StartDate time.Time       `json:"start_date"`
	EndTick   int             `json:"end_tick"`
	Events    []TimelineEvent `json:"events"`
}

// Validate — минимальная проверка консистентности входа.
// Движок не чинит вход, только отклоняет (ErrValidation).
func (t Timeline) Validate() error {
	if t.EndTick <= 0 {
		return fmt.Errorf("%w: timeline end_tick must be positive", ErrValidation)
	}
	for _, ev := range t.Events {
		// Тик 0 — генезис: границы тика, на которой события не применяются
		if ev.Tick <= 0 {
			return fmt.Errorf("%w: event %q tick must be >= 1", ErrValidation, ev.Type)
		}
	}
	return nil
}

// Sorted возвращает копию событий, отсортированную по тику (стабильно).
// Сам Timeline не трогаем — он иммутабельный вход.
func (t Timeline) Sorted() []TimelineEvent {
	events := make([]TimelineEvent, len(t.Events))
	copy(events, t.Events)
	sort.SliceStable(events, func(i, j int) bool { return events[i].Tick < events[j].Tick })
	return events
}

func (b Blueprint) Validate() error {
	ic := b.InitialConditions
	if ic.Cash < 0 || ic.MonthlyBurn < 0 || ic.Headcount < 0 {
		return fmt.Errorf("%w: initial conditions must be non-negative", ErrValidation)
	}
	return nil
}
