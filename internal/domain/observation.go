package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// ObservedCompany — срез CompanyState, видимый агенту. Заголовочные
// финансовые метрики видят все роли; операционные поля скоупятся по
// permissions агента (nil = поле скрыто).
type ObservedCompany struct {
	Cash           float64 `json:"cash"`
	MonthlyBurn    float64 `json:"monthly_burn"`
	RevenueMonthly float64 `json:"revenue_monthly"`
	CostsMonthly   float64 `json:"costs_monthly"`
	RunwayMonths   float64 `json:"runway_months"`
	Headcount      int     `json:"headcount"`
	ServiceLevel   float64 `json:"service_level"`

	Pricing         map[string]float64 `json:"pricing,omitempty"`
	Inventory       map[string]float64 `json:"inventory,omitempty"`
	Capacity        *float64           `json:"capacity,omitempty"`
	ComplianceScore *float64           `json:"compliance_score,omitempty"`
	MarketExposure  *float64           `json:"market_exposure,omitempty"`
}

// ObservedMarket — срез MarketState для агента.
type ObservedMarket struct {
	DemandMultiplier float64            `json:"demand_multiplier"`
	SentimentScore   float64            `json:"sentiment_score"`
	AwarenessLevel   *float64           `json:"awareness_level,omitempty"`
	TrustLevel       *float64           `json:"trust_level,omitempty"`
	ViralCoefficient *float64           `json:"viral_coefficient,omitempty"`
	Dynamics         map[string]float64 `json:"market_dynamics,omitempty"`
}

// Observation — иммутабельный time-locked снапшот для одного агента.
// Гарантия всей платформы: здесь НИКОГДА нет TimelineEvent с trigger
// tick больше текущего.
type Observation struct {
	Tick    int       `json:"tick"`
	SimTime time.Time `json:"sim_time"`

	Company ObservedCompany `json:"company"`
	Market  ObservedMarket  `json:"market"`

	// События с trigger tick <= текущего; ActiveEvents — сработавшие
	// ровно на этом тике.
	Events       []TimelineEvent `json:"events"`
	ActiveEvents []TimelineEvent `json:"active_events"`

	Objectives   map[string]float64 `json:"objectives"`
	RiskAppetite float64            `json:"risk_appetite"`
}

// Hash — детерминированная ссылка на снапшот наблюдений для Decision.
// Несериализуемое наблюдение — ошибка программирования: паника вместо
// молчаливого хэша пустого среза.
func (o Observation) Hash() string {
	raw, err := json.Marshal(o)
	if err != nil {
		panic(fmt.Sprintf("observation must be serializable: %v", err))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
