package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// CompanyState — иммутабельный снапшот состояния компании на момент тика.
// Каждый тик порождает НОВЫЙ снапшот (value-семантика), поэтому пары
// state_before/state_after в аудите точны по построению.
type CompanyState struct {
	Version int `json:"version"`

	// Финансы
	Cash           float64 `json:"cash"`
	MonthlyBurn    float64 `json:"monthly_burn"`
	RevenueMonthly float64 `json:"revenue_monthly"`
	CostsMonthly   float64 `json:"costs_monthly"`
	Margin         float64 `json:"margin"`

	// Операции
	Headcount int                `json:"headcount"`
	Pricing   map[string]float64 `json:"pricing"`
	Capacity  float64            `json:"capacity"`
	Inventory map[string]float64 `json:"inventory"`

	// Качество и риск
	ServiceLevel    float64 `json:"service_level"`
	ComplianceScore float64 `json:"compliance_score"`
	MarketExposure  float64 `json:"market_exposure"`
}

// Clone создает глубокую копию с инкрементом версии.
// Мапы копируются, чтобы старый снапшот никто не мог задеть.
func (s CompanyState) Clone() CompanyState {
	next := s
	next.Version = s.Version + 1
	next.Pricing = copyMap(s.Pricing)
	next.Inventory = copyMap(s.Inventory)
	return next
}

// MaxRunwayMonths — потолок runway в месяцах. Прибыльная компания жила бы
// «вечно», но +Inf не существует в JSON, а runway попадает в наблюдения и
// снапшоты — значение всегда конечно.
const MaxRunwayMonths = 1200

// RunwayMonths — сколько месяцев проживем на текущем burn.
func (s CompanyState) RunwayMonths() float64 {
	net := s.CostsMonthly - s.RevenueMonthly
	if net <= 0 {
		return MaxRunwayMonths
	}
	if runway := s.Cash / net; runway < MaxRunwayMonths {
		return runway
	}
	return MaxRunwayMonths
}

// Hash — детерминированный дайджест снапшота для верификации реплеев.
// encoding/json дает стабильный порядок полей структуры и сортирует ключи мап.
func (s CompanyState) Hash() string {
	raw, _ := json.Marshal(s)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// MarketState — состояние рынка/популяции. Эволюционирует раз в тик как
// функция (прошлый MarketState, исполненные действия, активные события, seed).
type MarketState struct {
	SentimentScore   float64            `json:"sentiment_score"`   // 0..1
	AwarenessLevel   float64            `json:"awareness_level"`   // 0..1
	TrustLevel       float64            `json:"trust_level"`       // 0..1
	ViralCoefficient float64            `json:"viral_coefficient"` // ~0..2
	DemandMultiplier float64            `json:"demand_multiplier"` // клампится в [0.1, 2.0]
	Dynamics         map[string]float64 `json:"market_dynamics"`
}

func (m MarketState) Clone() MarketState {
	next := m
	next.Dynamics = copyMap(m.Dynamics)
	return next
}

func (m MarketState) Hash() string {
	raw, _ := json.Marshal(m)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func copyMap(src map[string]float64) map[string]float64 {
	if src == nil {
		return nil
	}
	dst := make(map[string]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
