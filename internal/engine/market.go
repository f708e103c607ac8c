package engine

import (
	"math"

	"github.com/xela07ax/corpsim-engine/internal/domain"
)

// MarketInputs — все, от чего зависит эволюция рынка за тик.
// Шумовые компоненты (два розыгрыша из сидированного генератора) приходят
// снаружи: сама модель — чистая функция и одинакова при реплее.
type MarketInputs struct {
	Prev     domain.MarketState
	Company  domain.CompanyState
	Executed []domain.ProposedAction // действия, исполненные на этом тике
	Events   []domain.TimelineEvent  // события, сработавшие на этом тике

	SentimentNoise float64 // розыгрыш №1, [0,1)
	DemandNoise    float64 // розыгрыш №2, [0,1)
}

// UpdateMarket эволюционирует рыночное состояние на одну границу тика.
// Модель популяции: восприятие цены относительно рыночного бэйслайна,
// качество из сервис-левела и комплаенса, сила бренда из market exposure.
func UpdateMarket(in MarketInputs) domain.MarketState {
	next := in.Prev.Clone()

	pricePerception := evalPricePerception(avgPrice(in.Company.Pricing))
	qualityPerception := clamp01(in.Company.ServiceLevel*0.7 + in.Company.ComplianceScore*0.3)
	brandStrength := clamp01(in.Company.MarketExposure*0.6 + next.AwarenessLevel*0.4)

	next.SentimentScore = clamp01(
		pricePerception*0.3 +
			qualityPerception*0.4 +
			brandStrength*0.3 +
			(in.SentimentNoise-0.5)*0.05)

	// Awareness растет от исполненного маркетингового бюджета и от спроса
	marketing := executedMarketing(in.Executed)
	next.AwarenessLevel = clamp01(next.AwarenessLevel +
		(marketing/1_000_000)*0.1 +
		math.Max(0, in.Prev.DemandMultiplier-1.0)*0.05)

	// Доверие — EMA качества: рынок помнит, но забывает медленно
	next.TrustLevel = clamp01(0.7*next.TrustLevel + 0.3*qualityPerception)

	next.ViralCoefficient = 1.0 + (next.SentimentScore-0.5)*2.0

	next.DemandMultiplier = clampRange(
		0.5+next.SentimentScore+(in.DemandNoise-0.5)*0.1,
		0.1, 2.0)

	// События тика двигают модель по типу и магнитуде
	for _, ev := range in.Events {
		applyEventToMarket(&next, ev)
	}

	next.Dynamics = map[string]float64{
		"conversion_rate_modifier": next.TrustLevel,
		"organic_growth_boost":     (next.ViralCoefficient - 1.0) * 0.1,
		"churn_impact":             (1 - next.SentimentScore) * 0.05,
		"word_of_mouth_factor":     next.ViralCoefficient,
		"brand_equity":             next.TrustLevel * next.AwarenessLevel,
		"price_perception":         pricePerception,
		"quality_perception":       qualityPerception,
		"brand_strength":           brandStrength,
	}

	return next
}

// evalPricePerception — ступенчатая оценка цены против рыночного среднего.
// Слишком дешево воспринимается как низкое качество, слишком дорого отпугивает.
func evalPricePerception(price float64) float64 {
	const marketAvg = 100
	ratio := price / marketAvg
	switch {
	case ratio < 0.7:
		return 0.6
	case ratio < 0.9:
		return 0.9
	case ratio < 1.1:
		return 0.8
	case ratio < 1.3:
		return 0.6
	default:
		return 0.3
	}
}

func applyEventToMarket(m *domain.MarketState, ev domain.TimelineEvent) {
	mag := ev.Magnitude
	switch ev.Type {
	case domain.EventMarketShock:
		m.SentimentScore = clamp01(m.SentimentScore * (1 - mag))
		m.DemandMultiplier = clampRange(m.DemandMultiplier*(1-mag), 0.1, 2.0)
	case domain.EventDemandSurge:
		m.DemandMultiplier = clampRange(m.DemandMultiplier*(1+mag), 0.1, 2.0)
	case domain.EventReputationHit:
		m.TrustLevel = clamp01(m.TrustLevel * (1 - mag))
		m.SentimentScore = clamp01(m.SentimentScore * (1 - mag*0.5))
	case domain.EventCompetitorLaunch:
		m.AwarenessLevel = clamp01(m.AwarenessLevel * (1 - mag*0.5))
		m.DemandMultiplier = clampRange(m.DemandMultiplier*(1-mag*0.3), 0.1, 2.0)
	case domain.EventRegulation:
		m.SentimentScore = clamp01(m.SentimentScore * (1 - mag*0.2))
	}
}

func avgPrice(pricing map[string]float64) float64 {
	if len(pricing) == 0 {
		return 100
	}
	var sum float64
	for _, p := range pricing {
		sum += p
	}
	return sum / float64(len(pricing))
}

func executedMarketing(actions []domain.ProposedAction) float64 {
	var total float64
	for _, a := range actions {
		if a.Type == domain.ActionAllocateBudget {
			total += a.Params.Allocation["marketing"]
		}
	}
	return total
}

func clamp01(v float64) float64 { return clampRange(v, 0, 1) }

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
