package engine

import (
	"math"
	"testing"

	"github.com/xela07ax/corpsim-engine/internal/domain"
)

func baseMarketInputs() MarketInputs {
	return MarketInputs{
		Prev: domain.MarketState{
			SentimentScore:   0.5,
			AwarenessLevel:   0.1,
			TrustLevel:       0.5,
			ViralCoefficient: 1.0,
			DemandMultiplier: 1.0,
		},
		Company: domain.CompanyState{
			Pricing:         map[string]float64{"pro": 100},
			ServiceLevel:    0.95,
			ComplianceScore: 1.0,
			MarketExposure:  0.4,
		},
		SentimentNoise: 0.5, // нейтральный шум
		DemandNoise:    0.5,
	}
}

func TestUpdateMarketIsPure(t *testing.T) {
	in := baseMarketInputs()
	a := UpdateMarket(in)
	b := UpdateMarket(in)
	if a.SentimentScore != b.SentimentScore || a.DemandMultiplier != b.DemandMultiplier {
		t.Fatal("same inputs must produce identical market state")
	}
	if in.Prev.Dynamics != nil {
		t.Fatal("input state must not be mutated")
	}
}

func TestUpdateMarketBounds(t *testing.T) {
	in := baseMarketInputs()
	// Экстремальные входы не выбивают модель за границы
	in.Company.ServiceLevel = 1.0
	in.Company.ComplianceScore = 1.0
	in.Company.MarketExposure = 1.0
	in.Prev.AwarenessLevel = 1.0
	in.Prev.TrustLevel = 1.0
	in.SentimentNoise = 0.999
	in.DemandNoise = 0.999

	out := UpdateMarket(in)
	if out.SentimentScore < 0 || out.SentimentScore > 1 {
		t.Fatalf("sentiment out of [0,1]: %v", out.SentimentScore)
	}
	if out.AwarenessLevel < 0 || out.AwarenessLevel > 1 {
		t.Fatalf("awareness out of [0,1]: %v", out.AwarenessLevel)
	}
	if out.DemandMultiplier < 0.1 || out.DemandMultiplier > 2.0 {
		t.Fatalf("demand out of [0.1,2.0]: %v", out.DemandMultiplier)
	}
}

func TestMarketingBudgetRaisesAwareness(t *testing.T) {
	in := baseMarketInputs()
	quiet := UpdateMarket(in)

	in.Executed = []domain.ProposedAction{{
		Type:   domain.ActionAllocateBudget,
		Params: domain.ActionParams{Allocation: map[string]float64{"marketing": 500_000}},
	}}
	loud := UpdateMarket(in)

	if loud.AwarenessLevel <= quiet.AwarenessLevel {
		t.Fatalf("marketing spend must raise awareness: %v <= %v", loud.AwarenessLevel, quiet.AwarenessLevel)
	}
	if got := loud.AwarenessLevel - quiet.AwarenessLevel; math.Abs(got-0.05) > 1e-9 {
		t.Fatalf("awareness delta = %v, want 0.05 for 500k spend", got)
	}
}

func TestMarketShockSuppressesDemand(t *testing.T) {
	in := baseMarketInputs()
	calm := UpdateMarket(in)

	in.Events = []domain.TimelineEvent{{Type: domain.EventMarketShock, Magnitude: 0.4}}
	shocked := UpdateMarket(in)

	if shocked.DemandMultiplier >= calm.DemandMultiplier {
		t.Fatalf("shock must suppress demand: %v >= %v", shocked.DemandMultiplier, calm.DemandMultiplier)
	}
	if shocked.SentimentScore >= calm.SentimentScore {
		t.Fatalf("shock must suppress sentiment: %v >= %v", shocked.SentimentScore, calm.SentimentScore)
	}
}

func TestPricePerceptionBands(t *testing.T) {
	cases := []struct {
		price float64
		want  float64
	}{
		{50, 0.6},  // подозрительно дешево
		{80, 0.9},  // выгодно
		{100, 0.8}, // рыночная цена
		{120, 0.6}, // дорого
		{200, 0.3}, // запретительно
	}
	for _, tc := range cases {
		if got := evalPricePerception(tc.price); got != tc.want {
			t.Fatalf("perception(%v) = %v, want %v", tc.price, got, tc.want)
		}
	}
}

func TestTrustIsSlowEMA(t *testing.T) {
	in := baseMarketInputs()
	in.Prev.TrustLevel = 1.0
	in.Company.ServiceLevel = 0 // качество рухнуло
	in.Company.ComplianceScore = 0

	out := UpdateMarket(in)
	if out.TrustLevel != 0.7 {
		t.Fatalf("trust after one bad tick = %v, want 0.7 (memory effect)", out.TrustLevel)
	}
}
