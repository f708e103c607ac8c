package domain

import "fmt"

// BlueprintTemplate возвращает встроенный отраслевой blueprint.
// Шаблоны — стартовые конфигурации для демо и тестов; реальные blueprints
// приходят от внешнего хранилища уже провалидированными.
func BlueprintTemplate(industry string) (Blueprint, error) {
	switch industry {
	case "saas":
		return Blueprint{
			Industry: "saas",
			InitialConditions: InitialConditions{
				Cash:         5_000_000,
				MonthlyBurn:  200_000,
				Headcount:    20,
				Pricing:      map[string]float64{"pro": 99, "enterprise": 499},
				Margins:      0.75,
				Capacity:     1.0,
				ServiceLevel: 0.99,
			},
			Constraints: Constraints{
				HiringVelocityMax: 5,
				MinRunwayMonths:   6,
				CostPerHead:       12_000,
			},
			Policies: Policies{
				SpendLimitMonthly: 500_000,
				MaxPercentChange:  map[string]float64{"pricing": 0.2, "headcount": 0.25},
				WorkingCapitalMin: 1_000_000,
			},
			MarketExposure: 0.3,
		}, nil
	case "d2c":
		return Blueprint{
			Industry: "d2c",
			InitialConditions: InitialConditions{
				Cash:         2_000_000,
				MonthlyBurn:  150_000,
				Headcount:    35,
				Pricing:      map[string]float64{"basic": 35, "bundle": 89},
				Margins:      0.45,
				Capacity:     0.8,
				ServiceLevel: 0.96,
			},
			Constraints: Constraints{
				HiringVelocityMax: 10,
				MinRunwayMonths:   4,
				CostPerHead:       6_500,
			},
			Policies: Policies{
				SpendLimitMonthly: 300_000,
				MaxPercentChange:  map[string]float64{"pricing": 0.15, "headcount": 0.3},
				WorkingCapitalMin: 400_000,
			},
			MarketExposure: 0.6,
		}, nil
	case "manufacturing":
		return Blueprint{
			Industry: "manufacturing",
			InitialConditions: InitialConditions{
				Cash:         12_000_000,
				MonthlyBurn:  900_000,
				Headcount:    240,
				Pricing:      map[string]float64{"unit": 1_250},
				Margins:      0.3,
				Capacity:     0.85,
				ServiceLevel: 0.95,
			},
			Constraints: Constraints{
				HiringVelocityMax: 20,
				MinRunwayMonths:   3,
				CostPerHead:       5_000,
			},
			Policies: Policies{
				SpendLimitMonthly: 2_000_000,
				MaxPercentChange:  map[string]float64{"pricing": 0.1, "headcount": 0.1},
				WorkingCapitalMin: 3_000_000,
			},
			MarketExposure: 0.5,
		}, nil
	default:
		return Blueprint{}, fmt.Errorf("%w: unknown blueprint template %q", ErrValidation, industry)
	}
}
