package scoring

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
)

const crossBorderBonus = 15

// ScoreGeography rates the destination country. A missing destination
// means domestic and scores zero. The country risk index contributes
// directly; crossing a border away from home adds a flat bonus.
func ScoreGeography(tx *domain.Transaction, homeCountry string) (float64, []domain.RiskFactor) {
	dest := tx.CountryDestination
	if dest == "" {
		return 0, nil
	}

	origin := tx.CountryOrigin
	if origin == "" {
		origin = homeCountry
	}

	var score float64
	var factors []domain.RiskFactor

	if risk, ok := features.HighRiskCountries[dest]; ok {
		score += float64(risk)
		factors = append(factors, domain.RiskFactor{
			Kind: domain.FactorHighRiskDest,
			Text: fmt.Sprintf("High-risk destination country: %s (risk index %d)", dest, risk),
		})
	} else if risk, ok := features.MediumRiskCountries[dest]; ok {
		score += float64(risk)
		factors = append(factors, domain.RiskFactor{
			Kind: domain.FactorMediumRiskDest,
			Text: fmt.Sprintf("Medium-risk destination country: %s (risk index %d)", dest, risk),
		})
	}

	if dest != origin && dest != homeCountry {
		score += crossBorderBonus
		factors = append(factors, domain.RiskFactor{
			Kind: domain.FactorCrossBorder,
			Text: fmt.Sprintf("Cross-border transfer to %s", dest),
		})
	}

	return clampScore(score), factors
}
