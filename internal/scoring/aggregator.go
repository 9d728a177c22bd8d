package scoring

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
)

// Booster multipliers. Boosters are multiplicative and compound in the
// order they are checked, letting dangerous combinations dominate the
// weighted average.
const (
	boosterCriticalCombo = 1.5
	boosterNewIntl       = 1.3
	boosterLaundering    = 1.4
)

// boosterAmountHigh and boosterAmountNew gate the first two boosters.
const (
	boosterAmountHigh = 10000.0
	boosterAmountNew  = 5000.0
)

// aggregate computes the weighted sum of the sub-scores, applies the
// booster rules and clamps the result to an integer in [0,100].
// Booster factors are appended to the factor list as they fire.
func aggregate(tx *domain.Transaction, components []domain.ScoreComponent, factors []domain.RiskFactor, homeCountry string, safeCountries []string) (int, []domain.RiskFactor) {
	var score float64
	for _, c := range components {
		score += c.Score * c.Weight
	}

	dest := tx.CountryDestination
	if dest == "" {
		dest = homeCountry
	}
	hour := tx.Timestamp.Hour()

	if tx.Amount >= boosterAmountHigh && features.IsHighRisk(dest) && features.IsSuspiciousHour(hour) {
		score *= boosterCriticalCombo
		factors = append(factors, domain.RiskFactor{
			Kind: domain.FactorCriticalCombo,
			Text: "MAXIMUM ALERT: critical combination of large amount, high-risk country and suspicious hour",
		})
	}

	if domain.HasFactor(factors, domain.FactorNewBeneficiary) && tx.Amount >= boosterAmountNew && !contains(safeCountries, dest) {
		score *= boosterNewIntl
		factors = append(factors, domain.RiskFactor{
			Kind: domain.FactorNewIntlTrans,
			Text: "COMBINED RISK: significant first transfer outside trusted countries",
		})
	}

	if domain.HasFactor(factors, domain.FactorStructuring) && features.IsHighRisk(dest) {
		score *= boosterLaundering
		factors = append(factors, domain.RiskFactor{
			Kind: domain.FactorLaundering,
			Text: "LAUNDERING ALERT: structuring towards a high-risk country",
		})
	}

	final := int(math.Floor(clampScore(score) + 0.5))
	if final > 100 {
		final = 100
	}
	return final, factors
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
