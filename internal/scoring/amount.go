// Package scoring implements the weighted rule engine that turns a
// transaction into a 0-100 fraud risk score.
package scoring

import (
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Amount tier thresholds. A transaction lands in the highest tier it
// reaches; tiers do not stack with each other.
const (
	tierVeryLarge = 50000.0
	tierLarge     = 20000.0
	tierElevated  = 10000.0
	tierNotable   = 5000.0
)

// ScoreAmount rates the transaction amount. Structuring and round
// amount bonuses stack on top of the tier score.
func ScoreAmount(tx *domain.Transaction) (float64, []domain.RiskFactor) {
	var score float64
	var factors []domain.RiskFactor

	amount := tx.Amount
	switch {
	case amount >= tierVeryLarge:
		score = 85
		factors = append(factors, domain.RiskFactor{
			Kind: domain.FactorAmountTier,
			Text: fmt.Sprintf("Very large amount: %s", formatAmount(amount, tx.Currency)),
		})
	case amount >= tierLarge:
		score = 65
		factors = append(factors, domain.RiskFactor{
			Kind: domain.FactorAmountTier,
			Text: fmt.Sprintf("Large amount: %s", formatAmount(amount, tx.Currency)),
		})
	case amount >= tierElevated:
		score = 45
		factors = append(factors, domain.RiskFactor{
			Kind: domain.FactorAmountTier,
			Text: fmt.Sprintf("Elevated amount: %s", formatAmount(amount, tx.Currency)),
		})
	case amount >= tierNotable:
		score = 25
		factors = append(factors, domain.RiskFactor{
			Kind: domain.FactorAmountTier,
			Text: fmt.Sprintf("Notable amount: %s", formatAmount(amount, tx.Currency)),
		})
	}

	if amount >= 9000 && amount <= 9999 {
		score += 40
		factors = append(factors, domain.RiskFactor{
			Kind: domain.FactorStructuring,
			Text: "Amount just below the 10,000 declaration threshold (possible structuring)",
		})
	}
	if amount >= 19000 && amount <= 19999 {
		score += 45
		factors = append(factors, domain.RiskFactor{
			Kind: domain.FactorStructuring,
			Text: "Amount just below the 20,000 declaration threshold (possible structuring)",
		})
	}
	if amount >= 1000 && math.Mod(amount, 1000) == 0 {
		score += 10
		factors = append(factors, domain.RiskFactor{
			Kind: domain.FactorRoundAmount,
			Text: fmt.Sprintf("Suspiciously round amount: %s", formatAmount(amount, tx.Currency)),
		})
	}

	return clampScore(score), factors
}

func formatAmount(amount float64, currency string) string {
	if currency == "" {
		return fmt.Sprintf("%.2f", amount)
	}
	return fmt.Sprintf("%.2f %s", amount, currency)
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
