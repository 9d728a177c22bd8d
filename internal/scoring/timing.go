package scoring

import (
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ScoreTiming rates when the transaction happened. The deep-night and
// late-evening checks are mutually exclusive; the weekend bonus stacks
// on top of either.
func ScoreTiming(tx *domain.Transaction) (float64, []domain.RiskFactor) {
	var score float64
	var factors []domain.RiskFactor

	hour := tx.Timestamp.Hour()
	switch {
	case hour <= 5:
		score += 60
		factors = append(factors, domain.RiskFactor{
			Kind: domain.FactorNocturnal,
			Text: fmt.Sprintf("Transaction executed at %02dh, deep-night window", hour),
		})
	case hour == 23:
		score += 40
		factors = append(factors, domain.RiskFactor{
			Kind: domain.FactorLateHour,
			Text: "Transaction executed at 23h, late-evening window",
		})
	}

	weekday := tx.Timestamp.Weekday()
	if weekday == time.Saturday || weekday == time.Sunday {
		if tx.Amount > 5000 {
			score += 35
			factors = append(factors, domain.RiskFactor{
				Kind: domain.FactorWeekend,
				Text: "Large transaction executed on a weekend",
			})
		} else {
			score += 15
			factors = append(factors, domain.RiskFactor{
				Kind: domain.FactorWeekend,
				Text: "Transaction executed on a weekend",
			})
		}
	}

	return clampScore(score), factors
}
