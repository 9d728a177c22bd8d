package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// suspiciousKeywords are scanned against receiver name and description.
// First match wins; later keywords are not reported.
var suspiciousKeywords = []string{
	"crypto", "bitcoin", "btc", "eth", "trading", "forex",
	"invest", "exchange", "wallet", "coin", "token", "nft",
	"urgent", "immediat", "lottery", "winner", "prize",
	"inheritance", "prince", "unknown", "anonymous",
	"offshore", "tax free",
}

// riskyLegalStructures are scanned against the receiver name only.
var riskyLegalStructures = []string{
	"llc", "fze", "ltd", "offshore", "holdings", "trust", "foundation",
}

// PriorTransactionChecker reports whether the sender has already paid
// this beneficiary. A nil checker skips the new-beneficiary check.
type PriorTransactionChecker func(ctx context.Context) (bool, error)

// ScoreBeneficiary rates the receiving party. The keyword, legal
// structure and new-beneficiary checks are independent and additive.
func ScoreBeneficiary(ctx context.Context, tx *domain.Transaction, hasPrior PriorTransactionChecker, logger *slog.Logger) (float64, []domain.RiskFactor) {
	if logger == nil {
		logger = slog.Default()
	}

	var score float64
	var factors []domain.RiskFactor

	receiverName := strings.ToLower(tx.ReceiverName)
	haystack := receiverName + " " + strings.ToLower(tx.Description)

	for _, keyword := range suspiciousKeywords {
		if strings.Contains(haystack, keyword) {
			score += 40
			factors = append(factors, domain.RiskFactor{
				Kind: domain.FactorKeyword,
				Text: fmt.Sprintf("Suspicious keyword detected: %q", keyword),
			})
			break
		}
	}

	for _, structure := range riskyLegalStructures {
		if strings.Contains(receiverName, structure) {
			score += 25
			factors = append(factors, domain.RiskFactor{
				Kind: domain.FactorLegalStructure,
				Text: fmt.Sprintf("Risky legal structure in beneficiary name: %s", strings.ToUpper(structure)),
			})
			break
		}
	}

	if hasPrior != nil {
		prior, err := hasPrior(ctx)
		if err != nil {
			logger.Warn("prior transaction lookup failed, skipping new-beneficiary check",
				"tx_id", tx.ID, "error", err)
		} else if !prior {
			score += 35
			factors = append(factors, domain.RiskFactor{
				Kind: domain.FactorNewBeneficiary,
				Text: "New beneficiary: first transaction to this account",
			})
		}
	}

	return clampScore(score), factors
}
