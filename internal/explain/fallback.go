package explain

import (
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Display names for high-risk countries used in fallback sentences.
var highRiskCountryNames = map[string]string{
	"NGA": "Nigeria", "RUS": "Russia", "IRN": "Iran", "PRK": "North Korea",
	"AFG": "Afghanistan", "SYR": "Syria", "YEM": "Yemen", "PAK": "Pakistan",
	"MMR": "Myanmar", "VEN": "Venezuela", "LBY": "Libya", "SOM": "Somalia",
}

// coveredFactorKeywords marks factor texts already expressed by the
// priority sentences so leftovers are not repeated.
var coveredFactorKeywords = []string{"amount", "country", "hour", "night", "beneficiary"}

const (
	maxAnalysisSentences = 3
	maxLeftoverFactors   = 2
)

// FallbackExplanation builds a deterministic template explanation.
// Used whenever the generation service fails; same inputs always yield
// the same text.
func FallbackExplanation(tx *domain.Transaction, score int, factors []domain.RiskFactor, homeCountry string) string {
	amount := tx.Amount
	currency := orDefault(tx.Currency, "EUR")
	dest := orDefault(tx.CountryDestination, homeCountry)
	origin := orDefault(tx.CountryOrigin, homeCountry)
	hour := tx.Timestamp.Hour()
	weekday := tx.Timestamp.Weekday()
	receiver := orDefault(tx.ReceiverName, "not specified")

	var intro string
	switch {
	case score >= 85:
		intro = fmt.Sprintf("CRITICAL ALERT (score %d/100): this transaction of %.0f %s presents a VERY HIGH risk level requiring immediate intervention.", score, amount, currency)
	case score >= 70:
		intro = fmt.Sprintf("HIGH ALERT (score %d/100): this transaction of %.0f %s presents several significant risk indicators requiring verification.", score, amount, currency)
	case score >= 50:
		intro = fmt.Sprintf("VIGILANCE REQUIRED (score %d/100): this transaction of %.0f %s presents unusual elements deserving particular attention.", score, amount, currency)
	case score >= 30:
		intro = fmt.Sprintf("LOW RISK (score %d/100): this transaction of %.0f %s presents a few minor points of vigilance.", score, amount, currency)
	default:
		intro = fmt.Sprintf("NORMAL TRANSACTION (score %d/100): this transaction of %.0f %s presents no significant anomaly.", score, amount, currency)
	}

	var analysis []string

	switch {
	case amount >= 50000:
		analysis = append(analysis, fmt.Sprintf("The exceptional amount of %.0f %s far exceeds AML vigilance thresholds and requires a regulatory declaration", amount, currency))
	case amount >= 20000:
		analysis = append(analysis, fmt.Sprintf("The amount of %.0f %s is significantly elevated and triggers reinforced vigilance", amount, currency))
	case amount >= 10000:
		analysis = append(analysis, fmt.Sprintf("The amount of %.0f %s reaches the regulatory declaration threshold", amount, currency))
	case amount >= 9000 && amount <= 9999:
		analysis = append(analysis, fmt.Sprintf("The amount of %.0f %s, just under the 10,000 threshold, could indicate an attempt at structuring", amount, currency))
	}

	if name, ok := highRiskCountryNames[dest]; ok {
		analysis = append(analysis, fmt.Sprintf("The destination (%s) is on the FATF list of high-risk countries, requiring reinforced AML vigilance", name))
	} else if dest != homeCountry && dest != origin {
		analysis = append(analysis, fmt.Sprintf("This is an international transfer to %s, which raises the required level of surveillance", dest))
	}

	if hour <= 5 {
		analysis = append(analysis, fmt.Sprintf("The operation was executed at %dh, a nocturnal hour highly unusual for legitimate banking activity", hour))
	} else if hour == 23 {
		analysis = append(analysis, fmt.Sprintf("The late operation (%dh) falls outside standard transactional habits", hour))
	}

	if (weekday == time.Saturday || weekday == time.Sunday) && amount > 5000 {
		analysis = append(analysis, fmt.Sprintf("The elevated transaction executed on a %s constitutes atypical behaviour", strings.ToLower(weekday.String())))
	}

	receiverLower := strings.ToLower(receiver)
	if containsAny(receiverLower, "crypto", "trading", "forex", "exchange") {
		analysis = append(analysis, fmt.Sprintf("The beneficiary %q suggests activity linked to cryptocurrencies or trading, high-risk sectors", receiver))
	} else if containsAny(receiverLower, "llc", "fze", "offshore", "ltd") {
		analysis = append(analysis, fmt.Sprintf("The legal structure of the beneficiary (%s) shows characteristics of a potential shell company", receiver))
	}

	if len(analysis) > maxAnalysisSentences {
		analysis = analysis[:maxAnalysisSentences]
	}

	// Raw factors not already covered by the sentences above.
	leftover := 0
	for _, f := range factors {
		if leftover >= maxLeftoverFactors {
			break
		}
		if containsAny(strings.ToLower(f.Text), coveredFactorKeywords...) {
			continue
		}
		analysis = append(analysis, f.Text)
		leftover++
	}

	var recommendation string
	switch {
	case score >= 85:
		recommendation = "ACTION REQUIRED: BLOCK the transaction immediately. Alert the fraud manager and the compliance team. Contact the customer for reinforced identity verification before any validation."
	case score >= 70:
		recommendation = "ACTION REQUIRED: SUSPEND the transaction pending verification. Contact the customer by phone to confirm the operation and document the exchange."
	case score >= 50:
		recommendation = "MONITORING RECOMMENDED: flag the account for reinforced surveillance. Review subsequent transactions within 48 hours and document in the customer file."
	case score >= 30:
		recommendation = "VIGILANCE: no immediate action required. Record the alert in the history for later statistical analysis."
	default:
		recommendation = "No action required. Transaction within the normal parameters of the customer profile."
	}

	parts := []string{intro}
	if len(analysis) > 0 {
		parts = append(parts, strings.Join(analysis, ". ")+".")
	}
	parts = append(parts, recommendation)
	return strings.Join(parts, " ")
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
