package domain

import (
	"time"
)

// FactorKind is a closed category tag carried alongside every risk factor.
// Booster rules in the aggregator match on kinds, never on the display text,
// so factor wording can change without breaking combination logic.
type FactorKind string

const (
	FactorMLAnomaly      FactorKind = "ml_anomaly"
	FactorMLUnavailable  FactorKind = "ml_unavailable"
	FactorAmountTier     FactorKind = "amount_tier"
	FactorStructuring    FactorKind = "structuring"
	FactorRoundAmount    FactorKind = "round_amount"
	FactorHighRiskDest   FactorKind = "high_risk_destination"
	FactorMediumRiskDest FactorKind = "medium_risk_destination"
	FactorCrossBorder    FactorKind = "cross_border"
	FactorNocturnal      FactorKind = "nocturnal"
	FactorLateHour       FactorKind = "late_hour"
	FactorWeekend        FactorKind = "weekend"
	FactorKeyword        FactorKind = "suspicious_keyword"
	FactorLegalStructure FactorKind = "risky_legal_structure"
	FactorNewBeneficiary FactorKind = "new_beneficiary"
	FactorCriticalCombo  FactorKind = "critical_combination"
	FactorNewIntlTrans   FactorKind = "new_international_transfer"
	FactorLaundering     FactorKind = "laundering_pattern"
	FactorGlobalScore    FactorKind = "global_score"
)

// RiskFactor is one triggered condition, immutable once emitted.
// Order in a factor list reflects the sequence components ran in,
// not severity.
type RiskFactor struct {
	Kind FactorKind `json:"kind"`
	Text string     `json:"text"`
}

// HasFactor reports whether a factor of the given kind is present.
func HasFactor(factors []RiskFactor, kind FactorKind) bool {
	for _, f := range factors {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

// FactorTexts flattens a factor list to its display strings.
func FactorTexts(factors []RiskFactor) []string {
	texts := make([]string, len(factors))
	for i, f := range factors {
		texts[i] = f.Text
	}
	return texts
}

// Canonical scoring component names and weights. The five weights sum to 1.0.
const (
	ComponentML          = "ml_model"
	ComponentAmount      = "amount"
	ComponentGeography   = "geography"
	ComponentTiming      = "timing"
	ComponentBeneficiary = "beneficiary"

	WeightML          = 0.35
	WeightAmount      = 0.25
	WeightGeography   = 0.20
	WeightTiming      = 0.10
	WeightBeneficiary = 0.10
)

// ScoreComponent is one weighted sub-score in the aggregate.
type ScoreComponent struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// Risk levels derived from the final score.
const (
	RiskMinimal  = "minimal"
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// RiskLevelFor maps a final score to its risk band.
func RiskLevelFor(score int) string {
	switch {
	case score >= 85:
		return RiskCritical
	case score >= 70:
		return RiskHigh
	case score >= 50:
		return RiskMedium
	case score >= 30:
		return RiskLow
	default:
		return RiskMinimal
	}
}

// AnalysisResult is the complete output of one scoring pass.
// Immutable after creation; persisted by the repository for audit.
type AnalysisResult struct {
	ID         string           `json:"id"`
	TenantID   string           `json:"tenantId"`
	TxID       string           `json:"txId"`
	Score      int              `json:"score"`
	Suspicious bool             `json:"suspicious"`
	RiskLevel  string           `json:"riskLevel"`
	Factors    []RiskFactor     `json:"factors"`
	Components []ScoreComponent `json:"components"`
	AnalyzedAt time.Time        `json:"analyzedAt"`

	// Processing metadata
	Metadata AnalysisMetadata `json:"metadata"`
}

// AnalysisMetadata contains processing information.
type AnalysisMetadata struct {
	TraceID       string `json:"traceId,omitempty"`
	ScoringMs     int64  `json:"scoringMs"`
	ExplainMs     int64  `json:"explainMs,omitempty"`
	TotalMs       int64  `json:"totalMs"`
	ModelUsed     bool   `json:"modelUsed"`
	EngineVersion string `json:"engineVersion"`
}

// AnalysisResponse is the API response for a transaction analysis.
type AnalysisResponse struct {
	AnalysisID  string           `json:"analysisId"`
	TxID        string           `json:"txId"`
	Reference   string           `json:"reference,omitempty"`
	Score       int              `json:"score"`
	Suspicious  bool             `json:"suspicious"`
	RiskLevel   string           `json:"riskLevel"`
	Factors     []string         `json:"factors,omitempty"`
	Explanation string           `json:"explanation,omitempty"`
	Metadata    AnalysisMetadata `json:"metadata"`
}

// ToResponse converts an AnalysisResult to an API response.
func (a *AnalysisResult) ToResponse(reference, explanation string) *AnalysisResponse {
	return &AnalysisResponse{
		AnalysisID:  a.ID,
		TxID:        a.TxID,
		Reference:   reference,
		Score:       a.Score,
		Suspicious:  a.Suspicious,
		RiskLevel:   a.RiskLevel,
		Factors:     FactorTexts(a.Factors),
		Explanation: explanation,
		Metadata:    a.Metadata,
	}
}

// TransactionStats is the aggregate dashboard rollup.
type TransactionStats struct {
	TotalTransactions int      `json:"totalTransactions"`
	SuspiciousCount   int      `json:"suspiciousCount"`
	ConfirmedFraud    int      `json:"confirmedFraud"`
	PendingReview     int      `json:"pendingReview"`
	HighRiskCount     int      `json:"highRiskCount"`
	AverageScore      *float64 `json:"averageScore,omitempty"`
}
