package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/anomaly"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// EngineVersion is stamped into every analysis result.
const EngineVersion = "1.0.0"

// Analyzer is the scoring engine. It combines the anomaly model
// component with the four rule components and aggregates them into a
// final score. Safe for concurrent use; the model behind the scorer is
// read-only during scoring and swapped atomically on retrain.
type Analyzer struct {
	cfg    domain.ScoringConfig
	scorer *anomaly.Scorer
	logger *slog.Logger
}

// NewAnalyzer creates the scoring engine.
func NewAnalyzer(cfg domain.ScoringConfig, scorer *anomaly.Scorer, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{cfg: cfg, scorer: scorer, logger: logger}
}

// Threshold returns the configured suspicion threshold.
func (a *Analyzer) Threshold() int {
	return a.cfg.SuspicionThreshold
}

// Analyze scores one transaction. It always produces a complete result:
// model failures degrade to a neutral component and rule components are
// defensive against missing optional fields.
func (a *Analyzer) Analyze(ctx context.Context, tx *domain.Transaction, hasPrior PriorTransactionChecker) *domain.AnalysisResult {
	start := time.Now()

	mlScore, mlFactors := a.scorer.Score(tx)
	amountScore, amountFactors := ScoreAmount(tx)
	geoScore, geoFactors := ScoreGeography(tx, a.cfg.HomeCountry)
	timingScore, timingFactors := ScoreTiming(tx)
	benefScore, benefFactors := ScoreBeneficiary(ctx, tx, hasPrior, a.logger)

	components := []domain.ScoreComponent{
		{Name: domain.ComponentML, Score: mlScore, Weight: domain.WeightML},
		{Name: domain.ComponentAmount, Score: amountScore, Weight: domain.WeightAmount},
		{Name: domain.ComponentGeography, Score: geoScore, Weight: domain.WeightGeography},
		{Name: domain.ComponentTiming, Score: timingScore, Weight: domain.WeightTiming},
		{Name: domain.ComponentBeneficiary, Score: benefScore, Weight: domain.WeightBeneficiary},
	}

	factors := make([]domain.RiskFactor, 0, len(mlFactors)+len(amountFactors)+len(geoFactors)+len(timingFactors)+len(benefFactors))
	factors = append(factors, mlFactors...)
	factors = append(factors, amountFactors...)
	factors = append(factors, geoFactors...)
	factors = append(factors, timingFactors...)
	factors = append(factors, benefFactors...)

	finalScore, factors := aggregate(tx, components, factors, a.cfg.HomeCountry, a.cfg.SafeCountries)
	suspicious := finalScore >= a.cfg.SuspicionThreshold
	riskLevel := domain.RiskLevelFor(finalScore)

	if suspicious {
		factors = append(factors, domain.RiskFactor{
			Kind: domain.FactorGlobalScore,
			Text: formatGlobalScore(finalScore, riskLevel),
		})
	}

	elapsed := time.Since(start).Milliseconds()
	result := &domain.AnalysisResult{
		ID:         uuid.New().String(),
		TenantID:   tx.TenantID,
		TxID:       tx.ID,
		Score:      finalScore,
		Suspicious: suspicious,
		RiskLevel:  riskLevel,
		Factors:    factors,
		Components: components,
		AnalyzedAt: time.Now().UTC(),
		Metadata: domain.AnalysisMetadata{
			ScoringMs:     elapsed,
			TotalMs:       elapsed,
			ModelUsed:     a.scorer.Ready(),
			EngineVersion: EngineVersion,
		},
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		result.Metadata.TraceID = sc.TraceID().String()
	}

	a.logger.Info("transaction analyzed",
		"tenant_id", tx.TenantID,
		"tx_id", tx.ID,
		"score", finalScore,
		"risk_level", riskLevel,
		"suspicious", suspicious,
		"factors", len(factors),
		"duration_ms", elapsed)
	return result
}

func formatGlobalScore(score int, riskLevel string) string {
	return fmt.Sprintf("Global risk score: %d/100 (%s)", score, strings.ToUpper(riskLevel))
}

// TrainModel fits a new anomaly model on the given transactions.
// Fewer than the minimum sample count is a validation error and leaves
// any persisted artifact untouched.
func (a *Analyzer) TrainModel(txs []*domain.Transaction) (*anomaly.Bundle, error) {
	return a.scorer.Train(txs)
}

// Status describes the engine for the model status endpoint.
type Status struct {
	ModelLoaded  bool                `json:"modelLoaded"`
	ScalerLoaded bool                `json:"scalerLoaded"`
	Threshold    int                 `json:"threshold"`
	Model        anomaly.ModelStatus `json:"model"`
}

// Status reports whether a trained model is active and the current
// suspicion threshold.
func (a *Analyzer) Status() Status {
	ms := a.scorer.Status()
	return Status{
		ModelLoaded:  ms.Trained,
		ScalerLoaded: ms.Trained,
		Threshold:    a.cfg.SuspicionThreshold,
		Model:        ms,
	}
}
