package anomaly

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
)

// MinTrainingSamples is the smallest batch a model can be fit on.
const MinTrainingSamples = 10

// ErrInsufficientSamples indicates a training request below MinTrainingSamples.
var ErrInsufficientSamples = errors.New("insufficient training samples")

// outlierFloor is the minimum component score once the model has
// flagged a transaction as an outlier.
const outlierFloor = 65.0

// Scorer produces the machine learning component of the risk score.
// It holds the active model bundle behind a lock so training swaps the
// model without disrupting in-flight scoring.
type Scorer struct {
	mu     sync.RWMutex
	bundle *Bundle
	store  *ArtifactStore
	logger *slog.Logger
}

// NewScorer creates a scorer and loads any persisted model from the
// store. A missing artifact is normal on first boot: the scorer then
// returns a neutral component until a model is trained.
func NewScorer(store *ArtifactStore, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scorer{store: store, logger: logger}
	if store == nil {
		return s
	}
	bundle, err := store.Load()
	switch {
	case err == nil:
		s.bundle = bundle
		logger.Info("anomaly model loaded",
			"trained_at", bundle.TrainedAt,
			"samples", bundle.SampleCount)
	case errors.Is(err, ErrNoModel):
		logger.Info("no anomaly model artifact, scoring neutral until trained",
			"path", store.Path())
	default:
		logger.Warn("failed to load anomaly model, scoring neutral",
			"path", store.Path(), "error", err)
	}
	return s
}

// Ready reports whether a trained model is active.
func (s *Scorer) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bundle != nil
}

// Score computes the 0-100 anomaly component for a transaction along
// with any risk factors the model contributes. Without a trained model
// the component is a neutral 50. A model failure during inference must
// never abort the analysis: the component falls back to neutral.
func (s *Scorer) Score(tx *domain.Transaction) (score float64, factors []domain.RiskFactor) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("anomaly scoring failed, neutral score applied",
				"tx_id", tx.ID, "panic", r)
			score = 50
			factors = nil
		}
	}()

	s.mu.RLock()
	bundle := s.bundle
	s.mu.RUnlock()

	if bundle == nil {
		return 50, []domain.RiskFactor{{
			Kind: domain.FactorMLUnavailable,
			Text: "Behavioural model unavailable, neutral anomaly score applied",
		}}
	}

	ext := features.NewExtractor(bundle.Encoders, s.logger)
	v := bundle.Scaler.Transform(ext.Extract(tx))
	raw := bundle.Forest.DecisionFunction(v)

	score = 50 - raw*100
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	if raw < 0 {
		if score < outlierFloor {
			score = outlierFloor
		}
		factors = append(factors, domain.RiskFactor{
			Kind: domain.FactorMLAnomaly,
			Text: fmt.Sprintf("Behavioural model flagged the transaction as an anomaly (score: %.0f)", score),
		})
	}
	return score, factors
}

// Train fits a new bundle on the given transactions, persists it and
// makes it the active model. The previous model keeps serving until
// the new one is fully written.
func (s *Scorer) Train(txs []*domain.Transaction) (*Bundle, error) {
	if len(txs) < MinTrainingSamples {
		return nil, fmt.Errorf("%w: got %d, need %d", ErrInsufficientSamples, len(txs), MinTrainingSamples)
	}

	encoders := features.NewEncoders()
	ext := features.NewExtractor(encoders, s.logger)
	vectors := ext.ExtractAll(txs)

	scaler := &StandardScaler{}
	scaler.Fit(vectors)

	forest := NewIsolationForest()
	forest.Fit(scaler.TransformAll(vectors))

	bundle := &Bundle{
		Version:     time.Now().UTC().Format("20060102T150405Z"),
		TrainedAt:   time.Now().UTC(),
		SampleCount: len(txs),
		Forest:      forest,
		Scaler:      scaler,
		Encoders:    encoders,
	}

	if s.store != nil {
		if err := s.store.Save(bundle); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.bundle = bundle
	s.mu.Unlock()

	s.logger.Info("anomaly model trained",
		"samples", bundle.SampleCount,
		"trees", forest.NumTrees,
		"version", bundle.Version)
	return bundle, nil
}

// ModelStatus describes the active model for the status endpoint.
type ModelStatus struct {
	Trained     bool       `json:"trained"`
	Version     string     `json:"version,omitempty"`
	TrainedAt   *time.Time `json:"trainedAt,omitempty"`
	SampleCount int        `json:"sampleCount,omitempty"`
	NumTrees    int        `json:"numTrees,omitempty"`
}

// Status reports the currently active model.
func (s *Scorer) Status() ModelStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bundle == nil {
		return ModelStatus{Trained: false}
	}
	t := s.bundle.TrainedAt
	return ModelStatus{
		Trained:     true,
		Version:     s.bundle.Version,
		TrainedAt:   &t,
		SampleCount: s.bundle.SampleCount,
		NumTrees:    s.bundle.Forest.NumTrees,
	}
}
