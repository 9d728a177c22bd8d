package scoring

import (
	"context"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/anomaly"
	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestAnalyzer(threshold int) *Analyzer {
	cfg := domain.ScoringConfig{
		SuspicionThreshold: threshold,
		HomeCountry:        "FRA",
		SafeCountries:      []string{"FRA", "DEU", "BEL", "ESP", "ITA"},
	}
	// No artifact store: the ML component stays at its neutral 50.
	return NewAnalyzer(cfg, anomaly.NewScorer(nil, slog.Default()), slog.Default())
}

func knownBeneficiary(ctx context.Context) (bool, error) { return true, nil }
func newBeneficiary(ctx context.Context) (bool, error)   { return false, nil }

func TestAnalyzeCriticalScenario(t *testing.T) {
	a := newTestAnalyzer(70)
	tx := &domain.Transaction{
		ID:                 "tx-critical",
		TenantID:           "tenant-a",
		Amount:             45000,
		Currency:           "EUR",
		ReceiverName:       "Crypto Ventures FZE",
		Type:               domain.TypeTransfer,
		Channel:            domain.ChannelWeb,
		CountryOrigin:      "FRA",
		CountryDestination: "NGA",
		Timestamp:          time.Date(2025, 3, 5, 3, 0, 0, 0, time.UTC),
	}

	result := a.Analyze(context.Background(), tx, newBeneficiary)

	if result.Score < 85 {
		t.Errorf("score = %d, want >= 85", result.Score)
	}
	if result.RiskLevel != domain.RiskCritical {
		t.Errorf("risk level = %s, want critical", result.RiskLevel)
	}
	if !result.Suspicious {
		t.Error("critical scenario not flagged suspicious")
	}
	for _, kind := range []domain.FactorKind{
		domain.FactorHighRiskDest,
		domain.FactorNocturnal,
		domain.FactorCriticalCombo,
		domain.FactorKeyword,
		domain.FactorNewBeneficiary,
	} {
		if !domain.HasFactor(result.Factors, kind) {
			t.Errorf("missing expected factor %s in %v", kind, result.Factors)
		}
	}
}

func TestAnalyzeBenignScenario(t *testing.T) {
	a := newTestAnalyzer(70)
	tx := &domain.Transaction{
		ID:           "tx-benign",
		TenantID:     "tenant-a",
		Amount:       50,
		Currency:     "EUR",
		ReceiverName: "Boulangerie Martin",
		Type:         domain.TypeCard,
		Channel:      domain.ChannelWeb,
		Timestamp:    time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC),
	}

	result := a.Analyze(context.Background(), tx, knownBeneficiary)

	if result.Score >= 30 {
		t.Errorf("score = %d, want < 30", result.Score)
	}
	if result.RiskLevel != domain.RiskMinimal && result.RiskLevel != domain.RiskLow {
		t.Errorf("risk level = %s, want minimal or low", result.RiskLevel)
	}
	if result.Suspicious {
		t.Error("benign scenario flagged suspicious")
	}
}

func TestAnalyzeCriticalComboBooster(t *testing.T) {
	a := newTestAnalyzer(70)
	tx := &domain.Transaction{
		ID:                 "tx-combo",
		TenantID:           "tenant-a",
		Amount:             15000,
		Currency:           "EUR",
		ReceiverName:       "Jean Dupont",
		CountryOrigin:      "FRA",
		CountryDestination: "NGA",
		Timestamp:          time.Date(2025, 3, 5, 3, 0, 0, 0, time.UTC),
	}

	result := a.Analyze(context.Background(), tx, knownBeneficiary)
	if !domain.HasFactor(result.Factors, domain.FactorCriticalCombo) {
		t.Errorf("maximum alert booster did not fire, factors: %v", result.Factors)
	}
	if domain.HasFactor(result.Factors, domain.FactorNewIntlTrans) {
		t.Error("new beneficiary booster fired for a known beneficiary")
	}
}

func TestAnalyzeNewBeneficiaryBooster(t *testing.T) {
	a := newTestAnalyzer(70)
	tx := &domain.Transaction{
		ID:                 "tx-newintl",
		TenantID:           "tenant-a",
		Amount:             6000,
		Currency:           "EUR",
		ReceiverName:       "Jean Dupont",
		CountryOrigin:      "FRA",
		CountryDestination: "USA",
		Timestamp:          time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC),
	}

	result := a.Analyze(context.Background(), tx, newBeneficiary)
	if !domain.HasFactor(result.Factors, domain.FactorNewIntlTrans) {
		t.Errorf("new international transfer booster did not fire, factors: %v", result.Factors)
	}

	// Same transfer towards a trusted country must not trigger it.
	tx.CountryDestination = "DEU"
	result = a.Analyze(context.Background(), tx, newBeneficiary)
	if domain.HasFactor(result.Factors, domain.FactorNewIntlTrans) {
		t.Error("booster fired for a trusted destination")
	}
}

func TestAnalyzeLaunderingBooster(t *testing.T) {
	a := newTestAnalyzer(70)
	tx := &domain.Transaction{
		ID:                 "tx-structuring",
		TenantID:           "tenant-a",
		Amount:             9500,
		Currency:           "EUR",
		ReceiverName:       "Jean Dupont",
		CountryOrigin:      "FRA",
		CountryDestination: "SOM",
		Timestamp:          time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC),
	}

	result := a.Analyze(context.Background(), tx, knownBeneficiary)
	if !domain.HasFactor(result.Factors, domain.FactorLaundering) {
		t.Errorf("laundering booster did not fire, factors: %v", result.Factors)
	}
}

func TestAnalyzeScoreBounds(t *testing.T) {
	a := newTestAnalyzer(70)
	txs := []*domain.Transaction{
		{Amount: 0, Timestamp: time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC)},
		{Amount: 1e9, ReceiverName: "Offshore Crypto Trust", CountryDestination: "PRK",
			Timestamp: time.Date(2025, 3, 8, 2, 0, 0, 0, time.UTC)},
	}
	for _, tx := range txs {
		result := a.Analyze(context.Background(), tx, newBeneficiary)
		if result.Score < 0 || result.Score > 100 {
			t.Errorf("score %d outside [0,100]", result.Score)
		}
		if result.Suspicious != (result.Score >= 70) {
			t.Errorf("suspicious flag inconsistent with threshold: score=%d suspicious=%v",
				result.Score, result.Suspicious)
		}
	}
}

func TestAnalyzeIdempotent(t *testing.T) {
	a := newTestAnalyzer(70)
	tx := &domain.Transaction{
		ID:                 "tx-repeat",
		TenantID:           "tenant-a",
		Amount:             21000,
		Currency:           "EUR",
		ReceiverName:       "Global Holdings Ltd",
		CountryOrigin:      "FRA",
		CountryDestination: "TUR",
		Timestamp:          time.Date(2025, 3, 7, 23, 30, 0, 0, time.UTC),
	}

	first := a.Analyze(context.Background(), tx, knownBeneficiary)
	second := a.Analyze(context.Background(), tx, knownBeneficiary)

	if first.Score != second.Score {
		t.Errorf("scores differ across identical analyses: %d vs %d", first.Score, second.Score)
	}
	if !reflect.DeepEqual(first.Factors, second.Factors) {
		t.Errorf("factor lists differ:\n%v\n%v", first.Factors, second.Factors)
	}
	if !reflect.DeepEqual(first.Components, second.Components) {
		t.Errorf("components differ:\n%v\n%v", first.Components, second.Components)
	}
}

func TestAnalyzeThresholdConfigurable(t *testing.T) {
	strict := newTestAnalyzer(10)
	tx := &domain.Transaction{
		Amount:    50,
		Timestamp: time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC),
	}
	result := strict.Analyze(context.Background(), tx, knownBeneficiary)
	// Neutral ML component alone contributes 17.5 weighted points.
	if !result.Suspicious {
		t.Errorf("score %d with threshold 10 not flagged suspicious", result.Score)
	}
}

func TestAnalyzeSuspiciousAppendsGlobalScoreFactor(t *testing.T) {
	a := newTestAnalyzer(70)
	tx := &domain.Transaction{
		Amount:             45000,
		ReceiverName:       "Offshore Trust",
		CountryDestination: "PRK",
		Timestamp:          time.Date(2025, 3, 5, 3, 0, 0, 0, time.UTC),
	}
	result := a.Analyze(context.Background(), tx, newBeneficiary)
	if !result.Suspicious {
		t.Fatalf("expected suspicious result, score=%d", result.Score)
	}
	if !domain.HasFactor(result.Factors, domain.FactorGlobalScore) {
		t.Errorf("missing global score factor in %v", result.Factors)
	}
}

func TestModelStatusWithoutModel(t *testing.T) {
	a := newTestAnalyzer(70)
	status := a.Status()
	if status.ModelLoaded || status.ScalerLoaded {
		t.Errorf("status reports loaded artifacts without a store: %+v", status)
	}
	if status.Threshold != 70 {
		t.Errorf("threshold = %d, want 70", status.Threshold)
	}
}
