package features

import (
	"log/slog"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// NumFeatures is the length of every extracted vector.
const NumFeatures = 14

// Feature positions inside the vector. Training and scoring must agree
// on this layout, so it is fixed and the vector is never reordered.
const (
	FeatAmount = iota
	FeatAmountLog
	FeatHour
	FeatDayOfWeek
	FeatWeekend
	FeatNight
	FeatInternational
	FeatCountryRisk
	FeatHighRiskFlag
	FeatChannel
	FeatType
	FeatRoundAmount
	FeatLargeAmount
	FeatVeryLargeAmount
)

// Vector is one transaction's numeric representation.
type Vector []float64

func channelVocab() []string { return domain.TransactionChannels() }
func typeVocab() []string    { return domain.TransactionTypes() }

// Extractor turns transactions into fixed-layout feature vectors.
type Extractor struct {
	encoders *Encoders
	logger   *slog.Logger
}

// NewExtractor creates an extractor with the given fitted encoders.
func NewExtractor(encoders *Encoders, logger *slog.Logger) *Extractor {
	if encoders == nil {
		encoders = NewEncoders()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{encoders: encoders, logger: logger}
}

// Encoders returns the encoders the extractor was built with.
func (e *Extractor) Encoders() *Encoders {
	return e.encoders
}

// Extract builds the feature vector for a single transaction.
func (e *Extractor) Extract(tx *domain.Transaction) Vector {
	v := make(Vector, NumFeatures)

	hour := tx.Timestamp.Hour()
	weekday := int(tx.Timestamp.Weekday())

	v[FeatAmount] = tx.Amount
	v[FeatAmountLog] = math.Log1p(tx.Amount)
	v[FeatHour] = float64(hour)
	v[FeatDayOfWeek] = float64(weekday)
	v[FeatWeekend] = boolFeature(weekday == 0 || weekday == 6)
	v[FeatNight] = boolFeature(IsSuspiciousHour(hour))
	v[FeatInternational] = boolFeature(tx.CountryDestination != "" && tx.CountryDestination != tx.CountryOrigin)
	v[FeatCountryRisk] = float64(CountryRisk(tx.CountryDestination))
	v[FeatHighRiskFlag] = boolFeature(IsHighRisk(tx.CountryDestination))
	v[FeatChannel] = float64(e.encoders.encodeChannel(e.logger, tx.Channel))
	v[FeatType] = float64(e.encoders.encodeType(e.logger, tx.Type))
	v[FeatRoundAmount] = boolFeature(tx.Amount >= 1 && math.Mod(tx.Amount, 100) == 0)
	v[FeatLargeAmount] = boolFeature(tx.Amount > 5000)
	v[FeatVeryLargeAmount] = boolFeature(tx.Amount > 10000)

	return v
}

// ExtractAll builds vectors for a training batch.
func (e *Extractor) ExtractAll(txs []*domain.Transaction) []Vector {
	vectors := make([]Vector, 0, len(txs))
	for _, tx := range txs {
		vectors = append(vectors, e.Extract(tx))
	}
	return vectors
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
