package features

import (
	"log/slog"
	"sort"
)

// LabelEncoder maps categorical string values to integer codes.
// Classes are sorted so the code assignment is stable across fits.
type LabelEncoder struct {
	Classes []string       `json:"classes"`
	index   map[string]int `json:"-"`
}

// NewLabelEncoder fits an encoder on the given vocabulary.
func NewLabelEncoder(vocab []string) *LabelEncoder {
	classes := make([]string, len(vocab))
	copy(classes, vocab)
	sort.Strings(classes)
	enc := &LabelEncoder{Classes: classes}
	enc.buildIndex()
	return enc
}

func (e *LabelEncoder) buildIndex() {
	e.index = make(map[string]int, len(e.Classes))
	for i, c := range e.Classes {
		e.index[c] = i
	}
}

// Transform returns the code for a value. Values outside the fitted
// vocabulary fall back to code 0 and ok is false so the caller can log.
func (e *LabelEncoder) Transform(value string) (int, bool) {
	if e.index == nil {
		e.buildIndex()
	}
	code, ok := e.index[value]
	if !ok {
		return 0, false
	}
	return code, true
}

// Encoders bundles the categorical encoders used by the feature
// extractor. They are persisted alongside the anomaly model so scoring
// uses the exact same codes as training.
type Encoders struct {
	Channel *LabelEncoder `json:"channel"`
	Type    *LabelEncoder `json:"type"`
}

// NewEncoders fits encoders on the canonical channel and type vocabularies.
func NewEncoders() *Encoders {
	return &Encoders{
		Channel: NewLabelEncoder(channelVocab()),
		Type:    NewLabelEncoder(typeVocab()),
	}
}

// encodeChannel returns the code for a channel, logging unseen values.
func (e *Encoders) encodeChannel(logger *slog.Logger, value string) int {
	code, ok := e.Channel.Transform(value)
	if !ok {
		logger.Warn("unseen channel value, encoding as zero", "channel", value)
	}
	return code
}

// encodeType returns the code for a transaction type, logging unseen values.
func (e *Encoders) encodeType(logger *slog.Logger, value string) int {
	code, ok := e.Type.Transform(value)
	if !ok {
		logger.Warn("unseen transaction type, encoding as zero", "type", value)
	}
	return code
}
