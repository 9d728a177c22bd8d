package anomaly

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/opensource-finance/kestrel/internal/features"
)

// ErrNoModel indicates no trained artifact exists yet.
var ErrNoModel = errors.New("no trained model artifact")

const artifactFile = "model.json"

// Bundle is the full set of artifacts produced by one training run.
// Scaler and encoders are bundled with the forest so scoring always
// uses the preprocessing the model was trained with.
type Bundle struct {
	Version     string             `json:"version"`
	TrainedAt   time.Time          `json:"trainedAt"`
	SampleCount int                `json:"sampleCount"`
	Forest      *IsolationForest   `json:"forest"`
	Scaler      *StandardScaler    `json:"scaler"`
	Encoders    *features.Encoders `json:"encoders"`
}

// ArtifactStore persists model bundles as JSON files on disk.
type ArtifactStore struct {
	dir string
}

// NewArtifactStore creates a store rooted at dir.
func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{dir: dir}
}

// Path returns the artifact file location.
func (s *ArtifactStore) Path() string {
	return filepath.Join(s.dir, artifactFile)
}

// Load reads the persisted bundle. Returns ErrNoModel when no
// artifact has been written yet.
func (s *ArtifactStore) Load() (*Bundle, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoModel
		}
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode model artifact: %w", err)
	}
	if err := validateBundle(&b); err != nil {
		return nil, fmt.Errorf("model artifact %s: %w", s.Path(), err)
	}
	return &b, nil
}

// validateBundle rejects artifacts that would fail during scoring, so
// a corrupted file degrades to neutral scoring instead of breaking
// every analysis.
func validateBundle(b *Bundle) error {
	if b.Forest == nil || b.Scaler == nil || b.Encoders == nil {
		return errors.New("incomplete bundle")
	}
	if len(b.Scaler.Mean) != features.NumFeatures || len(b.Scaler.Std) != len(b.Scaler.Mean) {
		return fmt.Errorf("scaler has %d dimensions, want %d", len(b.Scaler.Mean), features.NumFeatures)
	}
	return b.Forest.Validate(features.NumFeatures)
}

// Save writes the bundle atomically: a temp file in the same directory
// is renamed over the artifact so readers never see a partial write.
func (s *ArtifactStore) Save(b *Bundle) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode model artifact: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, artifactFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path()); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish model artifact: %w", err)
	}
	return nil
}
