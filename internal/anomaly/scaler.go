package anomaly

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/features"
)

// StandardScaler centers each feature on its training mean and scales
// by the training standard deviation. Constant features keep a unit
// scale so transforming them is a no-op.
type StandardScaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// Fit computes per-feature mean and standard deviation.
func (s *StandardScaler) Fit(data []features.Vector) {
	if len(data) == 0 {
		return
	}
	dims := len(data[0])
	s.Mean = make([]float64, dims)
	s.Std = make([]float64, dims)

	n := float64(len(data))
	for _, v := range data {
		for i, x := range v {
			s.Mean[i] += x
		}
	}
	for i := range s.Mean {
		s.Mean[i] /= n
	}
	for _, v := range data {
		for i, x := range v {
			d := x - s.Mean[i]
			s.Std[i] += d * d
		}
	}
	for i := range s.Std {
		s.Std[i] = math.Sqrt(s.Std[i] / n)
		if s.Std[i] == 0 {
			s.Std[i] = 1
		}
	}
}

// Transform scales a single vector. Vectors shorter than the fitted
// dimensionality are returned unchanged.
func (s *StandardScaler) Transform(v features.Vector) features.Vector {
	if len(s.Mean) == 0 || len(v) != len(s.Mean) {
		return v
	}
	out := make(features.Vector, len(v))
	for i, x := range v {
		out[i] = (x - s.Mean[i]) / s.Std[i]
	}
	return out
}

// TransformAll scales a training batch.
func (s *StandardScaler) TransformAll(data []features.Vector) []features.Vector {
	out := make([]features.Vector, len(data))
	for i, v := range data {
		out[i] = s.Transform(v)
	}
	return out
}
