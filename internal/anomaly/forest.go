package anomaly

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/opensource-finance/kestrel/internal/features"
)

// Isolation forest defaults. The seed is fixed so retraining on the
// same data produces the same model.
const (
	DefaultNumTrees      = 100
	DefaultSubsampleSize = 256
	DefaultContamination = 0.1
	DefaultSeed          = 42
)

const eulerGamma = 0.5772156649015329

// treeNode is one node of an isolation tree. Leaves carry the sample
// count that reached them; internal nodes carry a split.
type treeNode struct {
	Feature int       `json:"f,omitempty"`
	Split   float64   `json:"s,omitempty"`
	Left    *treeNode `json:"l,omitempty"`
	Right   *treeNode `json:"r,omitempty"`
	Size    int       `json:"n,omitempty"`
}

// IsolationForest isolates anomalies by random axis-aligned splits.
// Points that isolate in few splits are anomalous. All fields are
// exported so a fitted forest round-trips through JSON.
type IsolationForest struct {
	NumTrees      int     `json:"numTrees"`
	SubsampleSize int     `json:"subsampleSize"`
	Contamination float64 `json:"contamination"`
	Seed          int64   `json:"seed"`

	Psi    int         `json:"psi"`
	Offset float64     `json:"offset"`
	Trees  []*treeNode `json:"trees"`
}

// NewIsolationForest returns an unfitted forest with default settings.
func NewIsolationForest() *IsolationForest {
	return &IsolationForest{
		NumTrees:      DefaultNumTrees,
		SubsampleSize: DefaultSubsampleSize,
		Contamination: DefaultContamination,
		Seed:          DefaultSeed,
	}
}

// Fit builds the ensemble on the given vectors and calibrates the
// decision threshold so roughly Contamination of the training set
// falls below zero.
func (f *IsolationForest) Fit(data []features.Vector) {
	rng := rand.New(rand.NewSource(f.Seed))

	psi := f.SubsampleSize
	if psi > len(data) {
		psi = len(data)
	}
	f.Psi = psi

	heightLimit := int(math.Ceil(math.Log2(float64(psi))))
	if heightLimit < 1 {
		heightLimit = 1
	}

	f.Trees = make([]*treeNode, 0, f.NumTrees)
	for i := 0; i < f.NumTrees; i++ {
		sample := subsample(rng, data, psi)
		f.Trees = append(f.Trees, buildTree(rng, sample, 0, heightLimit))
	}

	// Threshold calibration: the offset is the contamination quantile
	// of training scores, mirroring how the model was tuned upstream.
	scores := make([]float64, len(data))
	for i, v := range data {
		scores[i] = f.scoreSample(v)
	}
	sort.Float64s(scores)
	idx := int(f.Contamination * float64(len(scores)))
	if idx >= len(scores) {
		idx = len(scores) - 1
	}
	f.Offset = scores[idx]
}

// Fitted reports whether the forest holds a trained ensemble.
func (f *IsolationForest) Fitted() bool {
	return len(f.Trees) > 0
}

// DecisionFunction returns a calibrated score: positive for normal
// points, negative for outliers. Magnitude grows with abnormality.
func (f *IsolationForest) DecisionFunction(v features.Vector) float64 {
	return f.scoreSample(v) - f.Offset
}

// IsOutlier reports whether the point falls below the fitted threshold.
func (f *IsolationForest) IsOutlier(v features.Vector) bool {
	return f.DecisionFunction(v) < 0
}

// scoreSample is the negated anomaly score, higher meaning more normal.
func (f *IsolationForest) scoreSample(v features.Vector) float64 {
	return -f.anomalyScore(v)
}

// anomalyScore is the canonical 2^(-E[h]/c(psi)) measure in (0, 1].
func (f *IsolationForest) anomalyScore(v features.Vector) float64 {
	if !f.Fitted() {
		return 0.5
	}
	var total float64
	for _, t := range f.Trees {
		total += t.pathLength(v, 0)
	}
	mean := total / float64(len(f.Trees))
	return math.Pow(2, -mean/avgPathLength(float64(f.Psi)))
}

func subsample(rng *rand.Rand, data []features.Vector, psi int) []features.Vector {
	perm := rng.Perm(len(data))
	out := make([]features.Vector, psi)
	for i := 0; i < psi; i++ {
		out[i] = data[perm[i]]
	}
	return out
}

func buildTree(rng *rand.Rand, data []features.Vector, depth, limit int) *treeNode {
	if depth >= limit || len(data) <= 1 {
		return &treeNode{Size: len(data)}
	}

	// Only features with spread in this partition are splittable.
	dims := len(data[0])
	splittable := make([]int, 0, dims)
	mins := make([]float64, dims)
	maxs := make([]float64, dims)
	for d := 0; d < dims; d++ {
		mins[d], maxs[d] = data[0][d], data[0][d]
	}
	for _, v := range data[1:] {
		for d, x := range v {
			if x < mins[d] {
				mins[d] = x
			}
			if x > maxs[d] {
				maxs[d] = x
			}
		}
	}
	for d := 0; d < dims; d++ {
		if maxs[d] > mins[d] {
			splittable = append(splittable, d)
		}
	}
	if len(splittable) == 0 {
		return &treeNode{Size: len(data)}
	}

	feat := splittable[rng.Intn(len(splittable))]
	split := mins[feat] + rng.Float64()*(maxs[feat]-mins[feat])

	var left, right []features.Vector
	for _, v := range data {
		if v[feat] < split {
			left = append(left, v)
		} else {
			right = append(right, v)
		}
	}

	return &treeNode{
		Feature: feat,
		Split:   split,
		Left:    buildTree(rng, left, depth+1, limit),
		Right:   buildTree(rng, right, depth+1, limit),
		Size:    len(data),
	}
}

// Validate checks a decoded forest before it is allowed to score:
// every split must reference a feature inside a dims-wide vector.
func (f *IsolationForest) Validate(dims int) error {
	if f.Psi <= 1 {
		return fmt.Errorf("subsample size %d", f.Psi)
	}
	if len(f.Trees) == 0 {
		return errors.New("no trees")
	}
	for i, t := range f.Trees {
		if err := t.validate(dims); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

func (n *treeNode) validate(dims int) error {
	if n == nil {
		return errors.New("missing node")
	}
	if n.Left == nil && n.Right == nil {
		return nil
	}
	if n.Left == nil || n.Right == nil {
		return errors.New("split node with a single child")
	}
	if n.Feature < 0 || n.Feature >= dims {
		return fmt.Errorf("split on feature %d of %d", n.Feature, dims)
	}
	if err := n.Left.validate(dims); err != nil {
		return err
	}
	return n.Right.validate(dims)
}

func (n *treeNode) pathLength(v features.Vector, depth float64) float64 {
	if n.Left == nil && n.Right == nil {
		return depth + avgPathLength(float64(n.Size))
	}
	if v[n.Feature] < n.Split {
		return n.Left.pathLength(v, depth+1)
	}
	return n.Right.pathLength(v, depth+1)
}

// avgPathLength is c(n), the expected path length of an unsuccessful
// BST search over n points.
func avgPathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(n-1)+eulerGamma) - 2*(n-1)/n
}
