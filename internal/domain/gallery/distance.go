package gallery

import (
	"fmt"
	"math"
	"strings"
)

// Metric selects the embedding distance function.
type Metric int

const (
	// Cosine distance, 1 - cosine similarity, in [0, 2].
	Cosine Metric = iota
	// Euclidean (L2) distance.
	Euclidean
)

// ParseMetric resolves "cosine" or "euclidean".
func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cosine":
		return Cosine, nil
	case "euclidean", "l2":
		return Euclidean, nil
	default:
		return Cosine, fmt.Errorf("unknown match metric: %q", name)
	}
}

func (m Metric) String() string {
	if m == Euclidean {
		return "euclidean"
	}
	return "cosine"
}

// Distance returns the distance between a and b under m. Vectors of different
// length, empty vectors and zero vectors are infinitely far apart.
func (m Metric) Distance(a, b []float32) float64 {
	if m == Euclidean {
		return EuclideanDistance(a, b)
	}
	return CosineDistance(a, b)
}

// CosineDistance computes 1 - cosine similarity, clamped to [0, 2].
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return math.Inf(1)
	}

	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// floating point drift
	similarity = math.Max(-1, math.Min(1, similarity))
	return 1 - similarity
}

// EuclideanDistance computes the L2 distance.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
