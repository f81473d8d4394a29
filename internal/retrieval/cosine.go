// Package retrieval ranks stored FAQs by cosine similarity to a query.
package retrieval

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when two non-empty vectors differ in length.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Cosine returns the cosine similarity of a and b in [-1, 1].
// It returns 0 when either vector is empty or has zero norm.
func Cosine(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, nil
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / math.Sqrt(normA*normB)
	// Parallel vectors score exactly ±1 despite rounding.
	switch {
	case sim > 1-unitEpsilon:
		return 1, nil
	case sim < -1+unitEpsilon:
		return -1, nil
	}
	return sim, nil
}

const unitEpsilon = 1e-9
