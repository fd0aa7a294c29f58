package domain

import "math"

// Vector is an image embedding. Its dimensionality is fixed by the embedding
// model configuration for the whole run.
type Vector []float32

// Dim returns the number of components.
func (v Vector) Dim() int {
	return len(v)
}

// Norm returns the Euclidean magnitude, accumulated in float64.
func (v Vector) Norm() float64 {
	var sum float64
	for _, x := range v {
		f := float64(x)
		sum += f * f
	}
	return math.Sqrt(sum)
}

// IsZero reports whether the vector is empty or has zero magnitude.
// Such a vector is degenerate and never a valid embedding.
func (v Vector) IsZero() bool {
	return v.Norm() == 0
}

// IsFinite reports whether every component is a finite number.
func (v Vector) IsFinite() bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}
