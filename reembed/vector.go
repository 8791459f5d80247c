package reembed

import "math"

// NormalizeVector scales v to unit length and returns the result as a new
// slice. The vector stores rank by dot product, which equals cosine
// similarity only for unit vectors. A zero vector normalizes to zeros.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	scale := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * scale)
	}
	return out
}
