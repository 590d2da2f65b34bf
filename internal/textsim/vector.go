package textsim

import "math"

// Dot returns the inner product of a and b. Vectors of different length
// score 0.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// InnerProductDistance is 1 - <a,b>. For unit vectors it equals the cosine
// distance, so similarity is recovered as 1 - distance.
func InnerProductDistance(a, b []float32) float64 {
	return 1 - Dot(a, b)
}

// Cosine returns the cosine similarity of a and b, or 0 when either vector
// has no magnitude.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var magA, magB float64
	for i := range a {
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return Dot(a, b) / (math.Sqrt(magA) * math.Sqrt(magB))
}

// Normalize scales vec to unit length. The zero vector is returned as is.
func Normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
