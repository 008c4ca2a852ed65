package model

import "math"

// CosineSimilarity computes the cosine similarity between two vectors.
// Empty vectors, vectors of different lengths and zero-magnitude vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) {
		return 0
	}
	return clamp(sim, -1, 1)
}

// ForgetfulnessScore is the base relevance of a memory of the given importance
// that lies distance messages behind the end of the conversation.
//
// The decay rate is baseLambda/importance², so important memories fade
// quadratically slower. Importance 5 memories never drop below floor.
func ForgetfulnessScore(importance int, distance float64, baseLambda, floor float64) float64 {
	importance = ClampImportance(importance)
	if distance < 0 {
		distance = 0
	}
	imp := float64(importance)
	lambda := baseLambda / (imp * imp)
	score := imp * math.Exp(-lambda*distance)
	if importance == MaxImportance && score < floor {
		score = floor
	}
	return score
}

func clamp(val, minVal, maxVal float64) float64 {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}
