package problem

import "math"

// capTolerance is the slack allowed above the weight cap.
const capTolerance = 1e-9

// sumTolerance is the slack allowed on the weight total.
const sumTolerance = 1e-6

// projectToCappedSimplex maps w onto the feasible set in place: inactive entries are
// zeroed, negatives clipped, the rest normalized to sum to one, then any weight above
// maxWeight is capped and the excess redistributed across uncapped active assets in
// proportion to their weights. Callers guarantee maxWeight*len(active) >= 1.
func projectToCappedSimplex(w []float64, active []bool, maxWeight float64) []float64 {
	activeCount := 0
	sum := 0.0
	for i := range w {
		if !active[i] || math.IsNaN(w[i]) || w[i] < 0 {
			w[i] = 0
		}
		if active[i] {
			activeCount++
		}
		sum += w[i]
	}
	if activeCount == 0 {
		return w
	}

	if sum <= 0 || math.IsInf(sum, 0) {
		for i := range w {
			if active[i] {
				w[i] = 1 / float64(activeCount)
			} else {
				w[i] = 0
			}
		}
	} else {
		for i := range w {
			w[i] /= sum
		}
	}

	if maxWeight >= 1 {
		return w
	}

	capped := make([]bool, len(w))
	for iter := 0; iter <= len(w); iter++ {
		excess := 0.0
		for i := range w {
			if w[i] > maxWeight {
				excess += w[i] - maxWeight
				w[i] = maxWeight
				capped[i] = true
			}
		}
		if excess < 1e-15 {
			break
		}

		free, freeCount := 0.0, 0
		for i := range w {
			if active[i] && !capped[i] {
				free += w[i]
				freeCount++
			}
		}
		if freeCount == 0 {
			break
		}
		for i := range w {
			if !active[i] || capped[i] {
				continue
			}
			if free > 0 {
				w[i] += excess * w[i] / free
			} else {
				w[i] += excess / float64(freeCount)
			}
		}
	}
	return w
}
