package weights

import "math"

const bisectIterations = 200

// allocate distributes mass over scores as w_i = clamp(λ·score_i, lo, hi) with Σw = mass.
// Scores must be positive and lo·n <= mass <= hi·n. Higher score never gets a lower weight.
func allocate(scores []float64, mass, lo, hi float64) []float64 {
	n := len(scores)
	out := make([]float64, n)
	if n == 0 {
		return out
	}

	minScore := math.Inf(1)
	for _, s := range scores {
		minScore = math.Min(minScore, s)
	}

	sumAt := func(lambda float64) float64 {
		var sum float64
		for _, s := range scores {
			sum += clamp(lambda*s, lo, hi)
		}
		return sum
	}

	// at λ=0 everything sits at lo, at λ=hi/minScore everything sits at hi
	left, right := 0.0, hi/minScore
	for i := 0; i < bisectIterations; i++ {
		mid := (left + right) / 2
		if sumAt(mid) < mass {
			left = mid
		} else {
			right = mid
		}
	}

	lambda := (left + right) / 2
	var sum, free float64
	for i, s := range scores {
		out[i] = clamp(lambda*s, lo, hi)
		sum += out[i]
		if out[i] > lo && out[i] < hi {
			free += out[i]
		}
	}

	// push the bisection residue onto the unclamped entries, proportionally, so order holds
	if residual := mass - sum; residual != 0 && free > 0 {
		k := 1 + residual/free
		for i := range out {
			if out[i] > lo && out[i] < hi {
				out[i] = clamp(out[i]*k, lo, hi)
			}
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
