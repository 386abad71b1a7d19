package signal

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean of the values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation of the values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// Median returns the median of the values, or 0 for an empty slice.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// Percentile returns the p-th percentile (0 <= p <= 100) using linear
// interpolation between closest ranks.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ZScores returns the z-score of every value against the sample mean and
// standard deviation. A zero standard deviation yields all-zero scores.
func ZScores(values []float64) []float64 {
	scores := make([]float64, len(values))
	sd := StdDev(values)
	if sd == 0 {
		return scores
	}
	mean := Mean(values)
	for i, v := range values {
		scores[i] = (v - mean) / sd
	}
	return scores
}

// ChiSquare computes the chi-square goodness-of-fit statistic between
// observed counts and expected counts. Expected cells with zero count are
// skipped to avoid division by zero; callers should ensure expectations are
// positive for all meaningful cells.
func ChiSquare(observed, expected []float64) float64 {
	n := len(observed)
	if len(expected) < n {
		n = len(expected)
	}
	stat := 0.0
	for i := 0; i < n; i++ {
		if expected[i] <= 0 {
			continue
		}
		d := observed[i] - expected[i]
		stat += d * d / expected[i]
	}
	return stat
}

// CramersV converts a chi-square goodness-of-fit statistic into Cramér's V,
// an effect size in [0, 1] for a perfect-fit-to-total-divergence scale that
// does not grow with sample size. n is the number of observations, df the
// degrees of freedom of the test.
func CramersV(chiSquare float64, n, df int) float64 {
	if n <= 0 || df <= 0 {
		return 0
	}
	return math.Sqrt(chiSquare / (float64(n) * float64(df)))
}

// BenfordExpected returns the expected first-significant-digit proportions
// for digits 1..9 under the logarithmic (Benford) distribution.
func BenfordExpected() [9]float64 {
	var expected [9]float64
	for d := 1; d <= 9; d++ {
		expected[d-1] = math.Log10(1 + 1/float64(d))
	}
	return expected
}

// FirstSignificantDigit returns the leading non-zero digit of v, or 0 when v
// has none (v == 0, NaN, Inf).
func FirstSignificantDigit(v float64) int {
	v = math.Abs(v)
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	for v >= 10 {
		v /= 10
	}
	for v < 1 {
		v *= 10
	}
	return int(v)
}
