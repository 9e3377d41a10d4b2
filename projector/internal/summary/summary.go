// Package summary reduces posterior-predictive samples to reported scalars
// and compares two players' distributions.
package summary

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrEmpty = errors.New("summary: no samples")
	ErrLevel = errors.New("summary: level must lie in (0, 1)")
)

// Summary describes one sample sequence. Lower and Upper bound the
// highest-density interval at Level.
type Summary struct {
	N        int     `json:"n"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	Level    float64 `json:"level"`
	Lower    float64 `json:"hdiLow"`
	Upper    float64 `json:"hdiHigh"`
	P5       float64 `json:"p5"`
	P95      float64 `json:"p95"`
}

// Summarize returns the mean, unbiased sample variance, the HDI at level
// and the 5th and 95th empirical percentiles.
func Summarize(samples []float64, level float64) (Summary, error) {
	lo, hi, err := HDI(samples, level)
	if err != nil {
		return Summary{}, err
	}
	mean, variance := stat.MeanVariance(samples, nil)
	if len(samples) == 1 {
		variance = 0
	}
	p5, err := LowerBound(samples, 5)
	if err != nil {
		return Summary{}, err
	}
	p95, err := UpperBound(samples, 95)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		N:        len(samples),
		Mean:     mean,
		Variance: variance,
		Level:    level,
		Lower:    lo,
		Upper:    hi,
		P5:       p5,
		P95:      p95,
	}, nil
}

// HDI returns the shortest interval spanning floor(level*n)+1 of the sorted
// samples.
func HDI(samples []float64, level float64) (lo, hi float64, err error) {
	if len(samples) == 0 {
		return 0, 0, ErrEmpty
	}
	if !(level > 0 && level < 1) {
		return 0, 0, fmt.Errorf("%w: got %v", ErrLevel, level)
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	n := len(sorted)
	inc := int(math.Floor(level * float64(n)))
	if inc >= n {
		inc = n - 1
	}
	best := 0
	width := math.Inf(1)
	for i := 0; i+inc < n; i++ {
		if w := sorted[i+inc] - sorted[i]; w < width {
			width, best = w, i
		}
	}
	return sorted[best], sorted[best+inc], nil
}

// LowerBound returns the pct-th empirical percentile, pct in (0, 100].
func LowerBound(samples []float64, pct float64) (float64, error) {
	return percentile(samples, pct)
}

// UpperBound is LowerBound read from the top of the distribution; the
// 95th upper bound is the 95th percentile.
func UpperBound(samples []float64, pct float64) (float64, error) {
	return percentile(samples, pct)
}

func percentile(samples []float64, pct float64) (float64, error) {
	if len(samples) == 0 {
		return 0, ErrEmpty
	}
	if !(pct > 0 && pct <= 100) {
		return 0, fmt.Errorf("summary: percentile %v outside (0, 100]", pct)
	}
	v, err := stats.Percentile(samples, pct)
	if err == nil {
		return v, nil
	}
	// Too few samples to interpolate at this percentile.
	return stats.PercentileNearestRank(samples, pct)
}

// Compare estimates P(A > B): the fraction of all (a, b) pairs with a
// strictly greater than b. Ties count as not greater.
func Compare(a, b []float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmpty
	}
	sorted := append([]float64(nil), b...)
	sort.Float64s(sorted)
	var greater float64
	for _, x := range a {
		// Index of the first b >= x is the count of b strictly below x.
		greater += float64(sort.SearchFloat64s(sorted, x))
	}
	return greater / (float64(len(a)) * float64(len(b))), nil
}
