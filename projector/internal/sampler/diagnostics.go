package sampler

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// MaxSplitRhat returns the largest split R-hat over all coordinates of
// chain-major draws. Each chain is halved so that within-chain drift also
// inflates the statistic. It is 0 when the draws cannot be split into halves
// of at least two, which needs four draws per chain.
func MaxSplitRhat(draws [][]float64, chains int) float64 {
	if chains <= 0 || len(draws) == 0 || len(draws)%chains != 0 {
		return 0
	}
	per := len(draws) / chains
	half := per / 2
	if half < 2 {
		return 0
	}
	dim := len(draws[0])
	seq := make([]float64, half)
	means := make([]float64, 0, 2*chains)
	vars := make([]float64, 0, 2*chains)

	worst := 1.0
	for d := 0; d < dim; d++ {
		means, vars = means[:0], vars[:0]
		for c := 0; c < chains; c++ {
			base := c * per
			for _, start := range []int{base, base + per - half} {
				for k := 0; k < half; k++ {
					seq[k] = draws[start+k][d]
				}
				m, v := stat.MeanVariance(seq, nil)
				means = append(means, m)
				vars = append(vars, v)
			}
		}
		if r := rhat(means, vars, float64(half)); r > worst {
			worst = r
		}
	}
	return worst
}

func rhat(means, vars []float64, n float64) float64 {
	w := stat.Mean(vars, nil)
	b := n * stat.Variance(means, nil)
	if w == 0 {
		if b == 0 {
			return 1
		}
		return math.MaxFloat64
	}
	varPlus := (n-1)/n*w + b/n
	return math.Sqrt(varPlus / w)
}
