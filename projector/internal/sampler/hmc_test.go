package sampler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"gonum.org/v1/gonum/stat"
)

// gaussian is an independent normal target.
type gaussian struct {
	mu, sd []float64
}

func (g gaussian) Dim() int { return len(g.mu) }

func (g gaussian) LogDensityGrad(theta, grad []float64) float64 {
	lp := 0.0
	for i, x := range theta {
		z := (x - g.mu[i]) / g.sd[i]
		lp -= 0.5 * z * z
		grad[i] = -z / g.sd[i]
	}
	return lp
}

func column(draws [][]float64, i int) []float64 {
	out := make([]float64, len(draws))
	for k, d := range draws {
		out[k] = d[i]
	}
	return out
}

func TestHMC_Gaussian(t *testing.T) {
	target := gaussian{mu: []float64{0, 3, -10}, sd: []float64{1, 0.2, 5}}
	h := New(Config{Chains: 2, Warmup: 400, Draws: 600, Steps: 16, TargetAccept: 0.8, Seed: 7})
	res, err := h.Sample(context.Background(), target)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(res.Draws) != 1200 || res.PerChain != 600 || res.Chains != 2 {
		t.Fatalf("draws = %d, per chain %d, chains %d", len(res.Draws), res.PerChain, res.Chains)
	}
	for i := range target.mu {
		m, v := stat.MeanVariance(column(res.Draws, i), nil)
		if math.Abs(m-target.mu[i]) > 0.2*target.sd[i] {
			t.Errorf("mean[%d] = %.3f; want %.3f", i, m, target.mu[i])
		}
		want := target.sd[i] * target.sd[i]
		if v < 0.7*want || v > 1.3*want {
			t.Errorf("var[%d] = %.3f; want about %.3f", i, v, want)
		}
	}
	if res.Diagnostics.MaxRhat > 1.05 {
		t.Errorf("MaxRhat = %.3f", res.Diagnostics.MaxRhat)
	}
	if res.Diagnostics.Divergences != 0 {
		t.Errorf("Divergences = %d", res.Diagnostics.Divergences)
	}
	if len(res.Diagnostics.StepSizes) != 2 {
		t.Errorf("StepSizes = %v", res.Diagnostics.StepSizes)
	}
}

func TestHMC_Deterministic(t *testing.T) {
	target := gaussian{mu: []float64{1, 2}, sd: []float64{1, 1}}
	cfg := Config{Chains: 2, Warmup: 50, Draws: 20, Steps: 8, Seed: 99}
	a, errA := New(cfg).Sample(context.Background(), target)
	b, errB := New(cfg).Sample(context.Background(), target)
	if a == nil || b == nil {
		t.Fatalf("Sample: %v, %v", errA, errB)
	}
	for k := range a.Draws {
		for i := range a.Draws[k] {
			if a.Draws[k][i] != b.Draws[k][i] {
				t.Fatalf("draw %d differs between runs with the same seed", k)
			}
		}
	}
}

func TestHMC_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{Chains: 1, Warmup: 10, Draws: 10}).Sample(ctx, gaussian{mu: []float64{0}, sd: []float64{1}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v; want context.Canceled", err)
	}
}

type badInit struct{ gaussian }

func (badInit) LogDensityGrad(theta, grad []float64) float64 { return math.NaN() }

func TestHMC_NoFiniteStart(t *testing.T) {
	_, err := New(Config{Chains: 1, Warmup: 10, Draws: 10}).Sample(context.Background(), badInit{gaussian{mu: []float64{0}, sd: []float64{1}}})
	if err == nil {
		t.Error("expected error when the density is never finite")
	}
}

func TestMaxSplitRhat(t *testing.T) {
	mk := func(offsets []float64) [][]float64 {
		var draws [][]float64
		for _, off := range offsets {
			for k := 0; k < 100; k++ {
				draws = append(draws, []float64{off + math.Sin(float64(k)*1.7)})
			}
		}
		return draws
	}
	if r := MaxSplitRhat(mk([]float64{0, 0}), 2); r > 1.05 {
		t.Errorf("agreeing chains R-hat = %.3f; want about 1", r)
	}
	if r := MaxSplitRhat(mk([]float64{0, 5}), 2); r < 1.5 {
		t.Errorf("separated chains R-hat = %.3f; want large", r)
	}
	if r := MaxSplitRhat(mk([]float64{0}), 3); r != 0 {
		t.Errorf("mismatched chain count R-hat = %v; want 0", r)
	}
}

func TestSample_TooFewDrawsForRhat(t *testing.T) {
	res, err := New(Config{Chains: 2, Warmup: 30, Draws: 3, Seed: 5}).Sample(context.Background(), gaussian{mu: []float64{1}, sd: []float64{1}})
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if res.Diagnostics.MaxRhat != 0 {
		t.Errorf("MaxRhat = %v; want 0 with 3 draws per chain", res.Diagnostics.MaxRhat)
	}
	if _, err := json.Marshal(res.Diagnostics); err != nil {
		t.Errorf("diagnostics must encode: %v", err)
	}
	if r := MaxSplitRhat(make([][]float64, 6), 2); r != 0 {
		t.Errorf("R-hat with 3 draws per chain = %v; want 0", r)
	}
}

func TestSample_NotConverged(t *testing.T) {
	h := New(Config{Chains: 2, Warmup: 0, Draws: 40, Steps: 1, MaxRhat: 1.01, Seed: 3})
	res, err := h.Sample(context.Background(), &farApart{})
	if !errors.Is(err, ErrNotConverged) {
		t.Fatalf("err = %v; want ErrNotConverged", err)
	}
	if res == nil || res.Diagnostics.MaxRhat <= 1.01 {
		t.Errorf("result should be returned with its R-hat: %+v", res)
	}
}

// farApart is bimodal with modes too far apart for any trajectory to cross.
// Successive chains start in alternating modes.
type farApart struct{ starts atomic.Int64 }

func (*farApart) Dim() int { return 1 }

func (f *farApart) InitialPoint(*rand.Rand) []float64 {
	if f.starts.Add(1)%2 == 0 {
		return []float64{50}
	}
	return []float64{-50}
}

func (*farApart) LogDensityGrad(theta, grad []float64) float64 {
	x := theta[0]
	a := -0.5 * (x - 50) * (x - 50)
	b := -0.5 * (x + 50) * (x + 50)
	m := math.Max(a, b)
	lp := m + math.Log(math.Exp(a-m)+math.Exp(b-m))
	wa := math.Exp(a - lp)
	wb := math.Exp(b - lp)
	grad[0] = wa*(50-x) + wb*(-50-x)
	return lp
}
