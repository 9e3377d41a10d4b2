// Package sampler draws from differentiable log densities with adaptive
// Hamiltonian Monte Carlo.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
)

// ErrNotConverged is returned when the chains disagree (split R-hat above
// Config.MaxRhat). The Result is still returned alongside it.
var ErrNotConverged = errors.New("sampler: chains did not converge")

// Target is an unnormalised log density over R^Dim.
type Target interface {
	Dim() int
	// LogDensityGrad returns log p(theta) and writes its gradient into grad.
	// It must be safe for concurrent use.
	LogDensityGrad(theta, grad []float64) float64
}

// Initializer is implemented by targets that pick their own starting points.
type Initializer interface {
	InitialPoint(rng *rand.Rand) []float64
}

// Config holds HMC settings.
type Config struct {
	Chains       int
	Warmup       int
	Draws        int
	Steps        int
	TargetAccept float64
	MaxRhat      float64
	Seed         uint64
}

// DefaultConfig returns the settings used in production.
func DefaultConfig() Config {
	return Config{
		Chains:       4,
		Warmup:       500,
		Draws:        500,
		Steps:        24,
		TargetAccept: 0.8,
		MaxRhat:      1.1,
		Seed:         20240101,
	}
}

// Diagnostics summarise a run.
type Diagnostics struct {
	MaxRhat     float64   `json:"maxRhat"`
	Divergences int       `json:"divergences"`
	MeanAccept  float64   `json:"meanAccept"`
	StepSizes   []float64 `json:"stepSizes"`
}

// Result holds retained draws, chain-major: chain c owns
// Draws[c*PerChain : (c+1)*PerChain].
type Result struct {
	Draws       [][]float64
	Chains      int
	PerChain    int
	Diagnostics Diagnostics
}

// HMC is a multi-chain static-trajectory HMC sampler.
type HMC struct {
	cfg Config
}

// New returns a sampler with cfg, filling zero fields from DefaultConfig.
func New(cfg Config) *HMC {
	def := DefaultConfig()
	if cfg.Chains <= 0 {
		cfg.Chains = def.Chains
	}
	if cfg.Warmup < 0 {
		cfg.Warmup = 0
	}
	if cfg.Draws <= 0 {
		cfg.Draws = def.Draws
	}
	if cfg.Steps <= 0 {
		cfg.Steps = def.Steps
	}
	if cfg.TargetAccept <= 0 || cfg.TargetAccept >= 1 {
		cfg.TargetAccept = def.TargetAccept
	}
	if cfg.MaxRhat <= 1 {
		cfg.MaxRhat = def.MaxRhat
	}
	return &HMC{cfg: cfg}
}

// Config returns the effective settings.
func (h *HMC) Config() Config { return h.cfg }

type chainOut struct {
	draws       [][]float64
	divergences int
	acceptSum   float64
	stepSize    float64
}

// Sample runs the configured chains concurrently against t.
func (h *HMC) Sample(ctx context.Context, t Target) (*Result, error) {
	if t.Dim() <= 0 {
		return nil, fmt.Errorf("sampler: target dimension %d", t.Dim())
	}
	outs := make([]chainOut, h.cfg.Chains)
	g, gctx := errgroup.WithContext(ctx)
	for c := 0; c < h.cfg.Chains; c++ {
		g.Go(func() error {
			out, err := h.runChain(gctx, t, c)
			if err != nil {
				return fmt.Errorf("chain %d: %w", c, err)
			}
			outs[c] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Chains: h.cfg.Chains, PerChain: h.cfg.Draws}
	var accept float64
	for _, o := range outs {
		res.Draws = append(res.Draws, o.draws...)
		res.Diagnostics.Divergences += o.divergences
		res.Diagnostics.StepSizes = append(res.Diagnostics.StepSizes, o.stepSize)
		accept += o.acceptSum
	}
	res.Diagnostics.MeanAccept = accept / float64(h.cfg.Chains*h.cfg.Draws)
	res.Diagnostics.MaxRhat = MaxSplitRhat(res.Draws, res.Chains)
	if res.Diagnostics.MaxRhat > h.cfg.MaxRhat {
		return res, fmt.Errorf("%w: max R-hat %.3f > %.3f", ErrNotConverged, res.Diagnostics.MaxRhat, h.cfg.MaxRhat)
	}
	return res, nil
}

// chain holds the mutable state of one Markov chain.
type chain struct {
	t       Target
	rng     *rand.Rand
	dim     int
	q, grad []float64
	lp      float64
	invMass []float64

	// scratch
	q1, g1, p []float64
}

func (h *HMC) runChain(ctx context.Context, t Target, idx int) (chainOut, error) {
	dim := t.Dim()
	ch := &chain{
		t:       t,
		rng:     rand.New(rand.NewPCG(h.cfg.Seed, uint64(idx)+1)),
		dim:     dim,
		grad:    make([]float64, dim),
		invMass: make([]float64, dim),
		q1:      make([]float64, dim),
		g1:      make([]float64, dim),
		p:       make([]float64, dim),
	}
	for i := range ch.invMass {
		ch.invMass[i] = 1
	}
	if err := ch.init(); err != nil {
		return chainOut{}, err
	}

	eps := ch.findStepSize(1)
	da := newDualAvg(eps, h.cfg.TargetAccept)
	lo, hi := adaptWindow(h.cfg.Warmup)
	var window [][]float64

	out := chainOut{draws: make([][]float64, 0, h.cfg.Draws)}
	total := h.cfg.Warmup + h.cfg.Draws
	for i := 0; i < total; i++ {
		if i%16 == 0 {
			if err := ctx.Err(); err != nil {
				return chainOut{}, err
			}
		}
		warm := i < h.cfg.Warmup
		step := eps
		if warm {
			step = da.stepSize()
		}
		// Jitter the step size so a fixed trajectory length cannot lock onto
		// a periodic orbit.
		step *= 0.9 + 0.2*ch.rng.Float64()

		accept, divergent := ch.transition(step, h.cfg.Steps)
		if warm {
			da.update(accept)
			if i >= lo && i < hi {
				window = append(window, append([]float64(nil), ch.q...))
			}
			if i == hi-1 && len(window) > 1 {
				ch.setMass(window)
				window = nil
				da = newDualAvg(ch.findStepSize(da.stepSize()), h.cfg.TargetAccept)
			}
			if i == h.cfg.Warmup-1 {
				eps = da.final()
			}
			continue
		}
		if divergent {
			out.divergences++
		}
		out.acceptSum += accept
		out.draws = append(out.draws, append([]float64(nil), ch.q...))
	}
	out.stepSize = eps
	return out, nil
}

// adaptWindow returns the warmup iterations [lo, hi) used to estimate the
// mass matrix: a 15% initial buffer and a 10% terminal buffer.
func adaptWindow(warmup int) (lo, hi int) {
	if warmup < 20 {
		return 0, 0
	}
	return warmup * 15 / 100, warmup - warmup/10
}

func (ch *chain) init() error {
	for attempt := 0; attempt < 100; attempt++ {
		if in, ok := ch.t.(Initializer); ok {
			ch.q = in.InitialPoint(ch.rng)
			if attempt > 0 {
				for i := range ch.q {
					ch.q[i] += ch.rng.Float64() - 0.5
				}
			}
		} else {
			ch.q = make([]float64, ch.dim)
			for i := range ch.q {
				ch.q[i] = 4*ch.rng.Float64() - 2
			}
		}
		if len(ch.q) != ch.dim {
			return fmt.Errorf("initial point has %d values; want %d", len(ch.q), ch.dim)
		}
		ch.lp = ch.t.LogDensityGrad(ch.q, ch.grad)
		if finite(ch.lp) && allFinite(ch.grad) {
			return nil
		}
	}
	return errors.New("no finite initial point after 100 attempts")
}

// transition performs one HMC proposal and returns its acceptance
// probability and whether the trajectory diverged.
func (ch *chain) transition(eps float64, steps int) (float64, bool) {
	kinetic := 0.0
	for i := range ch.p {
		ch.p[i] = ch.rng.NormFloat64() / math.Sqrt(ch.invMass[i])
		kinetic += 0.5 * ch.invMass[i] * ch.p[i] * ch.p[i]
	}
	h0 := -ch.lp + kinetic

	copy(ch.q1, ch.q)
	copy(ch.g1, ch.grad)
	lp1 := ch.leapfrog(ch.q1, ch.p, ch.g1, eps, steps)

	kinetic = 0
	for i := range ch.p {
		kinetic += 0.5 * ch.invMass[i] * ch.p[i] * ch.p[i]
	}
	dH := -lp1 + kinetic - h0
	if math.IsNaN(dH) || dH > 1000 {
		return 0, true
	}
	accept := math.Min(1, math.Exp(-dH))
	if ch.rng.Float64() < accept {
		copy(ch.q, ch.q1)
		copy(ch.grad, ch.g1)
		ch.lp = lp1
	}
	return accept, false
}

func (ch *chain) leapfrog(q, p, grad []float64, eps float64, steps int) float64 {
	lp := math.NaN()
	for s := 0; s < steps; s++ {
		for i := range p {
			p[i] += 0.5 * eps * grad[i]
		}
		for i := range q {
			q[i] += eps * ch.invMass[i] * p[i]
		}
		lp = ch.t.LogDensityGrad(q, grad)
		if !finite(lp) {
			return math.Inf(-1)
		}
		for i := range p {
			p[i] += 0.5 * eps * grad[i]
		}
	}
	return lp
}

// findStepSize doubles or halves eps until a single leapfrog step's
// acceptance probability crosses one half.
func (ch *chain) findStepSize(eps float64) float64 {
	accept := func(e float64) float64 {
		kinetic := 0.0
		for i := range ch.p {
			ch.p[i] = ch.rng.NormFloat64() / math.Sqrt(ch.invMass[i])
			kinetic += 0.5 * ch.invMass[i] * ch.p[i] * ch.p[i]
		}
		h0 := -ch.lp + kinetic
		copy(ch.q1, ch.q)
		copy(ch.g1, ch.grad)
		lp1 := ch.leapfrog(ch.q1, ch.p, ch.g1, e, 1)
		kinetic = 0
		for i := range ch.p {
			kinetic += 0.5 * ch.invMass[i] * ch.p[i] * ch.p[i]
		}
		a := math.Exp(h0 - (-lp1 + kinetic))
		if math.IsNaN(a) {
			return 0
		}
		return a
	}
	a := accept(eps)
	dir := 1.0
	if a < 0.5 {
		dir = -1
	}
	for i := 0; i < 50; i++ {
		if dir > 0 && a <= 0.5 || dir < 0 && a >= 0.5 {
			break
		}
		eps *= math.Pow(2, dir)
		a = accept(eps)
	}
	return eps
}

// setMass sets the diagonal inverse mass to the regularised sample variance
// of the window.
func (ch *chain) setMass(window [][]float64) {
	n := float64(len(window))
	for i := 0; i < ch.dim; i++ {
		var mean, m2 float64
		for k, q := range window {
			d := q[i] - mean
			mean += d / float64(k+1)
			m2 += d * (q[i] - mean)
		}
		v := m2 / (n - 1)
		ch.invMass[i] = (n/(n+5))*v + 1e-3*(5/(n+5))
	}
}

// dualAvg is Nesterov dual averaging of log step size.
type dualAvg struct {
	mu, hbar  float64
	logEps    float64
	logEpsBar float64
	t         float64
	target    float64
}

func newDualAvg(eps, target float64) *dualAvg {
	return &dualAvg{mu: math.Log(10 * eps), logEps: math.Log(eps), target: target}
}

const (
	daGamma = 0.05
	daT0    = 10
	daKappa = 0.75
)

func (d *dualAvg) update(accept float64) {
	d.t++
	eta := 1 / (d.t + daT0)
	d.hbar = (1-eta)*d.hbar + eta*(d.target-accept)
	d.logEps = d.mu - math.Sqrt(d.t)/daGamma*d.hbar
	w := math.Pow(d.t, -daKappa)
	d.logEpsBar = w*d.logEps + (1-w)*d.logEpsBar
}

func (d *dualAvg) stepSize() float64 { return math.Exp(d.logEps) }

func (d *dualAvg) final() float64 {
	if d.t == 0 {
		return math.Exp(d.logEps)
	}
	return math.Exp(d.logEpsBar)
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

func allFinite(xs []float64) bool {
	for _, x := range xs {
		if !finite(x) {
			return false
		}
	}
	return true
}
