package model

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/gamelog"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/sampler"
)

// history builds a synthetic player with games in each season, cycling
// through opponents and alternating home and road.
func history(seasons, gamesPerSeason int) *gamelog.History {
	h := &gamelog.History{Player: "Test Skater"}
	rng := rand.New(rand.NewPCG(11, 12))
	for s := 1; s <= seasons; s++ {
		h.SeasonIDs = append(h.SeasonIDs, []string{"20212022", "20222023", "20232024", "20242025"}[s-1])
		for g := 0; g < gamesPerSeason; g++ {
			h.Records = append(h.Records, gamelog.GameRecord{
				Season:   s,
				Opponent: 1 + (g*7+s)%31,
				Home:     g%2 == 0,
				Goals:    rng.IntN(3),
				Assists:  rng.IntN(4),
			})
		}
	}
	return h
}

func TestNew_Validation(t *testing.T) {
	_, err := New(history(1, 10), DefaultConfig())
	if !errors.Is(err, ErrTooFewSeasons) {
		t.Errorf("one season: err = %v; want ErrTooFewSeasons", err)
	}
	var ive *gamelog.InputValidationError
	if !errors.As(err, &ive) || ive.Player != "Test Skater" || ive.Field != "seasons" {
		t.Errorf("one season: err = %#v; want InputValidationError on seasons", err)
	}

	if _, err := New(nil, DefaultConfig()); !errors.As(err, &ive) {
		t.Errorf("nil history: err = %v", err)
	}

	h := history(2, 5)
	h.Records[3].Opponent = 33
	if _, err := New(h, DefaultConfig()); !errors.As(err, &ive) || ive.Field != "records[3].opponent" {
		t.Errorf("opponent out of range: err = %v", err)
	}

	h = history(2, 5)
	h.Records[1].Assists = -2
	if _, err := New(h, DefaultConfig()); !errors.As(err, &ive) {
		t.Errorf("negative assists: err = %v", err)
	}

	h = history(2, 5)
	h.Records[7].Season = 1
	if _, err := New(h, DefaultConfig()); !errors.As(err, &ive) {
		t.Errorf("season decreasing: err = %v", err)
	}

	cfg := DefaultConfig()
	cfg.TeamSigmaScale = 0
	if _, err := New(history(2, 5), cfg); !errors.As(err, &ive) || ive.Field != "config" {
		t.Errorf("bad config: err = %v", err)
	}
}

func TestDim(t *testing.T) {
	m, err := New(history(3, 4), DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if want := 2*3 + 7 + 2*32*3; m.Dim() != want {
		t.Errorf("Dim = %d; want %d", m.Dim(), want)
	}
}

func TestLogDensityGrad_FiniteDifference(t *testing.T) {
	m, err := New(history(3, 12), DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rng := rand.New(rand.NewPCG(3, 4))
	theta := m.InitialPoint(rng)
	for i := range theta {
		theta[i] += 0.5 * rng.NormFloat64()
	}
	grad := make([]float64, m.Dim())
	lp := m.LogDensityGrad(theta, grad)
	if math.IsNaN(lp) || math.IsInf(lp, 0) {
		t.Fatalf("log density = %v", lp)
	}

	const h = 1e-6
	scratch := make([]float64, m.Dim())
	for i := range theta {
		orig := theta[i]
		theta[i] = orig + h
		up := m.LogDensityGrad(theta, scratch)
		theta[i] = orig - h
		down := m.LogDensityGrad(theta, scratch)
		theta[i] = orig
		fd := (up - down) / (2 * h)
		if math.Abs(fd-grad[i]) > 1e-4*math.Max(1, math.Abs(fd)) {
			t.Errorf("grad[%d] = %.6f; finite difference %.6f", i, grad[i], fd)
		}
	}
}

func TestConstrainRoundTrip(t *testing.T) {
	m, err := New(history(2, 6), DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	theta := m.InitialPoint(rand.New(rand.NewPCG(5, 6)))
	p, err := m.Constrain(theta)
	if err != nil {
		t.Fatalf("Constrain: %v", err)
	}
	if p.TeamSigmaGoals <= 0 || p.RhoAssists <= 0 || p.RhoAssists >= 1 {
		t.Errorf("constrained scales out of support: %+v", p)
	}
	back, err := m.Unconstrain(p)
	if err != nil {
		t.Fatalf("Unconstrain: %v", err)
	}
	for i := range theta {
		if math.Abs(back[i]-theta[i]) > 1e-9 {
			t.Fatalf("theta[%d] = %v after round trip; want %v", i, back[i], theta[i])
		}
	}
	if _, err := m.Constrain(theta[:3]); err == nil {
		t.Error("short theta should fail")
	}
	p.RhoGoals = 1
	if _, err := m.Unconstrain(p); err == nil {
		t.Error("rho = 1 should fail")
	}
}

func TestLatentPredictors(t *testing.T) {
	m, _ := New(history(2, 4), DefaultConfig())
	p := newLatent(2, m.Teams())
	p.SeasonRateGoals[1] = -1
	p.SeasonRateAssists[1] = -0.5
	p.TeamAdjGoals[4][1] = 0.1
	p.TeamAdjAssists[4][1] = -0.1
	p.HomeGoals, p.HomeAssists, p.Coupling = 0.05, 0.02, 0.3
	if got := p.GoalPredictor(2, 5, true); math.Abs(got-(-0.85)) > 1e-12 {
		t.Errorf("GoalPredictor = %v; want -0.85", got)
	}
	if got := p.AssistPredictor(2, 5, false, 2); math.Abs(got-0) > 1e-12 {
		t.Errorf("AssistPredictor = %v; want 0", got)
	}
}

// fixedSampler returns the same draws every time.
type fixedSampler struct {
	draws [][]float64
	err   error
}

func (f fixedSampler) Sample(ctx context.Context, t sampler.Target) (*sampler.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sampler.Result{Draws: f.draws, Chains: 1, PerChain: len(f.draws)}, nil
}

func TestFit_StandIn(t *testing.T) {
	m, err := New(history(2, 6), DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := newLatent(2, m.Teams())
	want.SeasonRateGoals[0], want.SeasonRateGoals[1] = -1.2, -1.0
	want.SeasonRateAssists[0], want.SeasonRateAssists[1] = -0.4, -0.3
	want.TeamSigmaGoals, want.TeamSigmaAssists = 0.08, 0.05
	want.RhoGoals, want.RhoAssists = 0.4, 0.6
	want.Coupling = 0.1
	theta, err := m.Unconstrain(want)
	if err != nil {
		t.Fatalf("Unconstrain: %v", err)
	}

	post, err := m.Fit(context.Background(), fixedSampler{draws: [][]float64{theta, theta}})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if len(post.Draws) != 2 || post.Seasons != 2 || post.Teams != 32 {
		t.Fatalf("posterior shape: %d draws, S=%d, T=%d", len(post.Draws), post.Seasons, post.Teams)
	}
	got := post.Draws[1]
	if math.Abs(got.SeasonRateGoals[1]-(-1.0)) > 1e-9 || math.Abs(got.RhoAssists-0.6) > 1e-9 || math.Abs(got.Coupling-0.1) > 1e-12 {
		t.Errorf("draw = %+v", got)
	}
}

func TestFit_SamplerFailure(t *testing.T) {
	m, err := New(history(2, 6), DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = m.Fit(context.Background(), fixedSampler{err: sampler.ErrNotConverged})
	var inf *InferenceFailure
	if !errors.As(err, &inf) {
		t.Fatalf("err = %v; want InferenceFailure", err)
	}
	if inf.Player != "Test Skater" || inf.Season != "20222023" || inf.Op != "sample" {
		t.Errorf("failure context = %+v", inf)
	}
	if !errors.Is(err, sampler.ErrNotConverged) {
		t.Error("InferenceFailure should unwrap to ErrNotConverged")
	}

	if _, err := m.Fit(context.Background(), fixedSampler{}); !errors.As(err, &inf) {
		t.Errorf("empty draws: err = %v", err)
	}
}

func TestFit_HMC(t *testing.T) {
	if testing.Short() {
		t.Skip("runs the sampler")
	}
	m, err := New(history(2, 40), DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := sampler.New(sampler.Config{Chains: 2, Warmup: 200, Draws: 200, Steps: 16, MaxRhat: 5, Seed: 1})
	post, err := m.Fit(context.Background(), h)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if len(post.Draws) != 400 {
		t.Fatalf("draws = %d; want 400", len(post.Draws))
	}
	var observed float64
	for _, r := range m.records {
		if r.Season == 2 {
			observed += float64(r.Goals)
		}
	}
	observed /= 40
	var rate float64
	for _, d := range post.Draws {
		rate += math.Exp(d.SeasonRateGoals[1])
	}
	rate /= float64(len(post.Draws))
	if rate < observed/2 || rate > observed*2 {
		t.Errorf("posterior goal rate %.3f far from observed %.3f", rate, observed)
	}
}
