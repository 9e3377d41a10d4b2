package model

import (
	"fmt"
	"math"
)

// Config holds the fixed prior scales of the scoring model.
type Config struct {
	Teams            int
	RandomWalkSigma  float64
	InitialRateSigma float64
	TeamSigmaScale   float64
	RhoSigma         float64
	HomeSigma        float64
	CouplingSigma    float64
}

// DefaultConfig returns the league defaults.
func DefaultConfig() Config {
	return Config{
		Teams:            32,
		RandomWalkSigma:  0.25,
		InitialRateSigma: 1.0,
		TeamSigmaScale:   0.08,
		RhoSigma:         0.3,
		HomeSigma:        0.5,
		CouplingSigma:    0.5,
	}
}

func (c Config) validate() error {
	if c.Teams <= 0 {
		return fmt.Errorf("teams must be positive, got %d", c.Teams)
	}
	for name, v := range map[string]float64{
		"random_walk_sigma":  c.RandomWalkSigma,
		"initial_rate_sigma": c.InitialRateSigma,
		"team_sigma_scale":   c.TeamSigmaScale,
		"rho_sigma":          c.RhoSigma,
		"home_sigma":         c.HomeSigma,
		"coupling_sigma":     c.CouplingSigma,
	} {
		if !(v > 0) {
			return fmt.Errorf("%s must be positive, got %v", name, v)
		}
	}
	return nil
}

// LatentParameters is one joint posterior draw. Season slices are indexed
// by season-1 and team slices by [opponent-1][season-1].
type LatentParameters struct {
	SeasonRateGoals   []float64   `json:"seasonRateGoals"`
	SeasonRateAssists []float64   `json:"seasonRateAssists"`
	TeamAdjGoals      [][]float64 `json:"teamAdjGoals"`
	TeamAdjAssists    [][]float64 `json:"teamAdjAssists"`
	TeamSigmaGoals    float64     `json:"teamSigmaGoals"`
	TeamSigmaAssists  float64     `json:"teamSigmaAssists"`
	RhoGoals          float64     `json:"rhoGoals"`
	RhoAssists        float64     `json:"rhoAssists"`
	HomeGoals         float64     `json:"homeGoals"`
	HomeAssists       float64     `json:"homeAssists"`
	Coupling          float64     `json:"coupling"`
}

// GoalPredictor is the log goal rate for a game in season s against
// opponent t (both 1-based).
func (p *LatentParameters) GoalPredictor(s, t int, home bool) float64 {
	eta := p.SeasonRateGoals[s-1] + p.TeamAdjGoals[t-1][s-1]
	if home {
		eta += p.HomeGoals
	}
	return eta
}

// AssistPredictor is the log assist rate given the goals scored in the
// same game.
func (p *LatentParameters) AssistPredictor(s, t int, home bool, goals int) float64 {
	eta := p.SeasonRateAssists[s-1] + p.TeamAdjAssists[t-1][s-1] + p.Coupling*float64(goals)
	if home {
		eta += p.HomeAssists
	}
	return eta
}

// Unconstrained vector layout, for S seasons and T teams:
//
//	[0, S)            goal season-rate innovations
//	[S, 2S)           assist season-rate innovations
//	2S, 2S+1          log team sigma (goals, assists)
//	2S+2, 2S+3        logit rho (goals, assists)
//	2S+4, 2S+5        home (goals, assists)
//	2S+6              coupling
//	[2S+7, +TS)       goal team innovations, team-major
//	[2S+7+TS, +TS)    assist team innovations
type layout struct {
	seasons, teams int
}

const (
	statGoals   = 0
	statAssists = 1
)

func (l layout) dim() int { return 2*l.seasons + 7 + 2*l.teams*l.seasons }
func (l layout) rate(k int) int { return k * l.seasons }
func (l layout) logSigma(k int) int { return 2*l.seasons + k }
func (l layout) logitRho(k int) int { return 2*l.seasons + 2 + k }
func (l layout) home(k int) int { return 2*l.seasons + 4 + k }
func (l layout) coupling() int { return 2*l.seasons + 6 }
func (l layout) team(k, t, s int) int {
	return 2*l.seasons + 7 + k*l.teams*l.seasons + t*l.seasons + s
}

func logistic(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}

func logit(p float64) float64 { return math.Log(p / (1 - p)) }

// constrainInto writes the parameters for theta into a pre-shaped p.
func (m *Model) constrainInto(theta []float64, p *LatentParameters) {
	l := m.lay
	S, T := l.seasons, l.teams
	rates := [2][]float64{p.SeasonRateGoals, p.SeasonRateAssists}
	adj := [2][][]float64{p.TeamAdjGoals, p.TeamAdjAssists}
	sigmas := [2]*float64{&p.TeamSigmaGoals, &p.TeamSigmaAssists}
	rhos := [2]*float64{&p.RhoGoals, &p.RhoAssists}

	for k := 0; k < 2; k++ {
		z := theta[l.rate(k) : l.rate(k)+S]
		rates[k][0] = m.cfg.InitialRateSigma * z[0]
		for s := 1; s < S; s++ {
			rates[k][s] = rates[k][s-1] + m.cfg.RandomWalkSigma*z[s]
		}
		sigma := math.Exp(theta[l.logSigma(k)])
		rho := logistic(theta[l.logitRho(k)])
		*sigmas[k], *rhos[k] = sigma, rho
		for t := 0; t < T; t++ {
			x := adj[k][t]
			x[0] = sigma * theta[l.team(k, t, 0)]
			for s := 1; s < S; s++ {
				x[s] = rho*x[s-1] + sigma*theta[l.team(k, t, s)]
			}
		}
	}
	p.HomeGoals = theta[l.home(statGoals)]
	p.HomeAssists = theta[l.home(statAssists)]
	p.Coupling = theta[l.coupling()]
}

func newLatent(S, T int) *LatentParameters {
	p := &LatentParameters{
		SeasonRateGoals:   make([]float64, S),
		SeasonRateAssists: make([]float64, S),
		TeamAdjGoals:      make([][]float64, T),
		TeamAdjAssists:    make([][]float64, T),
	}
	for t := 0; t < T; t++ {
		p.TeamAdjGoals[t] = make([]float64, S)
		p.TeamAdjAssists[t] = make([]float64, S)
	}
	return p
}

// Constrain maps an unconstrained vector to LatentParameters.
func (m *Model) Constrain(theta []float64) (*LatentParameters, error) {
	if len(theta) != m.Dim() {
		return nil, fmt.Errorf("theta has %d values; want %d", len(theta), m.Dim())
	}
	p := newLatent(m.lay.seasons, m.lay.teams)
	m.constrainInto(theta, p)
	return p, nil
}

// Unconstrain is the inverse of Constrain. Sigmas must be positive and rhos
// strictly inside (0, 1).
func (m *Model) Unconstrain(p *LatentParameters) ([]float64, error) {
	l := m.lay
	S, T := l.seasons, l.teams
	if len(p.SeasonRateGoals) != S || len(p.SeasonRateAssists) != S ||
		len(p.TeamAdjGoals) != T || len(p.TeamAdjAssists) != T {
		return nil, fmt.Errorf("parameters shaped for %d seasons, %d teams", S, T)
	}
	rates := [2][]float64{p.SeasonRateGoals, p.SeasonRateAssists}
	adj := [2][][]float64{p.TeamAdjGoals, p.TeamAdjAssists}
	sigmas := [2]float64{p.TeamSigmaGoals, p.TeamSigmaAssists}
	rhos := [2]float64{p.RhoGoals, p.RhoAssists}

	theta := make([]float64, l.dim())
	for k := 0; k < 2; k++ {
		if !(sigmas[k] > 0) {
			return nil, fmt.Errorf("team sigma %v must be positive", sigmas[k])
		}
		if !(rhos[k] > 0 && rhos[k] < 1) {
			return nil, fmt.Errorf("rho %v must lie in (0, 1)", rhos[k])
		}
		theta[l.rate(k)] = rates[k][0] / m.cfg.InitialRateSigma
		for s := 1; s < S; s++ {
			theta[l.rate(k)+s] = (rates[k][s] - rates[k][s-1]) / m.cfg.RandomWalkSigma
		}
		theta[l.logSigma(k)] = math.Log(sigmas[k])
		theta[l.logitRho(k)] = logit(rhos[k])
		for t := 0; t < T; t++ {
			x := adj[k][t]
			if len(x) != S {
				return nil, fmt.Errorf("team %d has %d seasons; want %d", t+1, len(x), S)
			}
			theta[l.team(k, t, 0)] = x[0] / sigmas[k]
			for s := 1; s < S; s++ {
				theta[l.team(k, t, s)] = (x[s] - rhos[k]*x[s-1]) / sigmas[k]
			}
		}
	}
	theta[l.home(statGoals)] = p.HomeGoals
	theta[l.home(statAssists)] = p.HomeAssists
	theta[l.coupling()] = p.Coupling
	return theta, nil
}
