// Package model is the per-player hierarchical scoring model: season
// random-walk rates, AR(1) opponent effects, home ice and a goal-to-assist
// coupling under Poisson likelihoods for goals and assists.
package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/gamelog"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/sampler"
)

// Sampler draws from the model's unconstrained log density.
type Sampler interface {
	Sample(ctx context.Context, t sampler.Target) (*sampler.Result, error)
}

// Posterior is the set of joint draws from a fit.
type Posterior struct {
	Seasons     int                 `json:"seasons"`
	Teams       int                 `json:"teams"`
	Draws       []*LatentParameters `json:"draws"`
	Diagnostics sampler.Diagnostics `json:"diagnostics"`
}

// Model is a validated player history ready to fit.
type Model struct {
	player   string
	seasonID string
	records  []gamelog.GameRecord
	cfg      Config
	lay      layout

	logConst    float64
	meanGoals   float64
	meanAssists float64
}

// New validates the history and builds the model. Every rejection is a
// *gamelog.InputValidationError naming the player and field.
func New(h *gamelog.History, cfg Config) (*Model, error) {
	if h == nil || len(h.Records) == 0 {
		player := ""
		if h != nil {
			player = h.Player
		}
		return nil, &gamelog.InputValidationError{Player: player, Field: "history", Reason: "no games"}
	}
	invalid := func(field, reason string) error {
		return &gamelog.InputValidationError{Player: h.Player, Field: field, Reason: reason}
	}
	if err := cfg.validate(); err != nil {
		return nil, invalid("config", err.Error())
	}
	S := h.Seasons()
	if S < 2 {
		return nil, &gamelog.InputValidationError{
			Player: h.Player,
			Field:  "seasons",
			Reason: fmt.Sprintf("%d distinct season(s), %v", S, ErrTooFewSeasons),
			Err:    ErrTooFewSeasons,
		}
	}

	m := &Model{
		player:   h.Player,
		seasonID: h.SeasonIDs[S-1],
		records:  h.Records,
		cfg:      cfg,
		lay:      layout{seasons: S, teams: cfg.Teams},
	}
	var goals, assists float64
	for i, r := range h.Records {
		switch {
		case r.Season < 1 || r.Season > S:
			return nil, invalid(fmt.Sprintf("records[%d].season", i), fmt.Sprintf("%d outside [1, %d]", r.Season, S))
		case r.Opponent < 1 || r.Opponent > cfg.Teams:
			return nil, invalid(fmt.Sprintf("records[%d].opponent", i), fmt.Sprintf("%d outside [1, %d]", r.Opponent, cfg.Teams))
		case r.Goals < 0 || r.Assists < 0:
			return nil, invalid(fmt.Sprintf("records[%d].goals/assists", i), "negative count")
		}
		if i > 0 && r.Season < h.Records[i-1].Season {
			return nil, invalid(fmt.Sprintf("records[%d].season", i), "season index decreases in date order")
		}
		lg, _ := math.Lgamma(float64(r.Goals + 1))
		la, _ := math.Lgamma(float64(r.Assists + 1))
		m.logConst -= lg + la
		goals += float64(r.Goals)
		assists += float64(r.Assists)
	}
	n := float64(len(h.Records))
	m.meanGoals, m.meanAssists = goals/n, assists/n
	return m, nil
}

// Player returns the player the model was built for.
func (m *Model) Player() string { return m.player }

// Seasons returns S.
func (m *Model) Seasons() int { return m.lay.seasons }

// Teams returns T.
func (m *Model) Teams() int { return m.lay.teams }

// Dim is the length of the unconstrained parameter vector.
func (m *Model) Dim() int { return m.lay.dim() }

// InitialPoint starts chains with season rates at the player's observed
// per-game averages and every other coordinate near its prior centre.
func (m *Model) InitialPoint(rng *rand.Rand) []float64 {
	l := m.lay
	theta := make([]float64, l.dim())
	for i := range theta {
		theta[i] = 0.2 * (2*rng.Float64() - 1)
	}
	for k, mean := range [2]float64{m.meanGoals, m.meanAssists} {
		theta[l.rate(k)] += math.Log(math.Max(mean, 0.05)) / m.cfg.InitialRateSigma
		theta[l.logSigma(k)] += math.Log(m.cfg.TeamSigmaScale)
	}
	return theta
}

// LogDensityGrad returns the unnormalised log posterior of theta and writes
// its gradient into grad. Safe for concurrent use.
func (m *Model) LogDensityGrad(theta, grad []float64) float64 {
	l := m.lay
	S, T := l.seasons, l.teams
	clear(grad)

	p := newLatent(S, T)
	m.constrainInto(theta, p)
	rates := [2][]float64{p.SeasonRateGoals, p.SeasonRateAssists}
	adj := [2][][]float64{p.TeamAdjGoals, p.TeamAdjAssists}
	sigmas := [2]float64{p.TeamSigmaGoals, p.TeamSigmaAssists}
	rhos := [2]float64{p.RhoGoals, p.RhoAssists}

	// d loglik / d (rate, team adjustment, home, coupling)
	gRate := [2][]float64{make([]float64, S), make([]float64, S)}
	gAdj := [2][]float64{make([]float64, T*S), make([]float64, T*S)}
	var gHome [2]float64
	var gCoupling float64

	lp := m.logConst
	for _, r := range m.records {
		s, t := r.Season-1, r.Opponent-1
		h := 0.0
		if r.Home {
			h = 1
		}
		yg, ya := float64(r.Goals), float64(r.Assists)
		etaG := rates[statGoals][s] + adj[statGoals][t][s] + p.HomeGoals*h
		etaA := rates[statAssists][s] + adj[statAssists][t][s] + p.HomeAssists*h + p.Coupling*yg
		muG, muA := math.Exp(etaG), math.Exp(etaA)
		lp += yg*etaG - muG + ya*etaA - muA

		rg, ra := yg-muG, ya-muA
		gRate[statGoals][s] += rg
		gRate[statAssists][s] += ra
		gAdj[statGoals][t*S+s] += rg
		gAdj[statAssists][t*S+s] += ra
		gHome[statGoals] += rg * h
		gHome[statAssists] += ra * h
		gCoupling += ra * yg
	}

	for k := 0; k < 2; k++ {
		// Random walk: rate[s] sums innovations 0..s, so innovation j
		// collects the likelihood gradient of every season from j on.
		acc := 0.0
		for s := S - 1; s >= 0; s-- {
			acc += gRate[k][s]
			scale := m.cfg.RandomWalkSigma
			if s == 0 {
				scale = m.cfg.InitialRateSigma
			}
			i := l.rate(k) + s
			z := theta[i]
			lp -= 0.5 * z * z
			grad[i] = scale*acc - z
		}

		// AR(1): x[s] = rho*x[s-1] + sigma*z[s].
		sigma, rho := sigmas[k], rhos[k]
		var dSigma, dRho float64
		for t := 0; t < T; t++ {
			x := adj[k][t]
			next := 0.0
			for s := S - 1; s >= 0; s-- {
				total := gAdj[k][t*S+s] + rho*next
				i := l.team(k, t, s)
				z := theta[i]
				lp -= 0.5 * z * z
				grad[i] = sigma*total - z
				dSigma += z * total
				if s > 0 {
					dRho += x[s-1] * total
				}
				next = total
			}
		}

		// sigma ~ HalfNormal(scale) with log-Jacobian u.
		u := theta[l.logSigma(k)]
		sc2 := m.cfg.TeamSigmaScale * m.cfg.TeamSigmaScale
		lp += -0.5*sigma*sigma/sc2 + u
		grad[l.logSigma(k)] = dSigma*sigma - sigma*sigma/sc2 + 1

		// rho ~ Normal(0, rho_sigma) truncated to [0, 1] with logit Jacobian.
		v := theta[l.logitRho(k)]
		rs2 := m.cfg.RhoSigma * m.cfg.RhoSigma
		lp += -0.5*rho*rho/rs2 - softplus(v) - softplus(-v)
		grad[l.logitRho(k)] = (dRho-rho/rs2)*rho*(1-rho) + 1 - 2*rho

		hv := theta[l.home(k)]
		hs2 := m.cfg.HomeSigma * m.cfg.HomeSigma
		lp -= 0.5 * hv * hv / hs2
		grad[l.home(k)] = gHome[k] - hv/hs2
	}

	c := theta[l.coupling()]
	cs2 := m.cfg.CouplingSigma * m.cfg.CouplingSigma
	lp -= 0.5 * c * c / cs2
	grad[l.coupling()] = gCoupling - c/cs2
	return lp
}

func softplus(x float64) float64 {
	return math.Max(x, 0) + math.Log1p(math.Exp(-math.Abs(x)))
}

// Fit samples the posterior with s. Sampler errors, including
// sampler.ErrNotConverged, come back as *InferenceFailure.
func (m *Model) Fit(ctx context.Context, s Sampler) (*Posterior, error) {
	fail := func(op string, err error) error {
		return &InferenceFailure{Player: m.player, Season: m.seasonID, Op: op, Err: err}
	}
	res, err := s.Sample(ctx, m)
	if err != nil {
		return nil, fail("sample", err)
	}
	if res == nil || len(res.Draws) == 0 {
		return nil, fail("sample", errors.New("sampler returned no draws"))
	}
	post := &Posterior{
		Seasons:     m.lay.seasons,
		Teams:       m.lay.teams,
		Draws:       make([]*LatentParameters, 0, len(res.Draws)),
		Diagnostics: res.Diagnostics,
	}
	for i, theta := range res.Draws {
		p, err := m.Constrain(theta)
		if err != nil {
			return nil, fail("constrain", fmt.Errorf("draw %d: %w", i, err))
		}
		post.Draws = append(post.Draws, p)
	}
	return post, nil
}
