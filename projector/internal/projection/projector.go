// Package projection simulates the rest of a season from posterior draws.
package projection

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/gamelog"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/model"
)

// maxEta caps a simulated log rate; exp(6) is already ~400 per game.
const maxEta = 6.0

// Stat selects one of the projected totals.
type Stat int

const (
	Points Stat = iota
	Goals
	Assists
)

func (s Stat) String() string {
	switch s {
	case Goals:
		return "goals"
	case Assists:
		return "assists"
	default:
		return "points"
	}
}

// ParseStat accepts "points", "goals" or "assists" in any case.
func ParseStat(name string) (Stat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "points", "pts", "p", "":
		return Points, nil
	case "goals", "g":
		return Goals, nil
	case "assists", "a":
		return Assists, nil
	}
	return Points, fmt.Errorf("unknown stat %q", name)
}

// Samples are season-end totals, one entry per posterior draw.
// Points[i] == Goals[i] + Assists[i] for every i.
type Samples struct {
	Goals   []float64 `json:"totalGoals"`
	Assists []float64 `json:"totalAssists"`
	Points  []float64 `json:"totalPoints"`
}

// Len returns the number of draws.
func (s *Samples) Len() int { return len(s.Points) }

// Select returns the sequence for stat.
func (s *Samples) Select(stat Stat) []float64 {
	switch stat {
	case Goals:
		return s.Goals
	case Assists:
		return s.Assists
	default:
		return s.Points
	}
}

// Project draws one season-end total per posterior draw: each remaining
// fixture's goals and then assists are simulated from that draw's own
// parameters, summed and added to the totals to date. current is the
// 1-based season index of the season being projected.
func Project(post *model.Posterior, current int, totals gamelog.Totals, fixtures []gamelog.Fixture, seed uint64) (*Samples, error) {
	if post == nil || len(post.Draws) == 0 {
		return nil, errors.New("projection: empty posterior")
	}
	if current < 1 || current > post.Seasons {
		return nil, fmt.Errorf("projection: season %d outside [1, %d]", current, post.Seasons)
	}
	if totals.Goals < 0 || totals.Assists < 0 {
		return nil, fmt.Errorf("projection: negative totals %+v", totals)
	}
	for i, f := range fixtures {
		if f.Opponent < 1 || f.Opponent > post.Teams {
			return nil, fmt.Errorf("projection: fixture %d opponent %d outside [1, %d]", i, f.Opponent, post.Teams)
		}
	}

	m := len(post.Draws)
	out := &Samples{
		Goals:   make([]float64, m),
		Assists: make([]float64, m),
		Points:  make([]float64, m),
	}
	src := rand.NewPCG(seed, uint64(m))
	for i, p := range post.Draws {
		g, a := float64(totals.Goals), float64(totals.Assists)
		for _, f := range fixtures {
			gp := distuv.Poisson{Lambda: rate(p.GoalPredictor(current, f.Opponent, f.Home)), Src: src}
			goals := gp.Rand()
			ap := distuv.Poisson{Lambda: rate(p.AssistPredictor(current, f.Opponent, f.Home, int(goals))), Src: src}
			g += goals
			a += ap.Rand()
		}
		out.Goals[i], out.Assists[i], out.Points[i] = g, a, g+a
	}
	return out, nil
}

func rate(eta float64) float64 {
	return math.Exp(math.Min(eta, maxEta))
}
