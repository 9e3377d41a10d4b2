// Package gamelog turns cached box-score rows into the typed per-game records
// and fixtures the scoring model consumes.
package gamelog

import (
	"fmt"
	"sort"
	"time"

	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/cache"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/league"
)

const dateLayout = "2006-01-02"

// GameRecord is one game played by a player.
type GameRecord struct {
	Date time.Time
	// Season is 1-based and chronological.
	Season int
	// Opponent is the 1-based opponent id from league.Resolver.
	Opponent int
	Home     bool
	Goals    int
	Assists  int
}

// Fixture is a scheduled game with no outcome yet.
type Fixture struct {
	Opponent int  `json:"opponent"`
	Home     bool `json:"home"`
}

// Totals are accumulated counts, known exactly.
type Totals struct {
	Goals   int `json:"goals"`
	Assists int `json:"assists"`
}

// Points returns goals plus assists.
func (t Totals) Points() int { return t.Goals + t.Assists }

// InputValidationError rejects data before any fitting happens.
type InputValidationError struct {
	Player string
	Field  string
	Reason string
	// Err is an optional sentinel such as model.ErrTooFewSeasons.
	Err error
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("invalid input for %s: %s: %s", e.Player, e.Field, e.Reason)
}

func (e *InputValidationError) Unwrap() error { return e.Err }

// History is a player's game records in date order.
type History struct {
	Player  string
	Records []GameRecord
	// SeasonIDs[i] is the NHL season id of season index i+1.
	SeasonIDs []string
}

// Seasons returns the number of distinct seasons.
func (h *History) Seasons() int { return len(h.SeasonIDs) }

// Current returns the index of the latest season.
func (h *History) Current() int { return len(h.SeasonIDs) }

// GamesPlayed returns the number of games in the given season.
func (h *History) GamesPlayed(season int) int {
	n := 0
	for _, r := range h.Records {
		if r.Season == season {
			n++
		}
	}
	return n
}

// SeasonTotals sums goals and assists for the given season.
func (h *History) SeasonTotals(season int) Totals {
	var t Totals
	for _, r := range h.Records {
		if r.Season == season {
			t.Goals += r.Goals
			t.Assists += r.Assists
		}
	}
	return t
}

// Extend appends a season with no games yet, so the model carries its rates
// one step past the last season played. id must sort after every known
// season; an id already present is a no-op.
func (h *History) Extend(id string) error {
	for _, s := range h.SeasonIDs {
		if s == id {
			return nil
		}
	}
	if n := len(h.SeasonIDs); n > 0 && id < h.SeasonIDs[n-1] {
		return &InputValidationError{Player: h.Player, Field: "seasons", Reason: fmt.Sprintf("current season %s precedes %s", id, h.SeasonIDs[n-1])}
	}
	h.SeasonIDs = append(h.SeasonIDs, id)
	return nil
}

// Index returns the 1-based season index of id, or 0.
func (h *History) Index(id string) int {
	for i, s := range h.SeasonIDs {
		if s == id {
			return i + 1
		}
	}
	return 0
}

// SeasonID derives the NHL season id from a game date; a season starts in
// September. Matches collector's export.SeasonID.
func SeasonID(d time.Time) string {
	y := d.Year()
	if d.Month() < time.September {
		y--
	}
	return fmt.Sprintf("%d%d", y, y+1)
}

// Build validates raw entries and assigns season indices and opponent ids.
func Build(player string, entries []cache.GameLogEntry, r *league.Resolver) (*History, error) {
	if len(entries) == 0 {
		return nil, &InputValidationError{Player: player, Field: "gameLog", Reason: "no games"}
	}
	type row struct {
		date time.Time
		e    cache.GameLogEntry
	}
	rows := make([]row, 0, len(entries))
	for i, e := range entries {
		d, err := time.Parse(dateLayout, e.GameDate)
		if err != nil {
			return nil, &InputValidationError{Player: player, Field: fmt.Sprintf("gameLog[%d].gameDate", i), Reason: err.Error()}
		}
		if e.SeasonID == "" {
			e.SeasonID = SeasonID(d)
		}
		rows = append(rows, row{date: d, e: e})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].date.Before(rows[j].date) })

	h := &History{Player: player}
	seasonIdx := make(map[string]int)
	for _, rw := range rows {
		if _, ok := seasonIdx[rw.e.SeasonID]; !ok {
			seasonIdx[rw.e.SeasonID] = 0
			h.SeasonIDs = append(h.SeasonIDs, rw.e.SeasonID)
		}
	}
	sort.Strings(h.SeasonIDs)
	for i, id := range h.SeasonIDs {
		seasonIdx[id] = i + 1
	}

	h.Records = make([]GameRecord, 0, len(rows))
	prevSeason := 0
	for _, rw := range rows {
		e := rw.e
		field := func(name string) string { return fmt.Sprintf("gameLog[%s].%s", e.GameDate, name) }
		opp, err := r.ID(e.OpponentAbbrev)
		if err != nil {
			return nil, &InputValidationError{Player: player, Field: field("opponentAbbrev"), Reason: err.Error()}
		}
		home, err := homeFlag(e.HomeRoadFlag)
		if err != nil {
			return nil, &InputValidationError{Player: player, Field: field("homeRoadFlag"), Reason: err.Error()}
		}
		if e.Goals < 0 || e.Assists < 0 {
			return nil, &InputValidationError{Player: player, Field: field("goals/assists"), Reason: "negative count"}
		}
		season := seasonIdx[e.SeasonID]
		if season < prevSeason {
			return nil, &InputValidationError{Player: player, Field: field("seasonId"), Reason: fmt.Sprintf("season %s out of date order", e.SeasonID)}
		}
		prevSeason = season
		h.Records = append(h.Records, GameRecord{
			Date:     rw.date,
			Season:   season,
			Opponent: opp,
			Home:     home,
			Goals:    e.Goals,
			Assists:  e.Assists,
		})
	}
	return h, nil
}

// Fixtures resolves a club schedule into fixtures, preserving order.
func Fixtures(player string, schedule []cache.ScheduleGame, r *league.Resolver) ([]Fixture, error) {
	out := make([]Fixture, 0, len(schedule))
	for i, g := range schedule {
		opp, err := r.ID(g.OpponentAbbrev)
		if err != nil {
			return nil, &InputValidationError{Player: player, Field: fmt.Sprintf("schedule[%d].opponentAbbrev", i), Reason: err.Error()}
		}
		home, err := homeFlag(g.HomeRoadFlag)
		if err != nil {
			return nil, &InputValidationError{Player: player, Field: fmt.Sprintf("schedule[%d].homeRoadFlag", i), Reason: err.Error()}
		}
		out = append(out, Fixture{Opponent: opp, Home: home})
	}
	return out, nil
}

// Pending keeps the schedule games that have not finished, in order. ok is
// false when no game carries a state, and the caller falls back to Remaining.
func Pending(schedule []cache.ScheduleGame) (pending []cache.ScheduleGame, ok bool) {
	pending = make([]cache.ScheduleGame, 0, len(schedule))
	for _, g := range schedule {
		if g.GameState != "" {
			ok = true
		}
		switch g.GameState {
		case "FINAL", "OFF":
		default:
			pending = append(pending, g)
		}
	}
	if !ok {
		return nil, false
	}
	return pending, true
}

// Remaining returns schedule[played:]. A schedule shorter than the games
// already played is a legitimate end-of-season state: the result is empty
// and clamped reports true.
func Remaining(schedule []Fixture, played int) (rest []Fixture, clamped bool) {
	if played < 0 {
		played = 0
	}
	if played >= len(schedule) {
		return nil, played > len(schedule)
	}
	rest = make([]Fixture, len(schedule)-played)
	copy(rest, schedule[played:])
	return rest, false
}

func homeFlag(flag string) (bool, error) {
	switch flag {
	case "H", "h", "HOME", "vs":
		return true, nil
	case "R", "r", "A", "AWAY", "@":
		return false, nil
	}
	return false, fmt.Errorf("unrecognised home/road flag %q", flag)
}
