// Package pipeline runs the per-player fit, projection and persistence steps
// over a batch of players with failures isolated per player.
package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alexistats/nhl-modelling-bayesian/internal/config"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/cache"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/gamelog"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/league"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/metrics"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/model"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/projection"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/publish"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/store"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/summary"
)

// Pipeline stages, reported on failure.
const (
	StageContext   = "context"
	StageModel     = "model"
	StageFit       = "fit"
	StageProject   = "project"
	StageSummarize = "summarize"
	StageStore     = "store"
	StagePublish   = "publish"
)

// GameSource supplies collected game logs and club schedules.
type GameSource interface {
	ReadGameLog(ctx context.Context, playerID int) ([]cache.GameLogEntry, error)
	ReadSchedule(ctx context.Context, team string) ([]cache.ScheduleGame, error)
}

// ArtifactStore persists one artifact per player.
type ArtifactStore interface {
	Save(ctx context.Context, a *store.Artifact) error
}

// Publisher announces a finished projection.
type Publisher interface {
	Publish(ctx context.Context, p publish.Payload) error
}

// Options configure a Runner.
type Options struct {
	Workers int
	HDIProb float64
	// Seasons restricts the game log to these season ids when non-empty. The
	// last one is the season being projected, games played or not.
	Seasons []string
	Model   model.Config
	Seed    uint64
}

// PlayerContext is everything one player's run needs, built fresh per run.
type PlayerContext struct {
	Player  config.Player
	History *gamelog.History
	// Teams is T, the number of franchise ids the resolver assigned.
	Teams       int
	Current     int
	SeasonID    string
	GamesPlayed int
	Totals      gamelog.Totals
	Remaining   []gamelog.Fixture
	// Clamped is set when the schedule was shorter than the games played.
	Clamped bool
}

// Outcome is the result of one player's run. Err is nil on success.
type Outcome struct {
	Player    string
	RunID     string
	Stage     string
	Err       error
	Summaries map[string]summary.Summary
}

// Runner processes players with a bounded worker pool.
type Runner struct {
	src     GameSource
	store   ArtifactStore
	sampler model.Sampler
	pub     Publisher
	metrics *metrics.Metrics
	opts    Options
	now     func() time.Time
}

// NewRunner returns a Runner. pub and m may be nil.
func NewRunner(src GameSource, st ArtifactStore, smp model.Sampler, pub Publisher, m *metrics.Metrics, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.HDIProb <= 0 || opts.HDIProb >= 1 {
		opts.HDIProb = 0.93
	}
	if opts.Model.Teams == 0 {
		opts.Model = model.DefaultConfig()
	}
	return &Runner{src: src, store: st, sampler: smp, pub: pub, metrics: m, opts: opts, now: time.Now}
}

// Run processes every player and returns one Outcome per player, in input
// order. A failing player never cancels the others.
func (r *Runner) Run(ctx context.Context, players []config.Player) []Outcome {
	runID := uuid.NewString()
	start := r.now()
	slog.Info("projection batch start", "run_id", runID, "players", len(players), "workers", r.opts.Workers)

	outs := make([]Outcome, len(players))
	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for i, p := range players {
		g.Go(func() error {
			outs[i] = r.runPlayer(ctx, runID, p)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range outs {
		if o.Err != nil {
			failed++
		}
	}
	if r.metrics != nil {
		r.metrics.ObserveBatch(r.now().Sub(start))
	}
	slog.Info("projection batch done", "run_id", runID, "players", len(players), "failed", failed)
	return outs
}

func (r *Runner) runPlayer(ctx context.Context, runID string, p config.Player) Outcome {
	out := Outcome{Player: p.Name, RunID: runID}
	fail := func(stage string, err error) Outcome {
		out.Stage, out.Err = stage, err
		if r.metrics != nil {
			r.metrics.StageFailed(stage)
		}
		slog.Error("player projection failed", "player", p.Name, "run_id", runID, "stage", stage, "error", err)
		return out
	}
	if err := ctx.Err(); err != nil {
		return fail(StageContext, err)
	}

	pc, err := r.BuildContext(ctx, p)
	if err != nil {
		return fail(StageContext, err)
	}
	if pc.Clamped {
		slog.Warn("schedule shorter than games played, projecting no remaining games",
			"player", p.Name, "season", pc.SeasonID, "games_played", pc.GamesPlayed)
	}

	cfg := r.opts.Model
	cfg.Teams = pc.Teams
	m, err := model.New(pc.History, cfg)
	if err != nil {
		return fail(StageModel, err)
	}

	fitStart := r.now()
	post, err := m.Fit(ctx, r.sampler)
	if r.metrics != nil {
		r.metrics.ObserveFit(err == nil, r.now().Sub(fitStart))
	}
	if err != nil {
		return fail(StageFit, err)
	}
	if r.metrics != nil {
		r.metrics.ObserveDiagnostics(p.Name, post.Diagnostics.Divergences, post.Diagnostics.MaxRhat)
	}
	slog.Info("posterior fitted", "player", p.Name, "draws", len(post.Draws),
		"max_rhat", post.Diagnostics.MaxRhat, "divergences", post.Diagnostics.Divergences)

	samples, err := projection.Project(post, pc.Current, pc.Totals, pc.Remaining, r.playerSeed(p.Name))
	if err != nil {
		return fail(StageProject, &model.InferenceFailure{Player: p.Name, Season: pc.SeasonID, Op: "project", Err: err})
	}

	sums := make(map[string]summary.Summary, 3)
	for _, st := range []projection.Stat{projection.Points, projection.Goals, projection.Assists} {
		s, err := summary.Summarize(samples.Select(st), r.opts.HDIProb)
		if err != nil {
			return fail(StageSummarize, fmt.Errorf("%s: %w", st, err))
		}
		sums[st.String()] = s
	}
	out.Summaries = sums

	art := &store.Artifact{
		Player:      p.Name,
		RunID:       runID,
		CreatedAt:   r.now().UTC(),
		SeasonID:    pc.SeasonID,
		Season:      pc.Current,
		GamesPlayed: pc.GamesPlayed,
		Totals:      pc.Totals,
		Remaining:   pc.Remaining,
		Samples:     *samples,
		Summaries:   sums,
		Posterior:   post,
	}
	if err := r.store.Save(ctx, art); err != nil {
		return fail(StageStore, err)
	}
	if r.metrics != nil {
		r.metrics.ProjectionStored()
	}
	pts := sums[projection.Points.String()]
	slog.Info("projection stored", "player", p.Name, "run_id", runID, "season", pc.SeasonID,
		"mean_points", pts.Mean, "hdi_low", pts.Lower, "hdi_high", pts.Upper, "remaining_games", len(pc.Remaining))

	if r.pub != nil {
		payload := publish.Payload{
			Player:         p.Name,
			RunID:          runID,
			SeasonID:       pc.SeasonID,
			GamesPlayed:    pc.GamesPlayed,
			GamesRemaining: len(pc.Remaining),
			GoalsToDate:    pc.Totals.Goals,
			AssistsToDate:  pc.Totals.Assists,
			Points:         sums[projection.Points.String()],
			Goals:          sums[projection.Goals.String()],
			Assists:        sums[projection.Assists.String()],
			CreatedAt:      art.CreatedAt.Format(time.RFC3339),
		}
		if err := r.pub.Publish(ctx, payload); err != nil {
			return fail(StagePublish, err)
		}
	}
	return out
}

// BuildContext reads and validates a player's game log and club schedule.
// Missing data and unknown opponents are *gamelog.InputValidationError.
func (r *Runner) BuildContext(ctx context.Context, p config.Player) (*PlayerContext, error) {
	invalid := func(field, reason string) error {
		return &gamelog.InputValidationError{Player: p.Name, Field: field, Reason: reason}
	}
	resolver, err := league.NewResolver(p.Team)
	if err != nil {
		return nil, invalid("team", err.Error())
	}
	entries, err := r.src.ReadGameLog(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("read game log for %s: %w", p.Name, err)
	}
	if entries == nil {
		return nil, invalid("gameLog", "not collected")
	}
	entries = filterSeasons(entries, r.opts.Seasons)
	h, err := gamelog.Build(p.Name, entries, resolver)
	if err != nil {
		return nil, err
	}

	games, err := r.src.ReadSchedule(ctx, resolver.Club())
	if err != nil {
		return nil, fmt.Errorf("read schedule for %s: %w", resolver.Club(), err)
	}
	if games == nil {
		return nil, invalid("schedule", "missing fixture data for "+resolver.Club())
	}

	seasonID := r.currentSeason(h)
	if err := h.Extend(seasonID); err != nil {
		return nil, err
	}
	current := h.Index(seasonID)
	played := h.GamesPlayed(current)

	var remaining []gamelog.Fixture
	clamped := false
	if pending, ok := gamelog.Pending(games); ok {
		remaining, err = gamelog.Fixtures(p.Name, pending, resolver)
		if err != nil {
			return nil, err
		}
	} else {
		fixtures, err := gamelog.Fixtures(p.Name, games, resolver)
		if err != nil {
			return nil, err
		}
		remaining, clamped = gamelog.Remaining(fixtures, played)
	}
	return &PlayerContext{
		Player:      p,
		History:     h,
		Teams:       resolver.Teams(),
		Current:     current,
		SeasonID:    seasonID,
		GamesPlayed: played,
		Totals:      h.SeasonTotals(current),
		Remaining:   remaining,
		Clamped:     clamped,
	}, nil
}

// currentSeason is the last configured season, or the latest season in the
// game log when none are configured.
func (r *Runner) currentSeason(h *gamelog.History) string {
	if n := len(r.opts.Seasons); n > 0 {
		return r.opts.Seasons[n-1]
	}
	return h.SeasonIDs[len(h.SeasonIDs)-1]
}

func filterSeasons(entries []cache.GameLogEntry, seasons []string) []cache.GameLogEntry {
	if len(seasons) == 0 {
		return entries
	}
	keep := make(map[string]bool, len(seasons))
	for _, s := range seasons {
		keep[s] = true
	}
	out := make([]cache.GameLogEntry, 0, len(entries))
	for _, e := range entries {
		if e.SeasonID == "" || keep[e.SeasonID] {
			out = append(out, e)
		}
	}
	return out
}

// playerSeed derives a per-player projection seed so results do not depend
// on batch order.
func (r *Runner) playerSeed(name string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return r.opts.Seed ^ h.Sum64()
}
