// Package store persists projection artifacts in SQLite, one row per player.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/gamelog"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/model"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/projection"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/summary"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Load for a player with no stored artifact.
var ErrNotFound = errors.New("store: projection not found")

// Artifact is everything a run produced for one player. It reloads without
// refitting: the three total sequences, the latent draws and diagnostics.
type Artifact struct {
	Player      string                     `json:"player"`
	RunID       string                     `json:"runId"`
	CreatedAt   time.Time                  `json:"createdAt"`
	SeasonID    string                     `json:"seasonId"`
	Season      int                        `json:"season"`
	GamesPlayed int                        `json:"gamesPlayed"`
	Totals      gamelog.Totals             `json:"totals"`
	Remaining   []gamelog.Fixture          `json:"remainingFixtures"`
	Samples     projection.Samples         `json:"samples"`
	Summaries   map[string]summary.Summary `json:"summaries"`
	Posterior   *model.Posterior           `json:"posterior,omitempty"`
}

// Entry is a listing row: the artifact without samples or draws.
type Entry struct {
	// Rank is the 1-based position by expected points.
	Rank      int                        `json:"rank"`
	Player    string                     `json:"player"`
	RunID     string                     `json:"runId"`
	CreatedAt time.Time                  `json:"createdAt"`
	SeasonID  string                     `json:"seasonId"`
	Summaries map[string]summary.Summary `json:"summaries"`
}

// Store is a SQLite-backed artifact store.
type Store struct {
	db *sql.DB
}

// Open creates the database file and schema if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS projections (
			player     TEXT PRIMARY KEY,
			run_id     TEXT NOT NULL,
			created_at TEXT NOT NULL,
			season     TEXT NOT NULL,
			summary    TEXT NOT NULL,
			payload    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_projections_created ON projections(created_at)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Save upserts the artifact under its player name.
func (s *Store) Save(ctx context.Context, a *Artifact) error {
	if a.Player == "" {
		return errors.New("store: artifact has no player")
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	sum, err := json.Marshal(a.Summaries)
	if err != nil {
		return fmt.Errorf("marshal summaries: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projections (player, run_id, created_at, season, summary, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(player) DO UPDATE SET
			run_id = excluded.run_id,
			created_at = excluded.created_at,
			season = excluded.season,
			summary = excluded.summary,
			payload = excluded.payload`,
		a.Player, a.RunID, a.CreatedAt.UTC().Format(time.RFC3339Nano), a.SeasonID, string(sum), string(payload))
	if err != nil {
		return fmt.Errorf("save %s: %w", a.Player, err)
	}
	return nil
}

// Load returns the stored artifact for player.
func (s *Store) Load(ctx context.Context, player string) (*Artifact, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM projections WHERE player = ?`, player).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, player)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", player, err)
	}
	var a Artifact
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return nil, fmt.Errorf("decode %s: %w", player, err)
	}
	return &a, nil
}

// List returns every stored player ranked by expected total points, highest
// first. Ties and rows without a points summary fall back to name order.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT player, run_id, created_at, season, summary FROM projections
		ORDER BY json_extract(summary, '$.points.mean') DESC, player`)
	if err != nil {
		return nil, fmt.Errorf("list projections: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created, sum string
		if err := rows.Scan(&e.Player, &e.RunID, &created, &e.SeasonID, &sum); err != nil {
			return nil, fmt.Errorf("scan projection: %w", err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at for %s: %w", e.Player, err)
		}
		if err := json.Unmarshal([]byte(sum), &e.Summaries); err != nil {
			return nil, fmt.Errorf("decode summary for %s: %w", e.Player, err)
		}
		e.Rank = len(out) + 1
		out = append(out, e)
	}
	return out, rows.Err()
}
