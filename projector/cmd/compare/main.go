// Command compare prints stored projections, compares two players and
// writes histogram PNGs without refitting.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alexistats/nhl-modelling-bayesian/internal/config"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/projection"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/report"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/store"
)

func main() {
	a := flag.String("a", "", "first player (omit to list every stored player)")
	b := flag.String("b", "", "second player to compare against")
	statName := flag.String("stat", "points", "stat to compare: points, goals or assists")
	plotDir := flag.String("plots", "", "directory for histogram PNGs, one per stat")
	top := flag.Int("top", 0, "print the top N players by expected points and exit")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	which, err := projection.ParseStat(*statName)
	if err != nil {
		slog.Error("bad -stat", "error", err)
		os.Exit(2)
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		slog.Error("store open failed", "path", cfg.StorePath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *top > 0 {
		entries, err := st.List(ctx)
		if err == nil {
			err = report.WriteLeaderboard(os.Stdout, entries, *top)
		}
		if err != nil {
			slog.Error("leaderboard failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, st, cfg.HDIProb, *a, *b, which, *plotDir); err != nil {
		slog.Error("compare failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, st *store.Store, level float64, nameA, nameB string, which projection.Stat, plotDir string) error {
	if nameA == "" {
		entries, err := st.List(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			art, err := st.Load(ctx, e.Player)
			if err != nil {
				return err
			}
			if err := report.WriteSummary(os.Stdout, art, level); err != nil {
				return err
			}
		}
		return nil
	}

	artA, err := st.Load(ctx, nameA)
	if err != nil {
		return err
	}
	if err := report.WriteSummary(os.Stdout, artA, level); err != nil {
		return err
	}
	if nameB == "" {
		return nil
	}
	artB, err := st.Load(ctx, nameB)
	if err != nil {
		return err
	}
	if err := report.WriteSummary(os.Stdout, artB, level); err != nil {
		return err
	}
	if err := report.WriteComparison(os.Stdout, artA, artB, which); err != nil {
		return err
	}

	if plotDir == "" {
		return nil
	}
	if err := os.MkdirAll(plotDir, 0o755); err != nil {
		return fmt.Errorf("create plot dir: %w", err)
	}
	for _, s := range report.Stats {
		path := report.FileName(plotDir, artA.Player, artB.Player, s)
		if err := report.Histogram(path, artA, artB, s); err != nil {
			return err
		}
		slog.Info("histogram written", "path", path)
	}
	return nil
}
