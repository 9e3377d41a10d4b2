package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alexistats/nhl-modelling-bayesian/collector/internal/cache"
	"github.com/alexistats/nhl-modelling-bayesian/collector/internal/nhl"
	"github.com/alexistats/nhl-modelling-bayesian/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("redis ping failed", "error", err)
		os.Exit(1)
	}

	nhlClient := nhl.NewClient()
	c := cache.New(rdb)

	run := func() {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()

		teams := make(map[string]bool)
		for _, p := range cfg.Players {
			teams[p.Team] = true
			if p.ID == 0 {
				slog.Info("player has no NHL id, skipping game log fetch", "player", p.Name)
				continue
			}
			var allLog []nhl.GameLogEntry
			for _, seasonID := range cfg.Seasons {
				entries, err := nhlClient.GameLog(ctx, p.ID, seasonID)
				if err != nil {
					slog.Warn("game log fetch failed", "player", p.Name, "season", seasonID, "error", err)
					continue
				}
				allLog = append(allLog, entries...)
			}
			if len(allLog) == 0 {
				continue
			}
			if err := c.WriteGameLog(ctx, p.ID, allLog); err != nil {
				slog.Warn("write game log failed", "player", p.Name, "error", err)
			} else {
				slog.Info("game log updated", "player", p.Name, "entries", len(allLog))
			}
		}

		for team := range teams {
			games, err := nhlClient.ClubSchedule(ctx, team)
			if err != nil {
				slog.Warn("schedule fetch failed", "team", team, "error", err)
				continue
			}
			if err := c.WriteSchedule(ctx, team, games); err != nil {
				slog.Warn("write schedule failed", "team", team, "error", err)
			} else {
				slog.Info("schedule updated", "team", team, "games", len(games))
			}
		}
	}

	run()
	ticker := time.NewTicker(cfg.CollectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("collector shutting down", "reason", ctx.Err())
			return
		case <-ticker.C:
			run()
		}
	}
}
