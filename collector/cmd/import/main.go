// Command import loads a box-score export (CSV or XLSX) into the Redis game
// log key of a configured player.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alexistats/nhl-modelling-bayesian/collector/internal/cache"
	"github.com/alexistats/nhl-modelling-bayesian/collector/internal/export"
	"github.com/alexistats/nhl-modelling-bayesian/internal/config"
)

func main() {
	player := flag.String("player", "", "configured player name")
	path := flag.String("file", "", "CSV or XLSX box-score export")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if *player == "" || *path == "" {
		slog.Error("usage: import -player NAME -file EXPORT")
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	p, ok := cfg.PlayerByName(*player)
	if !ok || p.ID == 0 {
		slog.Error("player not configured with an id", "player", *player)
		os.Exit(1)
	}

	entries, err := export.Read(*path)
	if err != nil {
		slog.Error("read export failed", "file", *path, "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := cache.New(rdb).Persistent().WriteGameLog(ctx, p.ID, entries); err != nil {
		slog.Error("write game log failed", "player", p.Name, "error", err)
		os.Exit(1)
	}
	slog.Info("game log imported", "player", p.Name, "entries", len(entries), "key", cache.GameLogKey(p.ID))
}
