package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alexistats/nhl-modelling-bayesian/internal/config"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/api"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/cache"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/metrics"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/model"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/pipeline"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/publish"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/sampler"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/store"
)

// batchTimeout bounds one projection pass over every player.
const batchTimeout = 2 * time.Hour

func main() {
	once := flag.Bool("once", false, "run a single batch and exit")
	flag.Parse()

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

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		slog.Error("store open failed", "path", cfg.StorePath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	m := metrics.New()
	hmc := sampler.New(sampler.Config{
		Chains:       cfg.Sampler.Chains,
		Warmup:       cfg.Sampler.Warmup,
		Draws:        cfg.Sampler.Draws,
		Steps:        cfg.Sampler.Steps,
		TargetAccept: cfg.Sampler.TargetAccept,
		MaxRhat:      cfg.Sampler.MaxRhat,
		Seed:         cfg.Sampler.Seed,
	})
	runner := pipeline.NewRunner(cache.NewReader(rdb), st, hmc, publish.NewProducer(rdb), m, pipeline.Options{
		Workers: cfg.Workers,
		HDIProb: cfg.HDIProb,
		Seasons: cfg.Seasons,
		Model:   model.Config(cfg.Model),
		Seed:    cfg.Sampler.Seed,
	})

	run := func() {
		ctx, cancel := context.WithTimeout(ctx, batchTimeout)
		defer cancel()
		for _, o := range runner.Run(ctx, cfg.Players) {
			if o.Err != nil {
				slog.Warn("player skipped", "player", o.Player, "stage", o.Stage, "error", o.Err)
			}
		}
	}

	if *once {
		run()
		return
	}

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           api.NewRouter(api.NewHandler(st), m.Handler(), nil),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("api listening", "addr", cfg.APIAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api server failed", "error", err)
			stop()
		}
	}()

	ticker := time.NewTicker(cfg.ProjectInterval)
	defer ticker.Stop()

	for {
		run()
		select {
		case <-ctx.Done():
			slog.Info("projector shutting down", "reason", ctx.Err())
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = srv.Shutdown(shutdownCtx)
			cancel()
			return
		case <-ticker.C:
		}
	}
}
