// Package config holds the settings shared by the collector, projector and
// announcer services.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel error kinds. Callers match with errors.Is.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

// Player is one tracked skater.
type Player struct {
	Name string `koanf:"name"`
	ID   int    `koanf:"id"`
	// Team is the club abbreviation whose schedule is projected (e.g. "EDM").
	Team string `koanf:"team"`
}

// Config is the process configuration.
type Config struct {
	LogLevel  string `koanf:"log_level"`
	RedisAddr string `koanf:"redis_addr"`
	StorePath string `koanf:"store_path"`
	APIAddr   string `koanf:"api_addr"`

	CollectInterval time.Duration `koanf:"collect_interval"`
	ProjectInterval time.Duration `koanf:"project_interval"`
	Workers         int           `koanf:"workers"`

	// Seasons are NHL season ids ("20232024"), oldest first.
	Seasons []string `koanf:"seasons"`
	Players []Player `koanf:"players"`

	// HDIProb is the credible mass reported for every interval.
	HDIProb float64 `koanf:"hdi_prob"`

	Model   ModelConfig   `koanf:"model"`
	Sampler SamplerConfig `koanf:"sampler"`

	DiscordToken     string `koanf:"discord_token"`
	DiscordChannelID string `koanf:"discord_channel_id"`
	DiscordGuildID   string `koanf:"discord_guild_id"`
}

// ModelConfig holds prior scales for the scoring model.
type ModelConfig struct {
	// Teams is overridden per player by the franchise count the league
	// resolver assigns.
	Teams            int     `koanf:"teams"`
	RandomWalkSigma  float64 `koanf:"random_walk_sigma"`
	InitialRateSigma float64 `koanf:"initial_rate_sigma"`
	TeamSigmaScale   float64 `koanf:"team_sigma_scale"`
	RhoSigma         float64 `koanf:"rho_sigma"`
	HomeSigma        float64 `koanf:"home_sigma"`
	CouplingSigma    float64 `koanf:"coupling_sigma"`
}

// SamplerConfig holds HMC settings.
type SamplerConfig struct {
	Chains       int     `koanf:"chains"`
	Warmup       int     `koanf:"warmup"`
	Draws        int     `koanf:"draws"`
	Steps        int     `koanf:"steps"`
	TargetAccept float64 `koanf:"target_accept"`
	MaxRhat      float64 `koanf:"max_rhat"`
	Seed         uint64  `koanf:"seed"`
}

// New returns a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		RedisAddr:       "redis:6379",
		StorePath:       "data/projections.db",
		APIAddr:         ":8090",
		CollectInterval: 6 * time.Hour,
		ProjectInterval: 12 * time.Hour,
		Workers:         2,
		Seasons:         []string{"20232024", "20242025", "20252026"},
		HDIProb:         0.93,
		Model: ModelConfig{
			Teams:            32,
			RandomWalkSigma:  0.25,
			InitialRateSigma: 1.0,
			TeamSigmaScale:   0.08,
			RhoSigma:         0.3,
			HomeSigma:        0.5,
			CouplingSigma:    0.5,
		},
		Sampler: SamplerConfig{
			Chains:       4,
			Warmup:       500,
			Draws:        500,
			Steps:        24,
			TargetAccept: 0.8,
			MaxRhat:      1.1,
			Seed:         20240101,
		},
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.RedisAddr == "":
		return fmt.Errorf("%w: redis_addr must not be empty", ErrInvalidConfig)
	case c.CollectInterval <= 0 || c.ProjectInterval <= 0:
		return fmt.Errorf("%w: collect_interval and project_interval must be positive", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be >= 1", ErrInvalidConfig)
	case len(c.Seasons) < 2:
		return fmt.Errorf("%w: at least 2 seasons required, got %d", ErrInvalidConfig, len(c.Seasons))
	case c.HDIProb <= 0 || c.HDIProb >= 1:
		return fmt.Errorf("%w: hdi_prob must be in (0,1), got %v", ErrInvalidConfig, c.HDIProb)
	case c.Model.Teams < 1:
		return fmt.Errorf("%w: model.teams must be >= 1", ErrInvalidConfig)
	case c.Sampler.Chains < 1 || c.Sampler.Warmup < 1 || c.Sampler.Steps < 1:
		return fmt.Errorf("%w: sampler chains, warmup and steps must be >= 1", ErrInvalidConfig)
	case c.Sampler.Draws < 4:
		return fmt.Errorf("%w: sampler.draws must be >= 4 for split R-hat, got %d", ErrInvalidConfig, c.Sampler.Draws)
	case c.Sampler.TargetAccept <= 0 || c.Sampler.TargetAccept >= 1:
		return fmt.Errorf("%w: sampler.target_accept must be in (0,1)", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Players))
	for i, p := range c.Players {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: players[%d].name is empty", ErrInvalidConfig, i)
		}
		if p.Team == "" {
			return fmt.Errorf("%w: players[%d] (%s) has no team", ErrInvalidConfig, i, p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate player %q", ErrInvalidConfig, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// PlayerByName returns the configured player with the given name.
func (c *Config) PlayerByName(name string) (Player, bool) {
	for _, p := range c.Players {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Player{}, false
}
