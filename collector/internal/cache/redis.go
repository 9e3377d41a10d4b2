package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alexistats/nhl-modelling-bayesian/collector/internal/nhl"
)

const (
	GameLogKeyPrefix  = "gamelog:"
	ScheduleKeyPrefix = "schedule:"
	GameLogTTL        = 12 * time.Hour
	ScheduleTTL       = 12 * time.Hour
)

// GameLogKey is the key for a player's merged game log.
func GameLogKey(playerID int) string { return GameLogKeyPrefix + strconv.Itoa(playerID) }

// ScheduleKey is the key for a club's current schedule.
func ScheduleKey(team string) string {
	return ScheduleKeyPrefix + strings.ToUpper(strings.TrimSpace(team))
}

// Cache writes game logs and schedules to Redis for the projector.
type Cache struct {
	client     *redis.Client
	gameLogTTL time.Duration
}

// New returns a Cache that uses the given Redis client.
func New(client *redis.Client) *Cache {
	return &Cache{client: client, gameLogTTL: GameLogTTL}
}

// Persistent returns a Cache whose game logs never expire. Imported
// exports are not refreshed by the collector loop.
func (c *Cache) Persistent() *Cache {
	return &Cache{client: c.client}
}

// WriteGameLog stores the merged game log (all seasons) as JSON.
func (c *Cache) WriteGameLog(ctx context.Context, playerID int, entries []nhl.GameLogEntry) error {
	b, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal game log: %w", err)
	}
	return c.client.Set(ctx, GameLogKey(playerID), string(b), c.gameLogTTL).Err()
}

// WriteSchedule stores the club's schedule as JSON.
func (c *Cache) WriteSchedule(ctx context.Context, team string, games []nhl.ScheduleGame) error {
	b, err := json.Marshal(games)
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}
	return c.client.Set(ctx, ScheduleKey(team), string(b), ScheduleTTL).Err()
}
