package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/summary"

	"github.com/redis/go-redis/v9"
)

const (
	StreamKey        = "projections"
	SummaryKeyPrefix = "projection:summary:"
	SummaryTTL       = 7 * 24 * time.Hour
)

// SummaryKey is the Redis key of a player's latest summary. Names are
// lowercased so /projection lookups are case-insensitive.
func SummaryKey(player string) string {
	return SummaryKeyPrefix + strings.ToLower(strings.TrimSpace(player))
}

// Payload is the projection message for the announcer.
type Payload struct {
	Player         string          `json:"player"`
	RunID          string          `json:"run_id"`
	SeasonID       string          `json:"season_id"`
	GamesPlayed    int             `json:"games_played"`
	GamesRemaining int             `json:"games_remaining"`
	GoalsToDate    int             `json:"goals_to_date"`
	AssistsToDate  int             `json:"assists_to_date"`
	Points         summary.Summary `json:"points"`
	Goals          summary.Summary `json:"goals"`
	Assists        summary.Summary `json:"assists"`
	CreatedAt      string          `json:"created_at"`
}

// Producer writes projection summaries to Redis.
type Producer struct {
	client *redis.Client
}

// NewProducer returns a projection producer.
func NewProducer(client *redis.Client) *Producer {
	return &Producer{client: client}
}

// Publish stores the summary under the player's key and appends it to the
// projections stream.
func (p *Producer) Publish(ctx context.Context, payload Payload) error {
	if payload.CreatedAt == "" {
		payload.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal projection: %w", err)
	}
	if err := p.client.Set(ctx, SummaryKey(payload.Player), string(body), SummaryTTL).Err(); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	_, err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		Values: map[string]interface{}{"payload": string(body), "player": payload.Player},
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd projection: %w", err)
	}
	return nil
}
