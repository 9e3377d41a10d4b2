package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// StreamKey must match the projector's publish.StreamKey.
	StreamKey        = "projections"
	SummaryKeyPrefix = "projection:summary:"
	ConsumerGroup    = "announcers"
	ConsumerName     = "announcer-1"
	ReadBlockMillis  = 5000
)

// Summary matches projector's summary.Summary.
type Summary struct {
	N        int     `json:"n"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	Level    float64 `json:"level"`
	Lower    float64 `json:"hdiLow"`
	Upper    float64 `json:"hdiHigh"`
	P5       float64 `json:"p5"`
	P95      float64 `json:"p95"`
}

// ProjectionEvent matches the payload emitted by the projector.
type ProjectionEvent struct {
	Player         string  `json:"player"`
	RunID          string  `json:"run_id"`
	SeasonID       string  `json:"season_id"`
	GamesPlayed    int     `json:"games_played"`
	GamesRemaining int     `json:"games_remaining"`
	GoalsToDate    int     `json:"goals_to_date"`
	AssistsToDate  int     `json:"assists_to_date"`
	Points         Summary `json:"points"`
	Goals          Summary `json:"goals"`
	Assists        Summary `json:"assists"`
	CreatedAt      string  `json:"created_at"`
}

// Consumer reads from the Redis stream via consumer group.
type Consumer struct {
	client *redis.Client
}

// NewConsumer returns a Redis stream consumer.
func NewConsumer(client *redis.Client) *Consumer {
	return &Consumer{client: client}
}

// EnsureGroup creates the consumer group if it does not exist (MKSTREAM so empty stream is created).
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	return c.client.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
}

// ReadMessages blocks and reads new messages for this consumer. Every
// message id is returned for acking, including ones whose payload does not
// decode.
func (c *Consumer) ReadMessages(ctx context.Context) ([]ProjectionEvent, []string, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: ConsumerName,
		Streams:  []string{StreamKey, ">"},
		Count:    10,
		Block:    ReadBlockMillis * time.Millisecond,
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, nil, err
	}
	if err == redis.Nil || len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil, nil
	}

	var events []ProjectionEvent
	var ids []string
	for _, msg := range streams[0].Messages {
		ids = append(ids, msg.ID)
		raw, ok := msg.Values["payload"].(string)
		if !ok {
			continue
		}
		var e ProjectionEvent
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, ids, nil
}

// Ack acknowledges processed message IDs.
func (c *Consumer) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.client.XAck(ctx, StreamKey, ConsumerGroup, ids...).Err()
}

// ReadProjection returns the latest summary stored for player, or nil if
// none. Lookup is case-insensitive.
func (c *Consumer) ReadProjection(ctx context.Context, player string) (*ProjectionEvent, error) {
	key := SummaryKeyPrefix + strings.ToLower(strings.TrimSpace(player))
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	var e ProjectionEvent
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &e, nil
}
