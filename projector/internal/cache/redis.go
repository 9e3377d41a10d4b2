package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// GameLogEntry matches collector's nhl.GameLogEntry.
type GameLogEntry struct {
	GameID         int    `json:"gameId"`
	SeasonID       string `json:"seasonId"`
	GameDate       string `json:"gameDate"`
	OpponentAbbrev string `json:"opponentAbbrev"`
	HomeRoadFlag   string `json:"homeRoadFlag"`
	Goals          int    `json:"goals"`
	Assists        int    `json:"assists"`
}

// ScheduleGame matches collector's nhl.ScheduleGame: one game of the club's
// current regular season, in date order.
type ScheduleGame struct {
	GameID         int64  `json:"gameId"`
	GameDate       string `json:"gameDate"`
	OpponentAbbrev string `json:"opponentAbbrev"`
	HomeRoadFlag   string `json:"homeRoadFlag"`
	GameState      string `json:"gameState"`
}

const (
	GameLogKeyPrefix  = "gamelog:"
	ScheduleKeyPrefix = "schedule:"
)

// GameLogKey is the Redis key holding a player's merged game log.
func GameLogKey(playerID int) string {
	return GameLogKeyPrefix + strconv.Itoa(playerID)
}

// ScheduleKey is the Redis key holding a club's current schedule.
func ScheduleKey(team string) string {
	return ScheduleKeyPrefix + team
}

// Reader reads game logs and schedules from Redis (written by collector).
type Reader struct {
	client *redis.Client
}

// NewReader returns a Reader.
func NewReader(client *redis.Client) *Reader {
	return &Reader{client: client}
}

// ReadGameLog returns the player's merged game log or nil if missing.
func (r *Reader) ReadGameLog(ctx context.Context, playerID int) ([]GameLogEntry, error) {
	var out []GameLogEntry
	found, err := r.readJSON(ctx, GameLogKey(playerID), &out)
	if err != nil || !found {
		return nil, err
	}
	return out, nil
}

// ReadSchedule returns the club's current-season schedule or nil if missing.
func (r *Reader) ReadSchedule(ctx context.Context, team string) ([]ScheduleGame, error) {
	var out []ScheduleGame
	found, err := r.readJSON(ctx, ScheduleKey(team), &out)
	if err != nil || !found {
		return nil, err
	}
	return out, nil
}

func (r *Reader) readJSON(ctx context.Context, key string, v any) (bool, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}
