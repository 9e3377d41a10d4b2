package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/alexistats/nhl-modelling-bayesian/collector/internal/nhl"
)

func TestWriteGameLogAndSchedule(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	c := New(rdb)
	ctx := context.Background()

	log := []nhl.GameLogEntry{{GameID: 1, SeasonID: "20242025", GameDate: "2024-10-09", OpponentAbbrev: "WPG", HomeRoadFlag: "H", Goals: 1, Assists: 2}}
	if err := c.WriteGameLog(ctx, 8478402, log); err != nil {
		t.Fatalf("WriteGameLog: %v", err)
	}
	raw, err := mr.Get("gamelog:8478402")
	if err != nil {
		t.Fatalf("get game log: %v", err)
	}
	var got []nhl.GameLogEntry
	if err := json.Unmarshal([]byte(raw), &got); err != nil || len(got) != 1 || got[0] != log[0] {
		t.Errorf("stored game log = %s (%v)", raw, err)
	}
	if ttl := mr.TTL("gamelog:8478402"); ttl != GameLogTTL {
		t.Errorf("game log TTL = %v; want %v", ttl, GameLogTTL)
	}

	if err := c.Persistent().WriteGameLog(ctx, 1, log); err != nil {
		t.Fatalf("persistent WriteGameLog: %v", err)
	}
	if ttl := mr.TTL("gamelog:1"); ttl != 0 {
		t.Errorf("imported game log TTL = %v; want none", ttl)
	}

	if err := c.WriteSchedule(ctx, " edm", []nhl.ScheduleGame{{GameID: 7, OpponentAbbrev: "CGY", HomeRoadFlag: "R"}}); err != nil {
		t.Fatalf("WriteSchedule: %v", err)
	}
	if !mr.Exists("schedule:EDM") {
		t.Error("schedule:EDM not written")
	}
	mr.FastForward(13 * time.Hour)
	if mr.Exists("schedule:EDM") {
		t.Error("schedule should expire after its TTL")
	}
}
