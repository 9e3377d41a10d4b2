package nhl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return &Client{httpClient: server.Client(), baseURL: server.URL}
}

func TestGameLog_Success(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/player/8478402/game-log/20242025/2" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"gameLog":[
			{"gameId":2024020010,"gameDate":"2024-10-09","opponentAbbrev":"WPG","homeRoadFlag":"H","goals":0,"assists":1},
			{"gameId":2024020020,"gameDate":"2024-10-12","opponentAbbrev":"CGY","homeRoadFlag":"R","goals":2,"assists":0}
		]}`))
	})
	entries, err := c.GameLog(context.Background(), 8478402, "20242025")
	if err != nil {
		t.Fatalf("GameLog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d; want 2", len(entries))
	}
	got := entries[1]
	if got.SeasonID != "20242025" || got.OpponentAbbrev != "CGY" || got.HomeRoadFlag != "R" || got.Goals != 2 || got.Assists != 0 {
		t.Errorf("entry = %+v", got)
	}
}

func TestGameLog_Non200(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("server error"))
	})
	_, err := c.GameLog(context.Background(), 1, "20242025")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "nhl api status 500: server error") {
		t.Errorf("err = %v", err)
	}
}

func TestClubSchedule(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/club-schedule-season/EDM/now" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"games":[
			{"id":3,"gameType":2,"gameDate":"2024-10-12","gameState":"OFF","homeTeam":{"abbrev":"CGY"},"awayTeam":{"abbrev":"EDM"}},
			{"id":1,"gameType":1,"gameDate":"2024-09-28","gameState":"OFF","homeTeam":{"abbrev":"EDM"},"awayTeam":{"abbrev":"SEA"}},
			{"id":2,"gameType":2,"gameDate":"2024-10-09","gameState":"OFF","homeTeam":{"abbrev":"EDM"},"awayTeam":{"abbrev":"WPG"}},
			{"id":4,"gameType":2,"gameDate":"2025-04-16","gameState":"FUT","homeTeam":{"abbrev":"SJS"},"awayTeam":{"abbrev":"EDM"}}
		]}`))
	})
	games, err := c.ClubSchedule(context.Background(), "edm")
	if err != nil {
		t.Fatalf("ClubSchedule: %v", err)
	}
	want := []ScheduleGame{
		{GameID: 2, GameDate: "2024-10-09", OpponentAbbrev: "WPG", HomeRoadFlag: "H", GameState: "OFF"},
		{GameID: 3, GameDate: "2024-10-12", OpponentAbbrev: "CGY", HomeRoadFlag: "R", GameState: "OFF"},
		{GameID: 4, GameDate: "2025-04-16", OpponentAbbrev: "SJS", HomeRoadFlag: "R", GameState: "FUT"},
	}
	if len(games) != len(want) {
		t.Fatalf("games = %+v", games)
	}
	for i := range want {
		if games[i] != want[i] {
			t.Errorf("game %d = %+v; want %+v", i, games[i], want[i])
		}
	}
}
