package nhl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	BaseURL         = "https://api-web.nhle.com"
	gameLogPathFmt  = "/v1/player/%d/game-log/%s/%d" // playerID, seasonID, gameTypeID
	schedulePathFmt = "/v1/club-schedule-season/%s/now"
	GameTypeRegular = 2
)

// Client for the free NHL API (game logs, club schedules).
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient returns a client with default timeout.
func NewClient() *Client {
	return &Client{httpClient: &http.Client{Timeout: 15 * time.Second}, baseURL: BaseURL}
}

// GameLogEntry is one regular-season game in a player's log.
type GameLogEntry struct {
	GameID         int    `json:"gameId"`
	SeasonID       string `json:"seasonId"`
	GameDate       string `json:"gameDate"`
	OpponentAbbrev string `json:"opponentAbbrev"`
	HomeRoadFlag   string `json:"homeRoadFlag"` // "H" or "R"
	Goals          int    `json:"goals"`
	Assists        int    `json:"assists"`
}

// ScheduleGame is one game of a club's current regular season.
type ScheduleGame struct {
	GameID         int64  `json:"gameId"`
	GameDate       string `json:"gameDate"`
	OpponentAbbrev string `json:"opponentAbbrev"`
	HomeRoadFlag   string `json:"homeRoadFlag"`
	GameState      string `json:"gameState"`
}

// GameLog fetches a player's regular-season game log for one season
// (e.g. "20242025").
func (c *Client) GameLog(ctx context.Context, playerID int, seasonID string) ([]GameLogEntry, error) {
	var out struct {
		GameLog []struct {
			GameID         int    `json:"gameId"`
			GameDate       string `json:"gameDate"`
			OpponentAbbrev string `json:"opponentAbbrev"`
			HomeRoadFlag   string `json:"homeRoadFlag"`
			Goals          int    `json:"goals"`
			Assists        int    `json:"assists"`
		} `json:"gameLog"`
	}
	if err := c.get(ctx, fmt.Sprintf(gameLogPathFmt, playerID, seasonID, GameTypeRegular), &out); err != nil {
		return nil, fmt.Errorf("game log %d/%s: %w", playerID, seasonID, err)
	}
	entries := make([]GameLogEntry, 0, len(out.GameLog))
	for _, g := range out.GameLog {
		entries = append(entries, GameLogEntry{
			GameID:         g.GameID,
			SeasonID:       seasonID,
			GameDate:       g.GameDate,
			OpponentAbbrev: g.OpponentAbbrev,
			HomeRoadFlag:   g.HomeRoadFlag,
			Goals:          g.Goals,
			Assists:        g.Assists,
		})
	}
	return entries, nil
}

// ClubSchedule fetches the club's current-season regular-season games in
// date order, seen from team's side.
func (c *Client) ClubSchedule(ctx context.Context, team string) ([]ScheduleGame, error) {
	team = strings.ToUpper(strings.TrimSpace(team))
	var sched struct {
		Games []struct {
			ID        int64  `json:"id"`
			GameType  int    `json:"gameType"`
			GameDate  string `json:"gameDate"`
			GameState string `json:"gameState"`
			HomeTeam  struct {
				Abbrev string `json:"abbrev"`
			} `json:"homeTeam"`
			AwayTeam struct {
				Abbrev string `json:"abbrev"`
			} `json:"awayTeam"`
		} `json:"games"`
	}
	if err := c.get(ctx, fmt.Sprintf(schedulePathFmt, team), &sched); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", team, err)
	}
	var games []ScheduleGame
	for _, g := range sched.Games {
		if g.GameType != GameTypeRegular {
			continue
		}
		sg := ScheduleGame{GameID: g.ID, GameDate: g.GameDate, GameState: g.GameState}
		switch team {
		case g.HomeTeam.Abbrev:
			sg.OpponentAbbrev, sg.HomeRoadFlag = g.AwayTeam.Abbrev, "H"
		case g.AwayTeam.Abbrev:
			sg.OpponentAbbrev, sg.HomeRoadFlag = g.HomeTeam.Abbrev, "R"
		default:
			continue
		}
		games = append(games, sg)
	}
	sort.SliceStable(games, func(i, j int) bool { return games[i].GameDate < games[j].GameDate })
	return games, nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("nhl api status %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
