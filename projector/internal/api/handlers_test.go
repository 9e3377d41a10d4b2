package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"testing"

	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/projection"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/store"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/summary"
)

type memStore struct {
	artifacts map[string]*store.Artifact
	err       error
}

func (m *memStore) Load(ctx context.Context, player string) (*store.Artifact, error) {
	if m.err != nil {
		return nil, m.err
	}
	a, ok := m.artifacts[player]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, player)
	}
	return a, nil
}

func (m *memStore) List(ctx context.Context) ([]store.Entry, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []store.Entry
	for _, a := range m.artifacts {
		out = append(out, store.Entry{Player: a.Player, RunID: a.RunID, Summaries: a.Summaries})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Summaries["points"].Mean > out[j].Summaries["points"].Mean })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

func artifact(name string, points ...float64) *store.Artifact {
	s, _ := summary.Summarize(points, 0.9)
	return &store.Artifact{
		Player:      name,
		RunID:       "run-1",
		SeasonID:    "20242025",
		GamesPlayed: 40,
		Samples: projection.Samples{
			Goals:   points,
			Assists: make([]float64, len(points)),
			Points:  points,
		},
		Summaries: map[string]summary.Summary{"points": s},
	}
}

func newServer(t *testing.T, st ArtifactReader) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(NewHandler(st), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics\n"))
	}), nil))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string, into interface{}) int {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if into != nil {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv := newServer(t, &memStore{})
	var body map[string]string
	if code := get(t, srv, "/health", &body); code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("health = %d %v", code, body)
	}
	if code := get(t, srv, "/metrics", nil); code != http.StatusOK {
		t.Errorf("metrics = %d", code)
	}
}

func TestGetProjection(t *testing.T) {
	st := &memStore{artifacts: map[string]*store.Artifact{
		"Connor McDavid": artifact("Connor McDavid", 100, 110, 120),
	}}
	srv := newServer(t, st)

	var v ProjectionView
	code := get(t, srv, "/api/v1/projections/"+url.PathEscape("Connor McDavid"), &v)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if v.Player != "Connor McDavid" || v.Draws != 3 || v.Summaries["points"].Mean != 110 {
		t.Errorf("view = %+v", v)
	}

	var e ErrorResponse
	if code := get(t, srv, "/api/v1/projections/Nobody", &e); code != http.StatusNotFound || e.Code != 404 {
		t.Errorf("unknown player = %d %+v", code, e)
	}
}

func TestListProjections(t *testing.T) {
	srv := newServer(t, &memStore{})
	var body struct {
		Projections []store.Entry `json:"projections"`
		Count       int           `json:"count"`
	}
	if code := get(t, srv, "/api/v1/projections", &body); code != http.StatusOK || body.Count != 0 || body.Projections == nil {
		t.Errorf("empty list = %d %+v", code, body)
	}

	broken := newServer(t, &memStore{err: errors.New("disk gone")})
	if code := get(t, broken, "/api/v1/projections", nil); code != http.StatusInternalServerError {
		t.Errorf("store failure = %d; want 500", code)
	}
}

func TestListProjections_Leaderboard(t *testing.T) {
	srv := newServer(t, &memStore{artifacts: map[string]*store.Artifact{
		"Mid":    artifact("Mid", 60, 70),
		"Top":    artifact("Top", 110, 130),
		"Bottom": artifact("Bottom", 20, 30),
	}})
	var body struct {
		Projections []store.Entry `json:"projections"`
		Count       int           `json:"count"`
	}
	if code := get(t, srv, "/api/v1/projections?limit=2", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body.Count != 2 || body.Projections[0].Player != "Top" || body.Projections[1].Player != "Mid" {
		t.Errorf("top 2 = %+v", body.Projections)
	}
	if body.Projections[0].Rank != 1 || body.Projections[0].Summaries["points"].Mean != 120 {
		t.Errorf("leader = %+v", body.Projections[0])
	}
	for _, q := range []string{"limit=0", "limit=ten"} {
		if code := get(t, srv, "/api/v1/projections?"+q, nil); code != http.StatusBadRequest {
			t.Errorf("%s = %d; want 400", q, code)
		}
	}
}

func TestCompare(t *testing.T) {
	st := &memStore{artifacts: map[string]*store.Artifact{
		"A": artifact("A", 10, 20),
		"B": artifact("B", 15, 15),
	}}
	srv := newServer(t, st)

	var c ComparisonView
	if code := get(t, srv, "/api/v1/compare?a=A&b=B&stat=points", &c); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	// Only 20 > 15: two of four pairs.
	if c.Probability != 0.5 || c.Stat != "points" || c.MeanA != 15 || c.MeanB != 15 {
		t.Errorf("comparison = %+v", c)
	}

	cases := []struct {
		query string
		want  int
	}{
		{"a=A", http.StatusBadRequest},
		{"a=A&b=B&stat=saves", http.StatusBadRequest},
		{"a=A&b=Z", http.StatusNotFound},
	}
	for _, tc := range cases {
		if code := get(t, srv, "/api/v1/compare?"+tc.query, nil); code != tc.want {
			t.Errorf("%s: status = %d; want %d", tc.query, code, tc.want)
		}
	}
}
