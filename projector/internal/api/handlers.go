// Package api serves stored projections over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"gonum.org/v1/gonum/stat"

	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/projection"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/store"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/summary"
)

// ArtifactReader is the part of the store the API needs.
type ArtifactReader interface {
	Load(ctx context.Context, player string) (*store.Artifact, error)
	List(ctx context.Context) ([]store.Entry, error)
}

// Handler holds the API's dependencies.
type Handler struct {
	store   ArtifactReader
	timeout time.Duration
}

// NewHandler creates a handler reading from st.
func NewHandler(st ArtifactReader) *Handler {
	return &Handler{store: st, timeout: 5 * time.Second}
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// ProjectionView is the single-player reply: the artifact minus raw draws.
type ProjectionView struct {
	Player         string                     `json:"player"`
	RunID          string                     `json:"runId"`
	CreatedAt      time.Time                  `json:"createdAt"`
	SeasonID       string                     `json:"seasonId"`
	GamesPlayed    int                        `json:"gamesPlayed"`
	GamesRemaining int                        `json:"gamesRemaining"`
	GoalsToDate    int                        `json:"goalsToDate"`
	AssistsToDate  int                        `json:"assistsToDate"`
	Draws          int                        `json:"draws"`
	Summaries      map[string]summary.Summary `json:"summaries"`
	MaxRhat        float64                    `json:"maxRhat,omitempty"`
	Divergences    int                        `json:"divergences,omitempty"`
}

// ComparisonView answers P(A > B) for one stat.
type ComparisonView struct {
	A           string  `json:"a"`
	B           string  `json:"b"`
	Stat        string  `json:"stat"`
	Probability float64 `json:"probability"`
	MeanA       float64 `json:"meanA"`
	MeanB       float64 `json:"meanB"`
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "projector",
	})
}

// ListProjections returns the stored players ranked by expected points.
// ?limit=N keeps the top N.
func (h *Handler) ListProjections(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = n
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	entries, err := h.store.List(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list projections", err)
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"projections": entries,
		"count":       len(entries),
	})
}

// GetProjection returns one player's projection.
func (h *Handler) GetProjection(w http.ResponseWriter, r *http.Request) {
	player := strings.TrimSpace(chi.URLParam(r, "player"))
	if player == "" {
		respondError(w, http.StatusBadRequest, "player is required", nil)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	a, ok := h.load(ctx, w, player)
	if !ok {
		return
	}
	v := ProjectionView{
		Player:         a.Player,
		RunID:          a.RunID,
		CreatedAt:      a.CreatedAt,
		SeasonID:       a.SeasonID,
		GamesPlayed:    a.GamesPlayed,
		GamesRemaining: len(a.Remaining),
		GoalsToDate:    a.Totals.Goals,
		AssistsToDate:  a.Totals.Assists,
		Draws:          a.Samples.Len(),
		Summaries:      a.Summaries,
	}
	if a.Posterior != nil {
		v.MaxRhat = a.Posterior.Diagnostics.MaxRhat
		v.Divergences = a.Posterior.Diagnostics.Divergences
	}
	respondJSON(w, http.StatusOK, v)
}

// Compare returns P(A > B) on ?stat= (points by default).
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	nameA, nameB := strings.TrimSpace(q.Get("a")), strings.TrimSpace(q.Get("b"))
	if nameA == "" || nameB == "" {
		respondError(w, http.StatusBadRequest, "both a and b are required", nil)
		return
	}
	which, err := projection.ParseStat(q.Get("stat"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	a, ok := h.load(ctx, w, nameA)
	if !ok {
		return
	}
	b, ok := h.load(ctx, w, nameB)
	if !ok {
		return
	}
	sa, sb := a.Samples.Select(which), b.Samples.Select(which)
	p, err := summary.Compare(sa, sb)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "projection has no samples", err)
		return
	}
	respondJSON(w, http.StatusOK, ComparisonView{
		A:           a.Player,
		B:           b.Player,
		Stat:        which.String(),
		Probability: p,
		MeanA:       stat.Mean(sa, nil),
		MeanB:       stat.Mean(sb, nil),
	})
}

func (h *Handler) load(ctx context.Context, w http.ResponseWriter, player string) (*store.Artifact, bool) {
	a, err := h.store.Load(ctx, player)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "no projection for "+player, nil)
		return nil, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load projection", err)
		return nil, false
	}
	return a, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		slog.Error(message, "error", err)
	}
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}
