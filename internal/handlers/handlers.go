package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Traviscatt/picknroll-sub000/internal/auth"
	"github.com/Traviscatt/picknroll-sub000/internal/clickhouse"
	"github.com/Traviscatt/picknroll-sub000/internal/dal"
	"github.com/Traviscatt/picknroll-sub000/internal/logger"
	"github.com/Traviscatt/picknroll-sub000/internal/metrics"
	"github.com/Traviscatt/picknroll-sub000/internal/models"
	"github.com/Traviscatt/picknroll-sub000/internal/pubsub"
	"github.com/Traviscatt/picknroll-sub000/internal/recalc"
	"github.com/Traviscatt/picknroll-sub000/internal/scoring"
)

// HistoryReader serves recorded score history
type HistoryReader interface {
	ScoreHistory(ctx context.Context, bracketID string) ([]clickhouse.ScorePoint, error)
}

// APIHandlers contains all API handler methods
type APIHandlers struct {
	dal     dal.PoolDAL
	recalc  *recalc.Service
	pubsub  *pubsub.PubSub
	history HistoryReader
	metrics *metrics.Metrics

	// keepalive is the SSE ping interval
	keepalive time.Duration
}

// NewAPIHandlers creates a new API handlers instance. history and m may be nil.
func NewAPIHandlers(d dal.PoolDAL, svc *recalc.Service, ps *pubsub.PubSub, history HistoryReader, m *metrics.Metrics) *APIHandlers {
	return &APIHandlers{
		dal:       d,
		recalc:    svc,
		pubsub:    ps,
		history:   history,
		metrics:   m,
		keepalive: 30 * time.Second,
	}
}

// Register mounts every route on mux. Admin routes go through guard.
func (h *APIHandlers) Register(mux *http.ServeMux, guard *auth.AdminGuard) {
	mux.HandleFunc("GET /api/rules", h.GetRules)
	mux.HandleFunc("GET /api/results", h.ListResults)
	mux.HandleFunc("POST /api/results", guard.Middleware(h.RecordResult))
	mux.HandleFunc("DELETE /api/results/{gameId}", guard.Middleware(h.ClearResult))

	mux.HandleFunc("GET /api/pools", h.ListPools)
	mux.HandleFunc("POST /api/pools", guard.Middleware(h.CreatePool))
	mux.HandleFunc("GET /api/pools/{id}/brackets", h.ListBrackets)
	mux.HandleFunc("PUT /api/pools/{id}/brackets", guard.Middleware(h.SaveBracket))
	mux.HandleFunc("GET /api/pools/{id}/leaderboard", h.GetLeaderboard)
	mux.HandleFunc("POST /api/pools/{id}/recalculate", guard.Middleware(h.Recalculate))

	mux.HandleFunc("GET /api/brackets/{id}/score", h.GetBracketScore)
	mux.HandleFunc("GET /api/brackets/{id}/history", h.GetBracketHistory)

	mux.HandleFunc("GET /api/events", h.EventsSSE)

	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("GET /healthz", h.Liveness)
	mux.HandleFunc("GET /readyz", h.Readiness)

	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeLookupError maps storage errors onto 404 or 500. The cause of a 500
// is logged and never sent to the client.
func writeLookupError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, dal.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	logger.Error("Request failed", "error", err, "resource", what)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// GetRules returns the active rule table
func (h *APIHandlers) GetRules(w http.ResponseWriter, r *http.Request) {
	table := h.recalc.Table()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rounds":         table.Rules(),
		"maxPointsTotal": table.MaxPointsTotal(),
	})
}

// ListResults returns every recorded game result
func (h *APIHandlers) ListResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.dal.ListResults()
	if err != nil {
		writeLookupError(w, err, "results")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// RecordResult stores or corrects the winner of a game
func (h *APIHandlers) RecordResult(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GameID string `json:"gameId"`
		Round  int    `json:"round"`
		Winner string `json:"winner"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("Failed to decode result request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.GameID = strings.TrimSpace(req.GameID)
	req.Winner = strings.TrimSpace(req.Winner)
	if req.GameID == "" || req.Winner == "" {
		writeError(w, http.StatusBadRequest, "gameId and winner are required")
		return
	}
	if _, ok := h.recalc.Table().Rule(req.Round); !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("round %d is not configured", req.Round))
		return
	}

	result, err := h.dal.RecordResult(models.GameResult{GameID: req.GameID, Round: req.Round, Winner: req.Winner})
	if err != nil {
		writeLookupError(w, err, "result")
		return
	}
	h.metrics.ObserveResult("admin")

	logger.Info("Result recorded", "game_id", result.GameID, "round", result.Round, "winner", result.Winner)
	h.pubsub.Publish(pubsub.Event{
		Type: pubsub.EventResultsRecorded,
		Payload: map[string]interface{}{
			"gameId": result.GameID,
			"round":  result.Round,
			"winner": result.Winner,
		},
	})

	writeJSON(w, http.StatusCreated, result)
}

// ClearResult removes a recorded result, returning the game to pending
func (h *APIHandlers) ClearResult(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("gameId")
	if err := h.dal.ClearResult(gameID); err != nil {
		writeLookupError(w, err, "result")
		return
	}

	logger.Info("Result cleared", "game_id", gameID)
	h.pubsub.Publish(pubsub.Event{
		Type:    pubsub.EventResultsCleared,
		Payload: map[string]interface{}{"gameId": gameID},
	})

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ListPools returns every pool
func (h *APIHandlers) ListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := h.dal.ListPools()
	if err != nil {
		writeLookupError(w, err, "pools")
		return
	}
	writeJSON(w, http.StatusOK, pools)
}

// CreatePool adds an empty pool
func (h *APIHandlers) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("Failed to decode pool request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	pool, err := h.dal.CreatePool(name)
	if err != nil {
		writeLookupError(w, err, "pool")
		return
	}
	logger.Info("Pool created", "poolId", pool.ID, "name", pool.Name)
	writeJSON(w, http.StatusCreated, pool)
}

// ListBrackets returns every bracket stored in a pool
func (h *APIHandlers) ListBrackets(w http.ResponseWriter, r *http.Request) {
	poolID := r.PathValue("id")
	if _, err := h.dal.GetPool(poolID); err != nil {
		writeLookupError(w, err, "pool")
		return
	}

	brackets, err := h.dal.ListBrackets(poolID)
	if err != nil {
		writeLookupError(w, err, "brackets")
		return
	}
	writeJSON(w, http.StatusOK, brackets)
}

type bracketRequest struct {
	ID        string         `json:"id"`
	OwnerName string         `json:"ownerName"`
	Name      string         `json:"name"`
	Picks     []scoring.Pick `json:"picks"`
	Submitted bool           `json:"submitted"`
}

// SaveBracket creates a bracket in the pool, or replaces one when the body
// names an existing id. Picks are checked against the rule table before
// anything is written, and the pool is rescored afterwards.
func (h *APIHandlers) SaveBracket(w http.ResponseWriter, r *http.Request) {
	poolID := r.PathValue("id")

	var req bracketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("Failed to decode bracket request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.ID = strings.TrimSpace(req.ID)
	req.Name = strings.TrimSpace(req.Name)
	req.OwnerName = strings.TrimSpace(req.OwnerName)
	if req.Name == "" || req.OwnerName == "" {
		writeError(w, http.StatusBadRequest, "name and ownerName are required")
		return
	}
	if err := h.recalc.Table().ValidatePicks(req.Picks); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status := http.StatusCreated
	if req.ID != "" {
		existing, err := h.dal.GetBracket(req.ID)
		switch {
		case err == nil && existing.PoolID != poolID:
			writeError(w, http.StatusConflict, "bracket belongs to another pool")
			return
		case err == nil:
			status = http.StatusOK
		case !errors.Is(err, dal.ErrNotFound):
			writeLookupError(w, err, "bracket")
			return
		}
	}

	saved, err := h.dal.SaveBracket(&models.Bracket{
		ID:        req.ID,
		PoolID:    poolID,
		OwnerName: req.OwnerName,
		Name:      req.Name,
		Picks:     normalizePicks(req.Picks),
		Submitted: req.Submitted,
	})
	if err != nil {
		writeLookupError(w, err, "pool")
		return
	}
	logger.Info("Bracket saved", "bracketId", saved.ID, "poolId", poolID, "picks", len(saved.Picks), "submitted", saved.Submitted)

	if _, err := h.recalc.Recalculate(r.Context(), poolID); err != nil {
		logger.Warn("Rescoring after bracket save failed", "poolId", poolID, "error", err)
	} else if fresh, err := h.dal.GetBracket(saved.ID); err == nil {
		saved = fresh
	}

	writeJSON(w, status, saved)
}

func normalizePicks(picks []scoring.Pick) []scoring.Pick {
	out := make([]scoring.Pick, len(picks))
	for i, p := range picks {
		choices := make([]string, len(p.RankedChoices))
		for j, c := range p.RankedChoices {
			choices[j] = strings.TrimSpace(c)
		}
		out[i] = scoring.Pick{GameID: strings.TrimSpace(p.GameID), Round: p.Round, RankedChoices: choices}
	}
	return out
}

// GetLeaderboard returns the standings of a pool
func (h *APIHandlers) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	poolID := r.PathValue("id")
	entries, err := h.dal.Leaderboard(poolID)
	if err != nil {
		writeLookupError(w, err, "pool")
		return
	}

	writeJSON(w, http.StatusOK, models.Leaderboard{
		PoolID:    poolID,
		MaxPoints: h.recalc.Table().MaxPointsTotal(),
		Entries:   entries,
	})
}

// Recalculate rescores a pool on demand
func (h *APIHandlers) Recalculate(w http.ResponseWriter, r *http.Request) {
	poolID := r.PathValue("id")
	summary, err := h.recalc.Recalculate(r.Context(), poolID)
	if err != nil {
		writeLookupError(w, err, "pool")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetBracketScore returns the live breakdown of one bracket
func (h *APIHandlers) GetBracketScore(w http.ResponseWriter, r *http.Request) {
	score, err := h.recalc.BracketScore(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLookupError(w, err, "bracket")
		return
	}
	writeJSON(w, http.StatusOK, score)
}

// GetBracketHistory returns the totals recorded after each recalculation
func (h *APIHandlers) GetBracketHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "score history is not configured")
		return
	}

	bracketID := r.PathValue("id")
	if _, err := h.dal.GetBracket(bracketID); err != nil {
		writeLookupError(w, err, "bracket")
		return
	}

	points, err := h.history.ScoreHistory(r.Context(), bracketID)
	if err != nil {
		writeLookupError(w, err, "history")
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// EventsSSE provides Server-Sent Events for realtime updates. The optional
// poolId query parameter limits the stream to one pool plus global events.
func (h *APIHandlers) EventsSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	eventChan := h.pubsub.SubscribePool(r.URL.Query().Get("poolId"))
	defer h.pubsub.Unsubscribe(eventChan)

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	fmt.Fprintf(w, "data: {\"type\":\"connected\"}\n\n")
	flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Error("Failed to marshal SSE event", "error", err, "type", event.Type)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flush()
		case <-r.Context().Done():
			logger.Debug("SSE client disconnected")
			return
		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flush()
		}
	}
}
