// Package httpadapter exposes the ask/search pipeline and session history
// over HTTP. Authentication happens upstream; handlers trust the
// gateway-injected X-User-Id header for session ownership checks.
package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/config"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/observability/metrics"
)

const (
	userIDHeader   = "X-User-Id"
	maxRequestBody = 1 << 20
)

type AskService interface {
	Ask(ctx context.Context, req domain.AskRequest) (*domain.AskResult, error)
}

type SearchService interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error)
}

type SessionService interface {
	History(ctx context.Context, userID, sessionID string, limit, offset int) ([]domain.Turn, error)
	RoutingHistory(ctx context.Context, userID, sessionID string) ([]domain.RoutingDecision, error)
	Reset(ctx context.Context, userID, sessionID string) error
}

type Router struct {
	cfg      config.Config
	ask      AskService
	search   SearchService
	sessions SessionService
	metrics  *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	ask AskService,
	search SearchService,
	sessions SessionService,
	m *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:      cfg,
		ask:      ask,
		search:   search,
		sessions: sessions,
		metrics:  m,
	}
}

// Handler builds the middleware chain. Traffic control guards only the /v1
// API surface; health and metrics endpoints stay reachable under overload.
func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/ask", rt.handleAsk)
	api.HandleFunc("POST /v1/search", rt.handleSearch)
	api.HandleFunc("GET /v1/sessions/{session_id}/history", rt.handleHistory)
	api.HandleFunc("GET /v1/sessions/{session_id}/routing", rt.handleRoutingHistory)
	api.HandleFunc("DELETE /v1/sessions/{session_id}", rt.handleReset)

	var apiHandler http.Handler = api
	if rt.cfg.APIMaxConcurrent > 0 {
		wait := time.Duration(rt.cfg.APIBackpressureWaitMS) * time.Millisecond
		if wait <= 0 {
			wait = 200 * time.Millisecond
		}
		apiHandler = backpressureMiddleware(apiHandler, rt.cfg.APIMaxConcurrent, wait)
	}
	if rt.cfg.APIRateLimitRPS > 0 {
		apiHandler = rateLimitMiddleware(apiHandler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	}

	root := http.NewServeMux()
	root.Handle("/v1/", apiHandler)
	root.HandleFunc("GET /healthz", rt.handleHealthz)
	if rt.metrics != nil {
		root.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = root
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) handleAsk(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req domain.AskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = r.Header.Get(userIDHeader)
	}

	result, err := rt.ask.Ask(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, "ask", err)
		return
	}
	if rt.metrics != nil {
		outcome := ""
		if result.Degraded {
			outcome = result.DegradedReason
		}
		rt.metrics.RecordAnswer(outcome, len(result.Passages), time.Since(started))
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req domain.SearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := rt.search.Search(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "X-User-Id header is required"})
		return
	}
	limit, ok := queryInt(w, r, "limit", 50)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}

	turns, err := rt.sessions.History(r.Context(), userID, sessionID, limit, offset)
	if err != nil {
		rt.writeError(w, r, "session_history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"turns":      turns,
	})
}

func (rt *Router) handleRoutingHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "X-User-Id header is required"})
		return
	}

	decisions, err := rt.sessions.RoutingHistory(r.Context(), userID, sessionID)
	if err != nil {
		rt.writeError(w, r, "routing_history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"decisions":  decisions,
	})
}

func (rt *Router) handleReset(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "X-User-Id header is required"})
		return
	}

	if err := rt.sessions.Reset(r.Context(), userID, sessionID); err != nil {
		rt.writeError(w, r, "session_reset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"op", op,
			"request_id", requestIDFromContext(r.Context()),
			"status", status,
			"error", err,
		)
		writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return false
	}
	return true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": name + " must be an integer"})
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
