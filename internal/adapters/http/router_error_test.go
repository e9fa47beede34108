package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/config"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
)

func TestAskMapsInvalidInputTo400(t *testing.T) {
	ask := &fakeAsk{err: domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("query is required"))}
	handler := NewRouter(config.Config{}, ask, &fakeSearch{}, &fakeSessions{}, nil).Handler()

	req := postJSONRequest(t, "/v1/ask", map[string]string{"user_id": "alice", "query": ""})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestHistoryMapsUnknownSessionTo404(t *testing.T) {
	sessions := &fakeSessions{err: domain.WrapError(domain.ErrSessionNotFound, "get session", errors.New("id=missing"))}
	handler := NewRouter(config.Config{}, &fakeAsk{}, &fakeSearch{}, sessions, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/missing/history", nil)
	req.Header.Set("X-User-Id", "alice")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestResetMapsForeignSessionTo403(t *testing.T) {
	sessions := &fakeSessions{err: domain.WrapError(domain.ErrSessionDenied, "session access", errors.New("session s-1 belongs to another user"))}
	handler := NewRouter(config.Config{}, &fakeAsk{}, &fakeSearch{}, sessions, nil).Handler()

	req := httptest.NewRequest(http.MethodDelete, "/v1/sessions/s-1", nil)
	req.Header.Set("X-User-Id", "mallory")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
}

func TestAskMapsTemporaryTo503WithoutLeakingDetail(t *testing.T) {
	ask := &fakeAsk{err: domain.WrapError(domain.ErrTemporary, "ensure session", errors.New("dial tcp 10.0.0.5:5432: connect refused"))}
	handler := NewRouter(config.Config{}, ask, &fakeSearch{}, &fakeSessions{}, nil).Handler()

	req := postJSONRequest(t, "/v1/ask", map[string]string{"user_id": "alice", "query": "q"})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] != http.StatusText(http.StatusServiceUnavailable) {
		t.Fatalf("expected generic 503 message, got %q", resp["error"])
	}
}

func TestSearchMapsUnknownErrorTo500(t *testing.T) {
	search := &fakeSearch{err: errors.New("unexpected")}
	handler := NewRouter(config.Config{}, &fakeAsk{}, search, &fakeSessions{}, nil).Handler()

	req := postJSONRequest(t, "/v1/search", map[string]string{"query": "q"})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
}
