package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/ports"
)

// SessionUseCase reads and resets per-session state. Every operation
// verifies ownership first; an unknown session or a cross-user access is a
// specific non-retryable error, never a redirect to another session.
type SessionUseCase struct {
	sessions ports.SessionStore
	history  ports.RoutingHistoryStore
	cache    ports.CacheStore
}

func NewSessionUseCase(sessions ports.SessionStore, history ports.RoutingHistoryStore, cache ports.CacheStore) *SessionUseCase {
	return &SessionUseCase{sessions: sessions, history: history, cache: cache}
}

func (uc *SessionUseCase) History(ctx context.Context, userID, sessionID string, limit, offset int) ([]domain.Turn, error) {
	if err := uc.authorize(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return uc.sessions.ListTurns(ctx, sessionID, limit, offset)
}

func (uc *SessionUseCase) RoutingHistory(ctx context.Context, userID, sessionID string) ([]domain.RoutingDecision, error) {
	if err := uc.authorize(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return uc.history.ListDecisions(ctx, sessionID)
}

func (uc *SessionUseCase) Reset(ctx context.Context, userID, sessionID string) error {
	if err := uc.authorize(ctx, userID, sessionID); err != nil {
		return err
	}
	if err := uc.sessions.ResetSession(ctx, sessionID); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	if uc.cache != nil {
		if err := uc.cache.Del(ctx, sessionContextKey(sessionID)); err != nil {
			slog.Debug("session_cache_error", "error", err)
		}
	}
	return nil
}

func (uc *SessionUseCase) authorize(ctx context.Context, userID, sessionID string) error {
	if userID == "" || sessionID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "session access", fmt.Errorf("user_id and session_id are required"))
	}
	session, err := uc.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return domain.WrapError(domain.ErrSessionDenied, "session access", fmt.Errorf("session %s belongs to another user", sessionID))
	}
	return nil
}
