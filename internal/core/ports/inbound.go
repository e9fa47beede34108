package ports

import (
	"context"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
)

// AskService is the inbound contract for the full question pipeline:
// classify, route, retrieve, answer, persist.
type AskService interface {
	Ask(ctx context.Context, req domain.AskRequest) (*domain.AskResult, error)
}

// SearchService exposes retrieval without answer generation.
type SearchService interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error)
}

// IntentService exposes the fail-soft normalization/classification surface.
// None of these operations raise; degraded calls return their input or the
// documented default record.
type IntentService interface {
	Normalize(ctx context.Context, raw string, sctx *domain.SearchContext) string
	ExpandSynonyms(ctx context.Context, normalized string) string
	ExtractIntent(ctx context.Context, raw string) domain.IntentRecord
}

// SessionService reads and resets per-session state.
type SessionService interface {
	History(ctx context.Context, userID, sessionID string, limit, offset int) ([]domain.Turn, error)
	RoutingHistory(ctx context.Context, userID, sessionID string) ([]domain.RoutingDecision, error)
	Reset(ctx context.Context, userID, sessionID string) error
}
