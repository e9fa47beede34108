package ports

import (
	"context"
	"time"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
)

// Embedder builds vectors for query text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex performs similarity and exact-match search over indexed
// passages. Hits carry raw distances; callers convert to similarity.
type VectorIndex interface {
	Search(ctx context.Context, vector []float32, k int, filter domain.MetadataFilter) ([]domain.IndexHit, error)
	FetchByIDs(ctx context.Context, ids []string) ([]domain.IndexHit, error)
	SearchExact(ctx context.Context, field, value string, k int) ([]domain.IndexHit, error)
}

// Schema names accepted by CompletionService.CompleteJSON.
const (
	SchemaQueryClassification  = "query_classification"
	SchemaFilterClassification = "filter_classification"
	SchemaRoutingDecision      = "routing_decision"
)

// CompletionService is the external text-generation capability.
// CompleteJSON validates the model output against the named schema and
// fails when the output does not parse or conform, so callers can treat
// malformed output exactly like a service failure.
type CompletionService interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error)
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt, schemaName string, temperature float64, maxTokens int) ([]byte, error)
}

// SessionStore persists sessions and their append-only turn log. ListTurns
// is ordered by turn time ascending; ListRecentTurns returns the newest
// limit turns, still in ascending order.
type SessionStore interface {
	EnsureSession(ctx context.Context, userID, sessionID string) (*domain.Session, error)
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	AppendTurn(ctx context.Context, turn domain.Turn) error
	ListTurns(ctx context.Context, sessionID string, limit, offset int) ([]domain.Turn, error)
	ListRecentTurns(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error)
	ResetSession(ctx context.Context, sessionID string) error
}

// RoutingHistoryStore persists the append-only routing history per session.
type RoutingHistoryStore interface {
	AppendDecision(ctx context.Context, decision domain.RoutingDecision) error
	ListDecisions(ctx context.Context, sessionID string) ([]domain.RoutingDecision, error)
	CountDecisions(ctx context.Context, sessionID string) (int, error)
}

// CacheStore is a shared key/value cache with per-key expiry. Get returns
// domain.ErrCacheMiss for absent or expired keys. Callers must always be
// able to recompute on a miss.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// ReferenceResolver maps a citation to passage identifiers.
type ReferenceResolver interface {
	Resolve(ctx context.Context, ref domain.Reference) ([]string, error)
}

// EventBus publishes and consumes routing/answer observability events.
type EventBus interface {
	PublishRoutingDecided(ctx context.Context, decision domain.RoutingDecision) error
	PublishAnswerCompleted(ctx context.Context, event domain.AnswerEvent) error
	SubscribeRoutingDecided(ctx context.Context, handler func(context.Context, domain.RoutingDecision) error) error
	SubscribeAnswerCompleted(ctx context.Context, handler func(context.Context, domain.AnswerEvent) error) error
}

// PipelineObserver records pipeline measurements for metrics export. A nil
// observer is valid and disables recording.
type PipelineObserver interface {
	CacheLookup(hit bool)
	RetrievalStage(stage string, results int)
	RetrievalQuality(score float64)
	RetrievalFallback(adopted bool)
	RouteDecided(specialist, source string, complexity float64)
}
