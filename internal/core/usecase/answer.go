package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/ports"
)

const maxQueryChars = 2000

const noGroundingAnswer = "I could not find passages covering this question in the indexed customs sources. Please rephrase or narrow the question, for example with a law name, article number or HS code."

const degradedServiceAnswer = "The answer service is temporarily degraded and a grounded answer could not be produced. Please try again shortly."

type AskConfig struct {
	TopK              int
	MaxHistory        int
	SpecialistTimeout time.Duration
	AnswerMaxTokens   int
	SessionCacheTTL   time.Duration
}

// AskUseCase runs the full pipeline for one question: validate, load
// bounded memory, route, generate the filter, retrieve, answer, persist
// both turns. Input validation happens before any external call. Degraded
// stages produce a natural-language answer flagged internally, never an
// error response.
type AskUseCase struct {
	normalizer  *Normalizer
	filters     *FilterGenerator
	retriever   *CascadingRetriever
	router      *Router
	specialists *SpecialistSet
	sessions    ports.SessionStore
	cache       ports.CacheStore
	completions ports.CompletionService
	events      ports.EventBus
	cfg         AskConfig
}

func NewAskUseCase(
	normalizer *Normalizer,
	filters *FilterGenerator,
	retriever *CascadingRetriever,
	router *Router,
	specialists *SpecialistSet,
	sessions ports.SessionStore,
	cache ports.CacheStore,
	completions ports.CompletionService,
	events ports.EventBus,
	cfg AskConfig,
) *AskUseCase {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 20
	}
	if cfg.SpecialistTimeout <= 0 {
		cfg.SpecialistTimeout = 60 * time.Second
	}
	if cfg.AnswerMaxTokens <= 0 {
		cfg.AnswerMaxTokens = 900
	}
	if cfg.SessionCacheTTL <= 0 {
		cfg.SessionCacheTTL = 5 * time.Minute
	}
	return &AskUseCase{
		normalizer:  normalizer,
		filters:     filters,
		retriever:   retriever,
		router:      router,
		specialists: specialists,
		sessions:    sessions,
		cache:       cache,
		completions: completions,
		events:      events,
		cfg:         cfg,
	}
}

func (uc *AskUseCase) Ask(ctx context.Context, req domain.AskRequest) (*domain.AskResult, error) {
	started := time.Now()

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("user_id is required"))
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("query is required"))
	}
	if len(query) > maxQueryChars {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("query exceeds %d characters", maxQueryChars))
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if _, err := uc.sessions.EnsureSession(ctx, userID, sessionID); err != nil {
		return nil, fmt.Errorf("ensure session: %w", err)
	}

	userTurn := domain.Turn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   query,
		CreatedAt: time.Now().UTC(),
	}
	if err := uc.sessions.AppendTurn(ctx, userTurn); err != nil {
		return nil, fmt.Errorf("append user turn: %w", err)
	}

	memory := uc.loadMemory(ctx, sessionID, userTurn)

	specCtx, cancel := context.WithTimeout(ctx, uc.cfg.SpecialistTimeout)
	defer cancel()

	decision, state := uc.router.Route(specCtx, sessionID, memory)
	if state != domain.StateRouted {
		slog.Warn("routing_not_routed", "session_id", sessionID, "state", string(state))
	}
	profile := uc.profileFor(decision.Specialist)
	sctx := profile.Context

	intent := uc.normalizer.ExtractIntent(specCtx, query)
	filter, confidence := uc.filters.Generate(specCtx, query, intent, &sctx)
	filter = filter.FillMissing(profile.BaseFilter)

	passages := uc.retriever.Retrieve(specCtx, query, uc.cfg.TopK, filter, confidence, &sctx)

	answerText, degraded, reason := uc.generateAnswer(specCtx, profile, query, passages, memory)

	assistantTurn := domain.Turn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Content:   answerText,
		CreatedAt: time.Now().UTC(),
	}
	if err := uc.sessions.AppendTurn(ctx, assistantTurn); err != nil {
		// The answer is already produced; losing the log entry must not
		// lose the answer.
		slog.Error("append_assistant_turn_failed", "session_id", sessionID, "error", err)
	}
	uc.updateSessionCache(ctx, sessionID, append(memory, assistantTurn))

	if uc.events != nil {
		event := domain.AnswerEvent{
			SessionID:      sessionID,
			Specialist:     decision.Specialist,
			Degraded:       degraded,
			DegradedReason: reason,
			PassageCount:   len(passages),
			LatencyMS:      time.Since(started).Milliseconds(),
			CreatedAt:      time.Now().UTC(),
		}
		if err := uc.events.PublishAnswerCompleted(ctx, event); err != nil {
			slog.Warn("answer_event_publish_failed", "error", err)
		}
	}

	return &domain.AskResult{
		SessionID:      sessionID,
		Answer:         answerText,
		Specialist:     decision.Specialist,
		Passages:       passages,
		Decision:       decision,
		Degraded:       degraded,
		DegradedReason: reason,
	}, nil
}

func (uc *AskUseCase) profileFor(name domain.Specialist) SpecialistProfile {
	if p, ok := uc.specialists.Get(name); ok {
		return p
	}
	return uc.specialists.General()
}

// loadMemory returns the bounded conversation including latest. The cached
// copy from the previous turn avoids a store read; the store stays the
// source of truth on a miss.
func (uc *AskUseCase) loadMemory(ctx context.Context, sessionID string, latest domain.Turn) []domain.Turn {
	if cached, ok := uc.cachedSession(ctx, sessionID); ok {
		return domain.TrimTurns(append(cached, latest), uc.cfg.MaxHistory)
	}
	stored, err := uc.sessions.ListRecentTurns(ctx, sessionID, uc.cfg.MaxHistory)
	if err != nil {
		slog.Warn("session_history_load_failed", "session_id", sessionID, "error", err)
		return []domain.Turn{latest}
	}
	return domain.TrimTurns(stored, uc.cfg.MaxHistory)
}

func (uc *AskUseCase) cachedSession(ctx context.Context, sessionID string) ([]domain.Turn, bool) {
	if uc.cache == nil {
		return nil, false
	}
	data, err := uc.cache.Get(ctx, sessionContextKey(sessionID))
	if err != nil {
		if !domain.IsKind(err, domain.ErrCacheMiss) {
			slog.Debug("session_cache_error", "error", err)
		}
		return nil, false
	}
	var turns []domain.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, false
	}
	return turns, true
}

func (uc *AskUseCase) updateSessionCache(ctx context.Context, sessionID string, turns []domain.Turn) {
	if uc.cache == nil {
		return
	}
	turns = domain.TrimTurns(turns, uc.cfg.MaxHistory)
	data, err := json.Marshal(turns)
	if err != nil {
		return
	}
	if err := uc.cache.Set(ctx, sessionContextKey(sessionID), data, uc.cfg.SessionCacheTTL); err != nil {
		slog.Debug("session_cache_error", "error", err)
	}
}

func sessionContextKey(sessionID string) string {
	return "sessionctx:" + sessionID
}

func (uc *AskUseCase) generateAnswer(
	ctx context.Context,
	profile SpecialistProfile,
	query string,
	passages []domain.CandidatePassage,
	memory []domain.Turn,
) (string, bool, string) {
	if len(passages) == 0 {
		return noGroundingAnswer, true, "no_grounding"
	}
	text, err := uc.completions.Complete(ctx, profile.SystemPrompt, buildAnswerPrompt(query, passages, memory), 0.3, uc.cfg.AnswerMaxTokens)
	if err != nil {
		slog.Error("answer_generation_failed", "specialist", string(profile.Name), "error", err)
		return degradedServiceAnswer, true, "completion_failed"
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return degradedServiceAnswer, true, "empty_completion"
	}
	return text, false, ""
}

func buildAnswerPrompt(query string, passages []domain.CandidatePassage, memory []domain.Turn) string {
	var b strings.Builder
	b.WriteString("Passages:\n")
	for i, p := range passages {
		fmt.Fprintf(&b, "[%d]", i+1)
		if law := p.Meta(domain.FieldLawName); law != "" {
			b.WriteString(" " + law)
			if article := p.Meta(domain.FieldArticle); article != "" {
				b.WriteString(" " + article)
			}
		}
		if src := p.Meta(domain.FieldSource); src != "" {
			b.WriteString(" (" + src + ")")
		}
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(p.Content))
		b.WriteString("\n")
	}
	// Prior turns give pronoun and follow-up context; the latest user turn
	// is the question itself.
	if len(memory) > 1 {
		prior := memory[:len(memory)-1]
		if len(prior) > 6 {
			prior = prior[len(prior)-6:]
		}
		b.WriteString("\nRecent conversation:\n")
		for _, t := range prior {
			b.WriteString(t.Role + ": " + strings.TrimSpace(t.Content) + "\n")
		}
	}
	b.WriteString("\nQuestion: " + query + "\n")
	b.WriteString("Answer from the passages above and cite them by number like [1].")
	return b.String()
}

// SearchUseCase exposes retrieval without answer generation, for debugging
// and tool surfaces.
type SearchUseCase struct {
	normalizer  *Normalizer
	filters     *FilterGenerator
	retriever   *CascadingRetriever
	specialists *SpecialistSet
}

func NewSearchUseCase(
	normalizer *Normalizer,
	filters *FilterGenerator,
	retriever *CascadingRetriever,
	specialists *SpecialistSet,
) *SearchUseCase {
	return &SearchUseCase{
		normalizer:  normalizer,
		filters:     filters,
		retriever:   retriever,
		specialists: specialists,
	}
}

func (uc *SearchUseCase) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("query is required"))
	}
	if len(query) > maxQueryChars {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("query exceeds %d characters", maxQueryChars))
	}

	var sctx *domain.SearchContext
	if req.AgentType != "" {
		if profile, ok := uc.specialists.Get(domain.Specialist(req.AgentType)); ok {
			c := profile.Context
			sctx = &c
		}
	}

	var filter domain.MetadataFilter
	var confidence float64
	if len(req.Filter) > 0 {
		explicit, dropped := domain.NewMetadataFilter(req.Filter)
		if len(dropped) > 0 {
			slog.Debug("filter_fields_dropped", "fields", dropped)
		}
		filter, confidence = explicit, 0.7
	} else {
		intent := uc.normalizer.ExtractIntent(ctx, query)
		filter, confidence = uc.filters.Generate(ctx, query, intent, sctx)
	}

	passages := uc.retriever.Retrieve(ctx, query, req.TopK, filter, confidence, sctx)
	return &domain.SearchResult{Query: query, Passages: passages}, nil
}
