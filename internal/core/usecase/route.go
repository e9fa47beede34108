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

type routingClassification struct {
	Specialist       string  `json:"specialist"`
	Reasoning        string  `json:"reasoning"`
	Complexity       float64 `json:"complexity"`
	RequiresMultiple bool    `json:"requires_multiple"`
}

type RouterConfig struct {
	CallTimeout       time.Duration
	ComplexityCeiling float64
	KeywordFloor      float64
	HistoryAdvisory   int
}

// Router selects the specialist that owns a query. Classification failure
// falls back to per-specialist keyword scoring; a most-recent assistant
// turn ends the session so the router never routes its own output. Every
// decision is appended to the routing history before the specialist runs.
type Router struct {
	completions ports.CompletionService
	history     ports.RoutingHistoryStore
	events      ports.EventBus
	observer    ports.PipelineObserver
	specialists *SpecialistSet
	cfg         RouterConfig
}

func NewRouter(
	completions ports.CompletionService,
	history ports.RoutingHistoryStore,
	events ports.EventBus,
	observer ports.PipelineObserver,
	specialists *SpecialistSet,
	cfg RouterConfig,
) *Router {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.ComplexityCeiling <= 0 {
		cfg.ComplexityCeiling = 0.7
	}
	if cfg.KeywordFloor <= 0 {
		cfg.KeywordFloor = 0.4
	}
	if cfg.HistoryAdvisory <= 0 {
		cfg.HistoryAdvisory = 3
	}
	return &Router{
		completions: completions,
		history:     history,
		events:      events,
		observer:    observer,
		specialists: specialists,
		cfg:         cfg,
	}
}

func (r *Router) Route(ctx context.Context, sessionID string, turns []domain.Turn) (domain.RoutingDecision, domain.SessionState) {
	none := domain.RoutingDecision{SessionID: sessionID, Specialist: domain.SpecialistNone}
	if len(turns) == 0 {
		return none, domain.StateAwaitingQuery
	}
	if turns[len(turns)-1].Role == domain.RoleAssistant {
		slog.Debug("routing_session_ended", "session_id", sessionID)
		return none, domain.StateEnded
	}
	query, ok := latestUserTurn(turns)
	if !ok {
		return none, domain.StateAwaitingQuery
	}

	var decision domain.RoutingDecision
	rc, err := r.classifyRoute(ctx, query)
	if err != nil {
		slog.Warn("routing_classification_failed", "error", err)
		specialist, score := r.keywordRoute(query)
		decision = domain.RoutingDecision{
			Specialist: specialist,
			Reasoning:  fmt.Sprintf("keyword fallback, score %.2f", score),
			Source:     domain.DecisionSourceKeyword,
		}
	} else {
		decision = domain.RoutingDecision{
			Specialist:       domain.Specialist(rc.Specialist),
			Reasoning:        rc.Reasoning,
			Complexity:       rc.Complexity,
			RequiresMultiple: rc.RequiresMultiple,
			Source:           domain.DecisionSourceLLM,
		}
		if decision.RequiresMultiple && decision.Complexity > r.cfg.ComplexityCeiling {
			// Multi-specialist fan-out is a future extension; complex
			// queries still run on the single top specialist and are only
			// tagged, with recent history attached as advisory context.
			decision.Complex = true
			r.annotateComplex(ctx, sessionID, &decision)
		}
	}

	decision.ID = uuid.NewString()
	decision.SessionID = sessionID
	decision.CreatedAt = time.Now().UTC()
	decision.Step = r.nextStep(ctx, sessionID)

	if err := r.history.AppendDecision(ctx, decision); err != nil {
		slog.Error("routing_history_append_failed", "session_id", sessionID, "error", err)
	}
	if r.events != nil {
		if err := r.events.PublishRoutingDecided(ctx, decision); err != nil {
			slog.Warn("routing_event_publish_failed", "error", err)
		}
	}
	if r.observer != nil {
		r.observer.RouteDecided(string(decision.Specialist), string(decision.Source), decision.Complexity)
	}
	return decision, domain.StateRouted
}

func (r *Router) classifyRoute(ctx context.Context, query string) (routingClassification, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	data, err := r.completions.CompleteJSON(callCtx, routeSystemPrompt(r.specialists.Catalog()), "Query: "+query, ports.SchemaRoutingDecision, 0.2, 400)
	if err != nil {
		return routingClassification{}, err
	}
	var rc routingClassification
	if err := json.Unmarshal(data, &rc); err != nil {
		return routingClassification{}, fmt.Errorf("decode routing decision: %w", err)
	}
	specialist := domain.Specialist(strings.ToLower(strings.TrimSpace(rc.Specialist)))
	if !domain.KnownSpecialist(specialist) {
		return routingClassification{}, fmt.Errorf("unknown specialist %q", rc.Specialist)
	}
	rc.Specialist = string(specialist)
	if rc.Complexity < 0 {
		rc.Complexity = 0
	}
	if rc.Complexity > 1 {
		rc.Complexity = 1
	}
	return rc, nil
}

// keywordRoute scores the query against each specialist's keyword table.
// A tie, or all scores under the floor, routes to the general specialist.
func (r *Router) keywordRoute(query string) (domain.Specialist, float64) {
	tokens := toTokenSet(query)
	best := domain.SpecialistGeneral
	bestScore := 0.0
	tie := false
	for _, name := range r.specialists.Names() {
		profile, ok := r.specialists.Get(name)
		if !ok || len(profile.RouteKeywords) == 0 {
			continue
		}
		score := 0.0
		for keyword, weight := range profile.RouteKeywords {
			if phraseHit(tokens, keyword) {
				score += weight
			}
		}
		if score > 1 {
			score = 1
		}
		switch {
		case score > bestScore:
			best, bestScore, tie = name, score, false
		case score == bestScore && score > 0:
			tie = true
		}
	}
	if tie || bestScore < r.cfg.KeywordFloor {
		return domain.SpecialistGeneral, bestScore
	}
	return best, bestScore
}

func (r *Router) annotateComplex(ctx context.Context, sessionID string, decision *domain.RoutingDecision) {
	decisions, err := r.history.ListDecisions(ctx, sessionID)
	if err != nil {
		slog.Debug("routing_history_read_failed", "error", err)
		return
	}
	if len(decisions) == 0 {
		return
	}
	if len(decisions) > r.cfg.HistoryAdvisory {
		decisions = decisions[len(decisions)-r.cfg.HistoryAdvisory:]
	}
	recent := make([]string, 0, len(decisions))
	for _, d := range decisions {
		recent = append(recent, string(d.Specialist))
	}
	decision.Reasoning = strings.TrimSpace(decision.Reasoning) +
		" [complex query; recent specialists: " + strings.Join(recent, ", ") + "]"
}

func (r *Router) nextStep(ctx context.Context, sessionID string) int {
	count, err := r.history.CountDecisions(ctx, sessionID)
	if err != nil {
		slog.Warn("routing_history_count_failed", "error", err)
		return 1
	}
	return count + 1
}

func latestUserTurn(turns []domain.Turn) (string, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role != domain.RoleUser {
			continue
		}
		content := strings.TrimSpace(turns[i].Content)
		if content != "" {
			return content, true
		}
	}
	return "", false
}

func routeSystemPrompt(catalog string) string {
	return `You route customs clearance queries to exactly one specialist.
Specialists:
` + catalog + `Respond with a single JSON object and nothing else:
{"specialist": "...", "reasoning": "...", "complexity": 0.0, "requires_multiple": false}
complexity is your estimate in [0,1]; requires_multiple is true when the query spans several specialist domains.`
}
