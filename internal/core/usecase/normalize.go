package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/ports"
)

const classifySystemPrompt = `You are a query analyst for a customs clearance knowledge service covering customs law, tariff schedules, HS code classification and clearance procedures.
Given a user query, respond with a single JSON object and nothing else:
{"normalized_query": "...", "expanded_query": "...", "intent": {"intent_type": "...", "key_concepts": ["..."], "domain_category": "...", "urgency": "...", "specificity": "..."}}
normalized_query: the query restated in concise search terms, keeping law names, article numbers and HS codes verbatim.
expanded_query: normalized_query augmented with domain synonyms (e.g. duty/tariff/customs tax, clearance/declaration).
intent_type: one of information_request, regulation_lookup, rate_inquiry, code_lookup, procedure_guidance.
key_concepts: up to 8 short noun phrases, most important first.
domain_category: one of law, tariff, classification, procedure, origin, general.
urgency: one of high, normal, low. specificity: one of specific, general.`

type NormalizerConfig struct {
	CacheCapacity int
	CacheTTL      time.Duration
	CallTimeout   time.Duration
	RemoteTTL     time.Duration
}

// Normalizer turns raw utterances into normalized and synonym-expanded
// search text plus a structured intent record. One completion call backs
// all three operations; the result is cached by lower-cased trimmed query
// text. Every operation fails soft: degraded calls return their input or
// the default intent record, never an error.
type Normalizer struct {
	completions ports.CompletionService
	remote      ports.CacheStore
	observer    ports.PipelineObserver
	cache       *classificationCache
	callTimeout time.Duration
	remoteTTL   time.Duration
}

func NewNormalizer(
	completions ports.CompletionService,
	remote ports.CacheStore,
	observer ports.PipelineObserver,
	cfg NormalizerConfig,
) *Normalizer {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	if cfg.RemoteTTL <= 0 {
		cfg.RemoteTTL = 30 * time.Minute
	}
	return &Normalizer{
		completions: completions,
		remote:      remote,
		observer:    observer,
		cache:       newClassificationCache(cfg.CacheCapacity, cfg.CacheTTL),
		callTimeout: cfg.CallTimeout,
		remoteTTL:   cfg.RemoteTTL,
	}
}

// Normalize returns the query restated as search terms. Hints in sctx bias
// later pipeline stages only; classification depends on the query text
// alone so the cache stays keyed by query.
func (n *Normalizer) Normalize(ctx context.Context, raw string, sctx *domain.SearchContext) string {
	c, ok := n.classify(ctx, raw)
	if !ok || strings.TrimSpace(c.Normalized) == "" {
		return raw
	}
	return c.Normalized
}

func (n *Normalizer) ExpandSynonyms(ctx context.Context, normalized string) string {
	c, ok := n.classify(ctx, normalized)
	if !ok || strings.TrimSpace(c.Expanded) == "" {
		return normalized
	}
	return c.Expanded
}

func (n *Normalizer) ExtractIntent(ctx context.Context, raw string) domain.IntentRecord {
	c, ok := n.classify(ctx, raw)
	if !ok {
		return domain.DefaultIntentRecord()
	}
	return c.Intent
}

func (n *Normalizer) classify(ctx context.Context, query string) (classification, bool) {
	key := cacheKey(query)
	if key == "" {
		return classification{}, false
	}

	if c, hit := n.cache.Get(key); hit {
		slog.Debug("classification_cache_hit", "layer", "memory")
		n.observeLookup(true)
		return c, true
	}
	if c, hit := n.remoteLookup(ctx, key); hit {
		slog.Debug("classification_cache_hit", "layer", "remote")
		n.observeLookup(true)
		n.cache.Put(key, c)
		return c, true
	}
	n.observeLookup(false)

	c, err := n.callClassifier(ctx, query)
	if err != nil {
		slog.Warn("classification_failed", "error", err)
		return classification{}, false
	}
	c = sanitizeClassification(c, query)

	n.cache.Put(key, c)
	n.storeRemote(ctx, key, c)
	// The normalized form is a likely future lookup key, e.g. when
	// ExpandSynonyms is called with Normalize output.
	if altKey := cacheKey(c.Normalized); altKey != "" && altKey != key {
		n.cache.Put(altKey, c)
		n.storeRemote(ctx, altKey, c)
	}
	return c, true
}

func (n *Normalizer) callClassifier(ctx context.Context, query string) (classification, error) {
	callCtx, cancel := context.WithTimeout(ctx, n.callTimeout)
	defer cancel()

	userPrompt := "Query: " + strings.TrimSpace(query)
	raw, err := n.completions.CompleteJSON(callCtx, classifySystemPrompt, userPrompt, ports.SchemaQueryClassification, 0.1, 600)
	if err != nil {
		return classification{}, err
	}
	var c classification
	if err := json.Unmarshal(raw, &c); err != nil {
		return classification{}, fmt.Errorf("decode classification: %w", err)
	}
	return c, nil
}

func sanitizeClassification(c classification, query string) classification {
	def := domain.DefaultIntentRecord()
	switch c.Intent.IntentType {
	case domain.IntentInformationRequest, domain.IntentRegulationLookup, domain.IntentRateInquiry,
		domain.IntentCodeLookup, domain.IntentProcedureGuidance:
	default:
		c.Intent.IntentType = def.IntentType
	}
	switch c.Intent.Urgency {
	case domain.UrgencyHigh, domain.UrgencyNormal, domain.UrgencyLow:
	default:
		c.Intent.Urgency = def.Urgency
	}
	switch c.Intent.Specificity {
	case domain.SpecificitySpecific, domain.SpecificityGeneral:
	default:
		c.Intent.Specificity = def.Specificity
	}
	if strings.TrimSpace(c.Intent.DomainCategory) == "" {
		c.Intent.DomainCategory = def.DomainCategory
	}
	concepts := make([]string, 0, len(c.Intent.KeyConcepts))
	for _, concept := range c.Intent.KeyConcepts {
		concept = strings.TrimSpace(concept)
		if concept == "" {
			continue
		}
		concepts = append(concepts, concept)
		if len(concepts) == 8 {
			break
		}
	}
	c.Intent.KeyConcepts = concepts
	if strings.TrimSpace(c.Normalized) == "" {
		c.Normalized = strings.TrimSpace(query)
	}
	if strings.TrimSpace(c.Expanded) == "" {
		c.Expanded = c.Normalized
	}
	return c
}

func (n *Normalizer) remoteLookup(ctx context.Context, key string) (classification, bool) {
	if n.remote == nil {
		return classification{}, false
	}
	data, err := n.remote.Get(ctx, remoteClassifyKey(key))
	if err != nil {
		if !domain.IsKind(err, domain.ErrCacheMiss) {
			slog.Debug("classification_cache_error", "error", err)
		}
		return classification{}, false
	}
	var c classification
	if err := json.Unmarshal(data, &c); err != nil {
		return classification{}, false
	}
	return c, true
}

func (n *Normalizer) storeRemote(ctx context.Context, key string, c classification) {
	if n.remote == nil {
		return
	}
	data, err := json.Marshal(c)
	if err != nil {
		return
	}
	// The write should land even when the caller gives up mid-request.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := n.remote.Set(storeCtx, remoteClassifyKey(key), data, n.remoteTTL); err != nil {
		slog.Debug("classification_cache_error", "error", err)
	}
}

func remoteClassifyKey(key string) string {
	return "classify:" + key
}

func (n *Normalizer) observeLookup(hit bool) {
	if n.observer != nil {
		n.observer.CacheLookup(hit)
	}
}
