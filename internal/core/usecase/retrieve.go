package usecase

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/ports"
)

var productCodePattern = regexp.MustCompile(`\b[0-9]{6}\b`)

func detectProductCode(s string) string {
	return productCodePattern.FindString(s)
}

type searchStrategy int

const (
	strategyBalanced searchStrategy = iota
	strategyPrecision
	strategyRecall
)

func (s searchStrategy) String() string {
	switch s {
	case strategyPrecision:
		return "precision"
	case strategyRecall:
		return "recall"
	default:
		return "balanced"
	}
}

func (s searchStrategy) multiplier() int {
	switch s {
	case strategyPrecision:
		return 2
	case strategyRecall:
		return 3
	default:
		return 1
	}
}

func strategyForConfidence(confidence float64) searchStrategy {
	switch {
	case confidence > 0.8:
		return strategyPrecision
	case confidence > 0.6:
		return strategyBalanced
	default:
		return strategyRecall
	}
}

type RetrieverConfig struct {
	SimilarityThreshold float64
	MinAcceptable       int
	QualityFloor        float64
	QualityTarget       float64
	ReferenceTop        int
}

// CascadingRetriever executes the staged retrieval cascade: exact code
// bypass, strategy-scaled primary search, cross-reference expansion,
// quality evaluation and progressive filter relaxation. A stage failure is
// logged and treated as zero additional results; only an unreachable index
// (or a failed embedding) yields an empty return, which callers must read
// as "no grounding available", not as an error.
type CascadingRetriever struct {
	embedder   ports.Embedder
	index      ports.VectorIndex
	resolver   ports.ReferenceResolver
	normalizer ports.IntentService
	scorer     *Scorer
	observer   ports.PipelineObserver
	cfg        RetrieverConfig
}

func NewCascadingRetriever(
	embedder ports.Embedder,
	index ports.VectorIndex,
	resolver ports.ReferenceResolver,
	normalizer ports.IntentService,
	scorer *Scorer,
	observer ports.PipelineObserver,
	cfg RetrieverConfig,
) *CascadingRetriever {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.75
	}
	if cfg.MinAcceptable <= 0 {
		cfg.MinAcceptable = 3
	}
	if cfg.QualityFloor <= 0 {
		cfg.QualityFloor = 0.6
	}
	if cfg.QualityTarget <= 0 {
		cfg.QualityTarget = 0.8
	}
	if cfg.ReferenceTop <= 0 {
		cfg.ReferenceTop = 3
	}
	return &CascadingRetriever{
		embedder:   embedder,
		index:      index,
		resolver:   resolver,
		normalizer: normalizer,
		scorer:     scorer,
		observer:   observer,
		cfg:        cfg,
	}
}

func (r *CascadingRetriever) Retrieve(
	ctx context.Context,
	raw string,
	topK int,
	filter domain.MetadataFilter,
	confidence float64,
	sctx *domain.SearchContext,
) []domain.CandidatePassage {
	if topK <= 0 {
		topK = 5
	}
	intent := r.normalizer.ExtractIntent(ctx, raw)

	if code := detectProductCode(raw); code != "" {
		exact := r.stage("exact_code", func() []domain.CandidatePassage {
			return r.exactCodeSearch(ctx, code, topK)
		})
		if len(exact) > 0 {
			return truncate(r.scorer.ScoreAndRank(exact, intent, sctx), topK)
		}
	}

	normalized := r.normalizer.Normalize(ctx, raw, sctx)
	expanded := r.normalizer.ExpandSynonyms(ctx, normalized)

	vector, err := r.embedder.Embed(ctx, expanded)
	if err != nil {
		slog.Error("query_embed_failed", "error", err)
		return nil
	}

	strategy := strategyForConfidence(confidence)
	primary := r.stage("primary", func() []domain.CandidatePassage {
		return r.primarySearch(ctx, vector, topK, filter, strategy)
	})
	references := r.stage("reference_expansion", func() []domain.CandidatePassage {
		return r.expandReferences(ctx, primary)
	})
	merged := appendDedup(primary, references)

	ranked := r.scorer.ScoreAndRank(merged, intent, sctx)
	quality := evaluateQuality(ranked)
	if r.observer != nil {
		r.observer.RetrievalQuality(quality)
	}
	slog.Debug("retrieval_quality",
		"strategy", strategy.String(),
		"results", len(ranked),
		"quality", quality,
	)

	if needsFallback(len(ranked), topK, quality, r.cfg) {
		fallback := r.stage("fallback", func() []domain.CandidatePassage {
			return r.relaxedSearch(ctx, vector, topK, filter)
		})
		adopted := false
		if len(fallback) > 0 {
			fallbackRanked := r.scorer.ScoreAndRank(fallback, intent, sctx)
			fallbackQuality := evaluateQuality(fallbackRanked)
			// Fallback may only help: it must be strictly larger and at
			// least as good, otherwise the original set is kept.
			if len(fallbackRanked) > len(ranked) && fallbackQuality >= quality {
				adopted = true
				slog.Info("retrieval_fallback_adopted",
					"results_before", len(ranked),
					"results_after", len(fallbackRanked),
					"quality_before", quality,
					"quality_after", fallbackQuality,
				)
				ranked = fallbackRanked
			}
		}
		if r.observer != nil {
			r.observer.RetrievalFallback(adopted)
		}
	}

	return truncate(ranked, topK)
}

// stage runs one cascade stage, converting a panic into zero results so a
// single stage failure never aborts the cascade.
func (r *CascadingRetriever) stage(name string, fn func() []domain.CandidatePassage) (out []domain.CandidatePassage) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("retrieval_stage_panic", "stage", name, "panic", rec)
			out = nil
		}
	}()
	out = fn()
	if r.observer != nil {
		r.observer.RetrievalStage(name, len(out))
	}
	return out
}

func (r *CascadingRetriever) exactCodeSearch(ctx context.Context, code string, topK int) []domain.CandidatePassage {
	hits, err := r.index.SearchExact(ctx, domain.FieldHSCode, code, topK)
	if err != nil {
		slog.Error("exact_code_search_failed", "code", code, "error", err)
		return nil
	}
	out := toCandidates(hits)
	for i := range out {
		if out[i].Metadata == nil {
			out[i].Metadata = map[string]string{}
		}
		out[i].Metadata[domain.MetaMatchType] = matchTypeExact
	}
	return out
}

func (r *CascadingRetriever) primarySearch(
	ctx context.Context,
	vector []float32,
	topK int,
	filter domain.MetadataFilter,
	strategy searchStrategy,
) []domain.CandidatePassage {
	hits, err := r.index.Search(ctx, vector, topK*strategy.multiplier(), filter)
	if err != nil {
		slog.Error("primary_search_failed", "strategy", strategy.String(), "error", err)
		return nil
	}
	candidates := toCandidates(hits)
	switch strategy {
	case strategyPrecision:
		kept := make([]domain.CandidatePassage, 0, len(candidates))
		for _, c := range candidates {
			if c.Similarity >= r.cfg.SimilarityThreshold {
				kept = append(kept, c)
			}
		}
		return truncate(kept, topK)
	case strategyRecall:
		return diversityResample(candidates, topK)
	default:
		return truncate(candidates, topK)
	}
}

func (r *CascadingRetriever) expandReferences(ctx context.Context, primary []domain.CandidatePassage) []domain.CandidatePassage {
	top := primary
	if len(top) > r.cfg.ReferenceTop {
		top = top[:r.cfg.ReferenceTop]
	}
	var out []domain.CandidatePassage
	for _, parent := range top {
		for _, ref := range parent.References() {
			ids := r.resolveReference(ctx, ref)
			if len(ids) == 0 {
				continue
			}
			hits, err := r.index.FetchByIDs(ctx, ids)
			if err != nil {
				slog.Warn("reference_fetch_failed", "parent", parent.ID, "error", err)
				continue
			}
			for _, hit := range hits {
				c := hit.Candidate()
				// Referenced passages inherit a share of the citing
				// passage's relevance; they were never compared to the
				// query vector themselves.
				c.Similarity = parent.Similarity * 0.8
				c.ReferredBy = parent.ID
				out = append(out, c)
			}
		}
	}
	return out
}

func (r *CascadingRetriever) resolveReference(ctx context.Context, ref domain.Reference) []string {
	if ref.Direct() {
		return []string{ref.PassageID}
	}
	if r.resolver == nil {
		return nil
	}
	ids, err := r.resolver.Resolve(ctx, ref)
	if err != nil {
		slog.Warn("reference_resolve_failed", "law", ref.LawName, "article", ref.Article, "error", err)
		return nil
	}
	return ids
}

// relaxedSearch drops filter fields most specific first and re-searches,
// stopping at the first attempt that reaches MinAcceptable results. The
// final attempt keeps only the coarsest field. When no attempt reaches the
// floor, the largest attempt is returned for the adoption check.
func (r *CascadingRetriever) relaxedSearch(
	ctx context.Context,
	vector []float32,
	topK int,
	filter domain.MetadataFilter,
) []domain.CandidatePassage {
	fields := filter.FieldsBySpecificity()
	if len(fields) < 2 {
		return nil
	}
	current := filter.Clone()
	var best []domain.CandidatePassage
	for i := 0; i < len(fields)-1; i++ {
		current = current.Without(fields[i])
		hits, err := r.index.Search(ctx, vector, topK, current)
		if err != nil {
			slog.Warn("relaxed_search_failed", "dropped_field", fields[i], "error", err)
			continue
		}
		candidates := toCandidates(hits)
		slog.Debug("retrieval_relaxation", "dropped_field", fields[i], "results", len(candidates))
		if len(candidates) >= r.cfg.MinAcceptable {
			return candidates
		}
		if len(candidates) > len(best) {
			best = candidates
		}
	}
	return best
}

var richMetadataFields = []string{
	domain.FieldDataType,
	domain.FieldCategory,
	domain.FieldSource,
	domain.FieldRegulationType,
	domain.FieldStatus,
}

// evaluateQuality scores a result set in [0,1]: weighted means of
// importance, similarity, metadata completeness and capped context boost,
// plus a small source/type diversity bonus.
func evaluateQuality(passages []domain.CandidatePassage) float64 {
	n := len(passages)
	if n == 0 {
		return 0
	}
	var impSum, simSum, boostSum, completeSum float64
	sources := make(map[string]struct{})
	types := make(map[string]struct{})
	for _, p := range passages {
		impSum += p.ImportanceScore
		simSum += p.Similarity
		boostSum += p.ContextBoost
		present := 0
		for _, field := range richMetadataFields {
			if p.Meta(field) != "" {
				present++
			}
		}
		completeSum += float64(present) / float64(len(richMetadataFields))
		if s := p.Meta(domain.FieldSource); s != "" {
			sources[s] = struct{}{}
		}
		if t := p.Meta(domain.FieldDataType); t != "" {
			types[t] = struct{}{}
		}
	}
	fn := float64(n)
	boostTerm := boostSum / fn
	if boostTerm > 0.15 {
		boostTerm = 0.15
	}
	quality := 0.4*(impSum/fn) +
		0.3*(simSum/fn) +
		0.15*(completeSum/fn) +
		boostTerm +
		0.05*(float64(len(sources))/fn) +
		0.05*(float64(len(types))/fn)
	if quality > 1 {
		return 1
	}
	if quality < 0 {
		return 0
	}
	return quality
}

func needsFallback(count, topK int, quality float64, cfg RetrieverConfig) bool {
	minCount := topK / 2
	if minCount < 3 {
		minCount = 3
	}
	if count < minCount {
		return true
	}
	if quality < cfg.QualityFloor {
		return true
	}
	return count < topK && quality < cfg.QualityTarget
}

// diversityResample keeps at most k candidates, round-robin across source
// values in first-seen order so no single source dominates a recall search.
func diversityResample(candidates []domain.CandidatePassage, k int) []domain.CandidatePassage {
	if len(candidates) <= k {
		return candidates
	}
	var order []string
	groups := make(map[string][]domain.CandidatePassage)
	for _, c := range candidates {
		src := c.Meta(domain.FieldSource)
		if _, ok := groups[src]; !ok {
			order = append(order, src)
		}
		groups[src] = append(groups[src], c)
	}
	out := make([]domain.CandidatePassage, 0, k)
	for len(out) < k {
		progressed := false
		for _, src := range order {
			if len(groups[src]) == 0 {
				continue
			}
			out = append(out, groups[src][0])
			groups[src] = groups[src][1:]
			progressed = true
			if len(out) == k {
				break
			}
		}
		if !progressed {
			break
		}
	}
	return out
}

func toCandidates(hits []domain.IndexHit) []domain.CandidatePassage {
	if len(hits) == 0 {
		return nil
	}
	out := make([]domain.CandidatePassage, 0, len(hits))
	for _, hit := range hits {
		out = append(out, hit.Candidate())
	}
	return out
}

func appendDedup(base, extra []domain.CandidatePassage) []domain.CandidatePassage {
	if len(extra) == 0 {
		return base
	}
	seen := make(map[string]struct{}, len(base)+len(extra))
	for _, p := range base {
		seen[p.ID] = struct{}{}
	}
	out := base
	for _, p := range extra {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

func truncate(passages []domain.CandidatePassage, k int) []domain.CandidatePassage {
	if len(passages) > k {
		return passages[:k]
	}
	return passages
}
