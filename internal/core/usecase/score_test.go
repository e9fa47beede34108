package usecase

import (
	"math"
	"testing"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScoreAndRankComputesWeightedFinalScore(t *testing.T) {
	passages := []domain.CandidatePassage{
		{
			ID:         "law-1",
			Content:    "Article 241 declaration duty.",
			Similarity: 0.9,
			Metadata: map[string]string{
				domain.FieldSource:         sourceCommentary,
				domain.FieldRegulationType: regulationTypeLaw,
				domain.FieldStatus:         statusActive,
				domain.MetaMatchType:       matchTypeExact,
			},
		},
		{
			ID:         "note-1",
			Content:    "General background notice.",
			Similarity: 0.95,
			Metadata: map[string]string{
				domain.FieldSource: "blog",
			},
		},
	}

	scorer := NewScorer()
	ranked := scorer.ScoreAndRank(passages, domain.DefaultIntentRecord(), nil)

	// 0.35 source + 0.3 severity + 0.2 exact + 0.15 active = 1.0, at the cap.
	if !almostEqual(ranked[0].ImportanceScore, 1.0) {
		t.Fatalf("importance = %v, want 1.0", ranked[0].ImportanceScore)
	}
	if !almostEqual(ranked[0].FinalScore, 0.3*1.0+0.7*0.9) {
		t.Fatalf("final score = %v", ranked[0].FinalScore)
	}
	if ranked[0].ID != "law-1" {
		t.Fatalf("ranked[0] = %s, want law-1 despite lower similarity", ranked[0].ID)
	}

	// Unknown source earns only the default weight.
	if !almostEqual(ranked[1].ImportanceScore, defaultSourceWeight) {
		t.Fatalf("importance = %v, want %v", ranked[1].ImportanceScore, defaultSourceWeight)
	}
	if !almostEqual(ranked[1].FinalScore, 0.3*defaultSourceWeight+0.7*0.95) {
		t.Fatalf("final score = %v", ranked[1].FinalScore)
	}
}

func TestScoreAndRankKeepsInputOrderOnTies(t *testing.T) {
	passages := []domain.CandidatePassage{
		{ID: "first", Similarity: 0.8},
		{ID: "second", Similarity: 0.8},
		{ID: "third", Similarity: 0.8},
	}

	ranked := NewScorer().ScoreAndRank(passages, domain.DefaultIntentRecord(), nil)
	for i, want := range []string{"first", "second", "third"} {
		if ranked[i].ID != want {
			t.Fatalf("ranked[%d] = %s, want %s", i, ranked[i].ID, want)
		}
	}
}

func TestScoreAndRankDoesNotMutateInput(t *testing.T) {
	passages := []domain.CandidatePassage{
		{ID: "a", Similarity: 0.2},
		{ID: "b", Similarity: 0.9},
	}
	NewScorer().ScoreAndRank(passages, domain.DefaultIntentRecord(), nil)
	if passages[0].ID != "a" || passages[0].FinalScore != 0 {
		t.Fatalf("input slice mutated: %#v", passages[0])
	}
}

func TestContextBoostAccumulatesAndCaps(t *testing.T) {
	p := domain.CandidatePassage{
		ID:         "p1",
		Content:    "Tariff rate for lithium batteries under the free trade agreement.",
		ReferredBy: "parent",
		Metadata: map[string]string{
			domain.FieldSource: sourceCustomsService,
		},
	}
	sctx := &domain.SearchContext{
		PrioritySources: []string{sourceCustomsService},
		DomainHints:     []string{"tariff"},
		BoostKeywords:   []string{"lithium", "batteries", "agreement"},
	}

	// 0.1 referred + 0.3 priority + 0.2 hint + 3*0.1 keywords = 0.9, capped.
	if got := contextBoost(p, sctx); !almostEqual(got, contextBoostCap) {
		t.Fatalf("contextBoost = %v, want cap %v", got, contextBoostCap)
	}

	sctx = &domain.SearchContext{BoostKeywords: []string{"lithium"}}
	p.ReferredBy = ""
	if got := contextBoost(p, sctx); !almostEqual(got, boostKeywordBoost) {
		t.Fatalf("contextBoost = %v, want single keyword boost", got)
	}
}

func TestContextBoostDoesNotChangeOrdering(t *testing.T) {
	passages := []domain.CandidatePassage{
		{ID: "plain", Content: "nothing special", Similarity: 0.8},
		{ID: "boosted", Content: "priority lithium content", Similarity: 0.8},
	}
	sctx := &domain.SearchContext{BoostKeywords: []string{"lithium"}}

	ranked := NewScorer().ScoreAndRank(passages, domain.DefaultIntentRecord(), sctx)
	if ranked[0].ID != "plain" {
		t.Fatalf("boost changed ordering: ranked[0] = %s", ranked[0].ID)
	}
	if ranked[1].ContextBoost == 0 {
		t.Fatalf("expected boost recorded on passage")
	}
}

func TestMatchTypeWeightFallsBackToKeyConcepts(t *testing.T) {
	intent := domain.DefaultIntentRecord()
	intent.KeyConcepts = []string{"Article 50", "import duty"}

	p := domain.CandidatePassage{
		Metadata: map[string]string{domain.FieldArticle: "article 50"},
	}
	if got := matchTypeWeight(p, intent); !almostEqual(got, matchTypeExactWeight) {
		t.Fatalf("matchTypeWeight = %v, want exact weight for concept naming the article", got)
	}

	p = domain.CandidatePassage{
		Metadata: map[string]string{domain.FieldArticle: "article 51"},
	}
	if got := matchTypeWeight(p, intent); got != 0 {
		t.Fatalf("matchTypeWeight = %v, want 0", got)
	}
}
