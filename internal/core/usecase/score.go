package usecase

import (
	"sort"
	"strings"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
)

var sourceWeights = map[string]float64{
	sourceCommentary:     0.35,
	sourceCustomsService: 0.3,
	sourceWCO:            0.25,
	sourceMOLEG:          0.2,
}

var regulationSeverityWeights = map[string]float64{
	regulationTypeLaw:               0.3,
	regulationTypeEnforcementDecree: 0.25,
	regulationTypeEnforcementRule:   0.2,
	regulationTypeNotice:            0.15,
	regulationTypeAgreement:         0.15,
}

const (
	defaultSourceWeight    = 0.1
	matchTypeExactWeight   = 0.2
	matchTypeRelatedWeight = 0.1
	statusActiveWeight     = 0.15
	referredBoost          = 0.1
	prioritySourceBoost    = 0.3
	domainHintBoost        = 0.2
	boostKeywordBoost      = 0.1

	importanceCap   = 1.0
	contextBoostCap = 0.5

	finalImportanceWeight = 0.3
	finalSimilarityWeight = 0.7
)

// Scorer computes importance and context boost per passage and orders by
// the final key 0.3*importance + 0.7*similarity. The sort is stable so
// ties keep their retrieval order and identical inputs produce identical
// output. Context boost is recorded on the passage and feeds quality
// evaluation; it is not part of the ordering key.
type Scorer struct{}

func NewScorer() *Scorer { return &Scorer{} }

func (s *Scorer) ScoreAndRank(
	passages []domain.CandidatePassage,
	intent domain.IntentRecord,
	sctx *domain.SearchContext,
) []domain.CandidatePassage {
	out := make([]domain.CandidatePassage, len(passages))
	copy(out, passages)
	for i := range out {
		out[i].ImportanceScore = importanceScore(out[i], intent)
		out[i].ContextBoost = contextBoost(out[i], sctx)
		out[i].FinalScore = finalImportanceWeight*out[i].ImportanceScore + finalSimilarityWeight*out[i].Similarity
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinalScore > out[j].FinalScore
	})
	return out
}

// importanceScore is a capped sum of source, severity, match-type and
// status weights.
func importanceScore(p domain.CandidatePassage, intent domain.IntentRecord) float64 {
	score := 0.0
	src := p.Meta(domain.FieldSource)
	if w, ok := sourceWeights[src]; ok {
		score += w
	} else if src != "" {
		score += defaultSourceWeight
	}
	if w, ok := regulationSeverityWeights[p.Meta(domain.FieldRegulationType)]; ok {
		score += w
	}
	score += matchTypeWeight(p, intent)
	if p.Meta(domain.FieldStatus) == statusActive {
		score += statusActiveWeight
	}
	if score > importanceCap {
		score = importanceCap
	}
	return score
}

func matchTypeWeight(p domain.CandidatePassage, intent domain.IntentRecord) float64 {
	switch p.Meta(domain.MetaMatchType) {
	case matchTypeExact:
		return matchTypeExactWeight
	case matchTypeRelated:
		return matchTypeRelatedWeight
	}
	// Undeclared match type: a key concept naming the exact article or
	// code still counts as an exact match.
	article := p.Meta(domain.FieldArticle)
	code := p.Meta(domain.FieldHSCode)
	for _, concept := range intent.KeyConcepts {
		concept = strings.TrimSpace(concept)
		if concept == "" {
			continue
		}
		if (article != "" && strings.EqualFold(concept, article)) ||
			(code != "" && strings.EqualFold(concept, code)) {
			return matchTypeExactWeight
		}
	}
	return 0
}

func contextBoost(p domain.CandidatePassage, sctx *domain.SearchContext) float64 {
	boost := 0.0
	if p.ReferredBy != "" {
		boost += referredBoost
	}
	if sctx != nil {
		src := p.Meta(domain.FieldSource)
		for _, priority := range sctx.PrioritySources {
			if priority != "" && priority == src {
				boost += prioritySourceBoost
				break
			}
		}
		for _, hint := range sctx.DomainHints {
			if hint == "" {
				continue
			}
			if containsFold(p.Content, hint) || metadataContainsFold(p.Metadata, hint) {
				boost += domainHintBoost
				break
			}
		}
		for _, keyword := range sctx.BoostKeywords {
			if keyword == "" {
				continue
			}
			if containsFold(p.Content, keyword) {
				boost += boostKeywordBoost
			}
		}
	}
	if boost > contextBoostCap {
		boost = contextBoostCap
	}
	return boost
}

func metadataContainsFold(metadata map[string]string, needle string) bool {
	for _, value := range metadata {
		if containsFold(value, needle) {
			return true
		}
	}
	return false
}
