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

const filterSystemPrompt = `You classify customs clearance queries into metadata filters for a passage index.
Respond with a single JSON object and nothing else:
{"category": "...", "data_type": "...", "regulation_type": "...", "country": "...", "hs_code": "...", "law_name": "...", "article": "...", "confidence": 0.0}
category: one of law, tariff, classification, procedure, origin, general.
data_type: one of law_article, tariff_rate, hs_code, procedure_guide, commentary, or empty.
regulation_type: one of law, enforcement_decree, enforcement_rule, notice, agreement, or empty.
Leave any field empty when the query gives no signal for it. confidence is your certainty in [0,1].`

// filterConfidenceFloor is the threshold below which classifier output is
// discarded in favor of the deterministic keyword table.
const filterConfidenceFloor = 0.3

type filterClassification struct {
	Category       string  `json:"category"`
	DataType       string  `json:"data_type"`
	RegulationType string  `json:"regulation_type"`
	Country        string  `json:"country"`
	HSCode         string  `json:"hs_code"`
	LawName        string  `json:"law_name"`
	Article        string  `json:"article"`
	Confidence     float64 `json:"confidence"`
}

// keywordFilterRules map query keywords to filters, first match wins. Each
// keyword is a phrase; a rule matches when any phrase has all its words in
// the query.
var keywordFilterRules = []struct {
	keywords   []string
	filter     map[string]string
	confidence float64
}{
	{
		keywords:   []string{"hs code", "heading", "subheading", "classification", "classify"},
		filter:     map[string]string{domain.FieldDataType: dataTypeHSCode, domain.FieldCategory: categoryClassification},
		confidence: 0.65,
	},
	{
		keywords:   []string{"tariff", "duty", "customs tax", "percentage", "rate"},
		filter:     map[string]string{domain.FieldDataType: dataTypeTariffRate, domain.FieldCategory: categoryTariff},
		confidence: 0.65,
	},
	{
		keywords:   []string{"article", "law", "act", "statute", "provision", "decree", "ordinance"},
		filter:     map[string]string{domain.FieldDataType: dataTypeLawArticle, domain.FieldCategory: categoryLaw},
		confidence: 0.65,
	},
	{
		keywords:   []string{"procedure", "clearance", "declaration", "filing", "form", "broker"},
		filter:     map[string]string{domain.FieldDataType: dataTypeProcedureGuide, domain.FieldCategory: categoryProcedure},
		confidence: 0.65,
	},
	{
		keywords:   []string{"fta", "origin", "preferential", "free trade"},
		filter:     map[string]string{domain.FieldCategory: categoryOrigin, domain.FieldRegulationType: regulationTypeAgreement},
		confidence: 0.65,
	},
}

type FilterGeneratorConfig struct {
	CallTimeout time.Duration
}

// FilterGenerator maps a query and its intent into a metadata filter with
// a confidence estimate. Classifier output below a low confidence floor,
// or malformed output, falls back to the keyword table; context hints only
// fill fields the classifier left empty.
type FilterGenerator struct {
	completions ports.CompletionService
	callTimeout time.Duration
}

func NewFilterGenerator(completions ports.CompletionService, cfg FilterGeneratorConfig) *FilterGenerator {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	return &FilterGenerator{completions: completions, callTimeout: cfg.CallTimeout}
}

func (g *FilterGenerator) Generate(
	ctx context.Context,
	raw string,
	intent domain.IntentRecord,
	sctx *domain.SearchContext,
) (domain.MetadataFilter, float64) {
	filter, confidence, err := g.classifierFilter(ctx, raw, intent)
	if err != nil || confidence < filterConfidenceFloor {
		if err != nil {
			slog.Warn("filter_classification_failed", "error", err)
		} else {
			slog.Debug("filter_confidence_low", "confidence", confidence)
		}
		filter, confidence = keywordFilter(raw, intent)
	}
	filter = mergeContextHints(filter, sctx)
	return filter, confidence
}

func (g *FilterGenerator) classifierFilter(
	ctx context.Context,
	raw string,
	intent domain.IntentRecord,
) (domain.MetadataFilter, float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	var prompt strings.Builder
	prompt.WriteString("Query: ")
	prompt.WriteString(strings.TrimSpace(raw))
	if len(intent.KeyConcepts) > 0 {
		prompt.WriteString("\nKey concepts: ")
		prompt.WriteString(strings.Join(intent.KeyConcepts, ", "))
	}
	prompt.WriteString("\nIntent: ")
	prompt.WriteString(string(intent.IntentType))

	data, err := g.completions.CompleteJSON(callCtx, filterSystemPrompt, prompt.String(), ports.SchemaFilterClassification, 0, 300)
	if err != nil {
		return nil, 0, err
	}
	var fc filterClassification
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, 0, fmt.Errorf("decode filter classification: %w", err)
	}

	filter, dropped := domain.NewMetadataFilter(map[string]string{
		domain.FieldCategory:       strings.TrimSpace(fc.Category),
		domain.FieldDataType:       strings.TrimSpace(fc.DataType),
		domain.FieldRegulationType: strings.TrimSpace(fc.RegulationType),
		domain.FieldCountry:        strings.TrimSpace(fc.Country),
		domain.FieldHSCode:         strings.TrimSpace(fc.HSCode),
		domain.FieldLawName:        strings.TrimSpace(fc.LawName),
		domain.FieldArticle:        strings.TrimSpace(fc.Article),
	})
	if len(dropped) > 0 {
		slog.Debug("filter_fields_dropped", "fields", dropped)
	}
	confidence := fc.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return filter, confidence, nil
}

// keywordFilter is the deterministic fallback. When no rule matches it
// returns a coarse category filter if any classification signal is
// present, or an empty filter that matches every passage.
func keywordFilter(raw string, intent domain.IntentRecord) (domain.MetadataFilter, float64) {
	tokens := toTokenSet(raw)
	for _, rule := range keywordFilterRules {
		for _, keyword := range rule.keywords {
			if phraseHit(tokens, keyword) {
				filter, _ := domain.NewMetadataFilter(rule.filter)
				return filter, rule.confidence
			}
		}
	}
	if intent.DomainCategory != "" && intent.DomainCategory != "general" {
		filter, _ := domain.NewMetadataFilter(map[string]string{domain.FieldCategory: intent.DomainCategory})
		return filter, 0.4
	}
	if code := detectProductCode(raw); code != "" {
		filter, _ := domain.NewMetadataFilter(map[string]string{domain.FieldDataType: dataTypeHSCode})
		return filter, 0.4
	}
	return domain.MetadataFilter{}, 0.2
}

func mergeContextHints(filter domain.MetadataFilter, sctx *domain.SearchContext) domain.MetadataFilter {
	if sctx == nil || sctx.RegulationTypeHint == "" {
		return filter
	}
	hints, _ := domain.NewMetadataFilter(map[string]string{
		domain.FieldRegulationType: sctx.RegulationTypeHint,
	})
	return filter.FillMissing(hints)
}
