package usecase

import (
	"strings"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
)

// Corpus metadata vocabulary.
const (
	dataTypeLawArticle     = "law_article"
	dataTypeTariffRate     = "tariff_rate"
	dataTypeHSCode         = "hs_code"
	dataTypeProcedureGuide = "procedure_guide"

	categoryLaw            = "law"
	categoryTariff         = "tariff"
	categoryClassification = "classification"
	categoryProcedure      = "procedure"
	categoryOrigin         = "origin"

	regulationTypeLaw               = "law"
	regulationTypeEnforcementDecree = "enforcement_decree"
	regulationTypeEnforcementRule   = "enforcement_rule"
	regulationTypeNotice            = "notice"
	regulationTypeAgreement         = "agreement"

	sourceCommentary     = "customs_commentary"
	sourceCustomsService = "customs_service"
	sourceWCO            = "wco"
	sourceMOLEG          = "moleg"

	statusActive     = "active"
	matchTypeExact   = "exact"
	matchTypeRelated = "related"
)

// SpecialistProfile configures one responder: its default retrieval bias,
// its answer prompt, and the keyword table used for deterministic routing.
type SpecialistProfile struct {
	Name          domain.Specialist
	Description   string
	BaseFilter    domain.MetadataFilter
	Context       domain.SearchContext
	SystemPrompt  string
	RouteKeywords map[string]float64
}

type SpecialistSet struct {
	order    []domain.Specialist
	profiles map[domain.Specialist]SpecialistProfile
}

func NewSpecialistSet(profiles ...SpecialistProfile) *SpecialistSet {
	s := &SpecialistSet{profiles: make(map[domain.Specialist]SpecialistProfile, len(profiles))}
	for _, p := range profiles {
		if _, ok := s.profiles[p.Name]; ok {
			continue
		}
		s.order = append(s.order, p.Name)
		s.profiles[p.Name] = p
	}
	return s
}

func (s *SpecialistSet) Get(name domain.Specialist) (SpecialistProfile, bool) {
	p, ok := s.profiles[name]
	return p, ok
}

// General returns the designated general-purpose fallback specialist.
func (s *SpecialistSet) General() SpecialistProfile {
	if p, ok := s.profiles[domain.SpecialistGeneral]; ok {
		return p
	}
	return s.profiles[s.order[0]]
}

func (s *SpecialistSet) Names() []domain.Specialist {
	out := make([]domain.Specialist, len(s.order))
	copy(out, s.order)
	return out
}

// Catalog renders the specialist list for the routing prompt.
func (s *SpecialistSet) Catalog() string {
	var b strings.Builder
	for _, name := range s.order {
		p := s.profiles[name]
		b.WriteString("- ")
		b.WriteString(string(name))
		b.WriteString(": ")
		b.WriteString(p.Description)
		b.WriteString("\n")
	}
	return b.String()
}

// DefaultSpecialists builds the customs clearance responder set.
func DefaultSpecialists() *SpecialistSet {
	law := SpecialistProfile{
		Name:        domain.SpecialistLaw,
		Description: "customs law articles, legal provisions, penalties, appeals",
		BaseFilter:  domain.MetadataFilter{domain.FieldDataType: dataTypeLawArticle},
		Context: domain.SearchContext{
			AgentType:       string(domain.SpecialistLaw),
			DomainHints:     []string{"customs act", "enforcement decree"},
			BoostKeywords:   []string{"article", "provision", "penalty"},
			PrioritySources: []string{sourceCommentary, sourceMOLEG},
		},
		SystemPrompt: "You are a customs law specialist. Answer strictly from the provided passages, cite law names and article numbers, and say so when the passages do not cover the question.",
		RouteKeywords: map[string]float64{
			"article": 0.3, "law": 0.3, "act": 0.25, "statute": 0.25,
			"provision": 0.25, "regulation": 0.2, "penalty": 0.25, "appeal": 0.2,
		},
	}
	tariff := SpecialistProfile{
		Name:        domain.SpecialistTariff,
		Description: "duty rates, tariff schedules, HS code classification",
		BaseFilter:  domain.MetadataFilter{domain.FieldDataType: dataTypeTariffRate},
		Context: domain.SearchContext{
			AgentType:       string(domain.SpecialistTariff),
			DomainHints:     []string{"tariff schedule", "duty rate"},
			BoostKeywords:   []string{"rate", "duty", "tariff"},
			PrioritySources: []string{sourceCustomsService, sourceWCO},
		},
		SystemPrompt: "You are a tariff specialist. Answer strictly from the provided passages, quote exact rates and HS codes, and say so when the passages do not cover the question.",
		RouteKeywords: map[string]float64{
			"tariff": 0.35, "duty": 0.3, "rate": 0.25, "percentage": 0.2,
			"tax": 0.2, "hs": 0.25, "code": 0.15, "classification": 0.2,
		},
	}
	procedure := SpecialistProfile{
		Name:        domain.SpecialistProcedure,
		Description: "clearance procedures, declarations, required documents",
		BaseFilter:  domain.MetadataFilter{domain.FieldDataType: dataTypeProcedureGuide},
		Context: domain.SearchContext{
			AgentType:       string(domain.SpecialistProcedure),
			DomainHints:     []string{"clearance procedure", "declaration"},
			BoostKeywords:   []string{"procedure", "declaration", "form"},
			PrioritySources: []string{sourceCustomsService},
		},
		SystemPrompt: "You are a clearance procedure specialist. Answer strictly from the provided passages as concrete steps, and say so when the passages do not cover the question.",
		RouteKeywords: map[string]float64{
			"procedure": 0.35, "clearance": 0.3, "declaration": 0.3, "import": 0.2,
			"export": 0.2, "document": 0.15, "form": 0.15, "broker": 0.2,
		},
	}
	general := SpecialistProfile{
		Name:        domain.SpecialistGeneral,
		Description: "anything that does not clearly fit another specialist",
		BaseFilter:  domain.MetadataFilter{},
		Context: domain.SearchContext{
			AgentType: string(domain.SpecialistGeneral),
		},
		SystemPrompt:  "You are a customs clearance assistant. Answer from the provided passages when possible and say so when they do not cover the question.",
		RouteKeywords: map[string]float64{},
	}
	return NewSpecialistSet(law, tariff, procedure, general)
}
