package domain

type IntentType string

const (
	IntentInformationRequest IntentType = "information_request"
	IntentRegulationLookup   IntentType = "regulation_lookup"
	IntentRateInquiry        IntentType = "rate_inquiry"
	IntentCodeLookup         IntentType = "code_lookup"
	IntentProcedureGuidance  IntentType = "procedure_guidance"
)

type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyNormal Urgency = "normal"
	UrgencyLow    Urgency = "low"
)

type Specificity string

const (
	SpecificitySpecific Specificity = "specific"
	SpecificityGeneral  Specificity = "general"
)

// IntentRecord is produced once per query text and cached; it is never
// mutated after creation.
type IntentRecord struct {
	IntentType     IntentType  `json:"intent_type"`
	KeyConcepts    []string    `json:"key_concepts"`
	DomainCategory string      `json:"domain_category"`
	Urgency        Urgency     `json:"urgency"`
	Specificity    Specificity `json:"specificity"`
}

// DefaultIntentRecord is the fail-soft classification result used whenever
// the completion service is unavailable or returns malformed output.
func DefaultIntentRecord() IntentRecord {
	return IntentRecord{
		IntentType:     IntentInformationRequest,
		KeyConcepts:    nil,
		DomainCategory: "general",
		Urgency:        UrgencyNormal,
		Specificity:    SpecificityGeneral,
	}
}

// SearchContext carries caller-side retrieval hints. Hints only supplement
// filters and scores; they never override classifier-populated fields.
type SearchContext struct {
	AgentType          string   `json:"agent_type"`
	DomainHints        []string `json:"domain_hints,omitempty"`
	BoostKeywords      []string `json:"boost_keywords,omitempty"`
	PrioritySources    []string `json:"priority_sources,omitempty"`
	RegulationTypeHint string   `json:"regulation_type_hint,omitempty"`
}
