package domain

import "time"

type Specialist string

const (
	SpecialistLaw       Specialist = "law"
	SpecialistTariff    Specialist = "tariff"
	SpecialistProcedure Specialist = "procedure"
	SpecialistGeneral   Specialist = "general"
	SpecialistNone      Specialist = "none"
)

func KnownSpecialist(s Specialist) bool {
	switch s {
	case SpecialistLaw, SpecialistTariff, SpecialistProcedure, SpecialistGeneral:
		return true
	}
	return false
}

type DecisionSource string

const (
	DecisionSourceLLM     DecisionSource = "llm"
	DecisionSourceKeyword DecisionSource = "keyword"
)

// RoutingDecision is appended to the session's routing history before the
// selected specialist runs. The history is observability data only; routing
// stays stateless per request.
type RoutingDecision struct {
	ID               string         `json:"id"`
	SessionID        string         `json:"session_id"`
	Specialist       Specialist     `json:"specialist"`
	Reasoning        string         `json:"reasoning"`
	Complexity       float64        `json:"complexity"`
	RequiresMultiple bool           `json:"requires_multiple"`
	Complex          bool           `json:"complex"`
	Step             int            `json:"step"`
	Source           DecisionSource `json:"source"`
	CreatedAt        time.Time      `json:"created_at"`
}

type SessionState string

const (
	StateAwaitingQuery       SessionState = "awaiting_query"
	StateClassified          SessionState = "classified"
	StateRouted              SessionState = "routed"
	StateSpecialistExecuting SessionState = "specialist_executing"
	StateCompleted           SessionState = "completed"
	StateEnded               SessionState = "ended"
)

// AnswerEvent is published after a specialist finishes, for observability
// consumers.
type AnswerEvent struct {
	SessionID      string     `json:"session_id"`
	Specialist     Specialist `json:"specialist"`
	Degraded       bool       `json:"degraded"`
	DegradedReason string     `json:"degraded_reason,omitempty"`
	PassageCount   int        `json:"passage_count"`
	LatencyMS      int64      `json:"latency_ms"`
	CreatedAt      time.Time  `json:"created_at"`
}
