package domain

import "time"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// TrimTurns bounds a turn sequence to max entries. System turns are always
// preserved; the oldest non-system turns are dropped first. Relative order
// is kept.
func TrimTurns(turns []Turn, max int) []Turn {
	if max <= 0 || len(turns) <= max {
		return turns
	}
	systemCount := 0
	for _, t := range turns {
		if t.Role == RoleSystem {
			systemCount++
		}
	}
	keepNonSystem := max - systemCount
	if keepNonSystem < 0 {
		keepNonSystem = 0
	}
	nonSystem := 0
	for _, t := range turns {
		if t.Role != RoleSystem {
			nonSystem++
		}
	}
	dropRemaining := nonSystem - keepNonSystem
	out := make([]Turn, 0, max)
	for _, t := range turns {
		if t.Role != RoleSystem && dropRemaining > 0 {
			dropRemaining--
			continue
		}
		out = append(out, t)
	}
	return out
}

type AskRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Query     string `json:"query"`
}

type AskResult struct {
	SessionID      string             `json:"session_id"`
	Answer         string             `json:"answer"`
	Specialist     Specialist         `json:"specialist"`
	Passages       []CandidatePassage `json:"passages,omitempty"`
	Decision       RoutingDecision    `json:"decision"`
	Degraded       bool               `json:"degraded"`
	DegradedReason string             `json:"degraded_reason,omitempty"`
}

type SearchRequest struct {
	Query     string            `json:"query"`
	TopK      int               `json:"top_k"`
	AgentType string            `json:"agent_type,omitempty"`
	Filter    map[string]string `json:"filter,omitempty"`
}

type SearchResult struct {
	Query    string             `json:"query"`
	Passages []CandidatePassage `json:"passages"`
}
