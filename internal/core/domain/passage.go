package domain

import "strings"

// Metadata keys that are read by scoring and reference expansion but are
// not filterable constraints.
const (
	MetaRefs      = "refs"
	MetaMatchType = "match_type"
)

// CandidatePassage is created by the vector index wrapper at retrieval time
// and mutated only by the scorer. Each retrieval call owns its candidates;
// they are never shared across concurrent calls.
type CandidatePassage struct {
	ID              string            `json:"id"`
	Content         string            `json:"content"`
	Metadata        map[string]string `json:"metadata"`
	Similarity      float64           `json:"similarity"`
	ImportanceScore float64           `json:"importance_score"`
	ContextBoost    float64           `json:"context_boost"`
	FinalScore      float64           `json:"final_score"`
	ReferredBy      string            `json:"referred_by,omitempty"`
}

func (p CandidatePassage) Meta(key string) string {
	if p.Metadata == nil {
		return ""
	}
	return p.Metadata[key]
}

// References parses the passage's cross-reference metadata. Tokens are
// comma-separated; "law#article" tokens cite another regulation, anything
// else is taken as a direct passage identifier.
func (p CandidatePassage) References() []Reference {
	raw := p.Meta(MetaRefs)
	if raw == "" {
		return nil
	}
	var refs []Reference
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if law, article, ok := strings.Cut(token, "#"); ok {
			refs = append(refs, Reference{LawName: strings.TrimSpace(law), Article: strings.TrimSpace(article)})
			continue
		}
		refs = append(refs, Reference{PassageID: token})
	}
	return refs
}

// Reference points at another passage either directly by id or by a
// law/article citation that a resolver maps to ids.
type Reference struct {
	PassageID string `json:"passage_id,omitempty"`
	LawName   string `json:"law_name,omitempty"`
	Article   string `json:"article,omitempty"`
}

func (r Reference) Direct() bool { return r.PassageID != "" }

// IndexHit is what the vector index returns before similarity conversion.
type IndexHit struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Distance float64           `json:"distance"`
}

// SimilarityFromDistance converts an index distance into a similarity in
// [0,1] where 1 means identical.
func SimilarityFromDistance(distance float64) float64 {
	s := 1 - distance
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Candidate converts a raw hit into a scoreable passage.
func (h IndexHit) Candidate() CandidatePassage {
	return CandidatePassage{
		ID:         h.ID,
		Content:    h.Content,
		Metadata:   h.Metadata,
		Similarity: SimilarityFromDistance(h.Distance),
	}
}

// Answer is a grounded specialist response with the passages it cites.
type Answer struct {
	Text     string             `json:"text"`
	Passages []CandidatePassage `json:"passages,omitempty"`
}
