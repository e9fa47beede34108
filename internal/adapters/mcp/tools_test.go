package mcpadapter

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
)

type fakeSearch struct {
	result *domain.SearchResult
	err    error
	gotReq domain.SearchRequest
}

func (f *fakeSearch) Search(_ context.Context, req domain.SearchRequest) (*domain.SearchResult, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeIntents struct {
	record domain.IntentRecord
}

func (f *fakeIntents) ExtractIntent(context.Context, string) domain.IntentRecord {
	return f.record
}

type fakeFilters struct {
	filter     domain.MetadataFilter
	confidence float64
}

func (f *fakeFilters) Generate(context.Context, string, domain.IntentRecord, *domain.SearchContext) (domain.MetadataFilter, float64) {
	return f.filter, f.confidence
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("expected tool result content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestSearchToolMapsArgumentsAndRendersPassages(t *testing.T) {
	search := &fakeSearch{result: &domain.SearchResult{
		Query: "duty rate for transformers",
		Passages: []domain.CandidatePassage{
			{ID: "tariff-1", Content: "850440 rate 3.2%", Similarity: 0.9, FinalScore: 0.88},
			{ID: "tariff-2", Content: "Chapter 85 notes", Similarity: 0.7, FinalScore: 0.64},
		},
	}}
	srv := NewServer(search, &fakeIntents{}, &fakeFilters{})

	result, err := srv.handleSearch(context.Background(), callRequest(map[string]any{
		"query":      "duty rate for transformers",
		"top_k":      2,
		"agent_type": "tariff",
		"filter":     map[string]any{"category": "tariff_rate"},
	}))
	if err != nil {
		t.Fatalf("handle search: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}

	if search.gotReq.TopK != 2 {
		t.Fatalf("expected top_k 2, got %d", search.gotReq.TopK)
	}
	if search.gotReq.AgentType != "tariff" {
		t.Fatalf("expected agent_type tariff, got %q", search.gotReq.AgentType)
	}
	if search.gotReq.Filter["category"] != "tariff_rate" {
		t.Fatalf("expected filter passed through, got %+v", search.gotReq.Filter)
	}

	var output searchOutput
	if err := json.Unmarshal([]byte(resultText(t, result)), &output); err != nil {
		t.Fatalf("decode tool output: %v", err)
	}
	if output.Count != 2 || len(output.Passages) != 2 {
		t.Fatalf("expected 2 passages, got %+v", output)
	}
	if output.Passages[0].ID != "tariff-1" {
		t.Fatalf("unexpected first passage: %+v", output.Passages[0])
	}
}

func TestSearchToolRequiresQuery(t *testing.T) {
	srv := NewServer(&fakeSearch{}, &fakeIntents{}, &fakeFilters{})

	result, err := srv.handleSearch(context.Background(), callRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handle search: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing query")
	}
}

func TestClassifyToolReturnsIntentAndFilter(t *testing.T) {
	intents := &fakeIntents{record: domain.IntentRecord{
		IntentType:     domain.IntentRateInquiry,
		KeyConcepts:    []string{"duty rate", "transformers"},
		DomainCategory: "tariff",
		Urgency:        domain.UrgencyNormal,
		Specificity:    domain.SpecificitySpecific,
	}}
	filters := &fakeFilters{
		filter:     domain.MetadataFilter{"category": "tariff_rate"},
		confidence: 0.8,
	}
	srv := NewServer(&fakeSearch{}, intents, filters)

	result, err := srv.handleClassify(context.Background(), callRequest(map[string]any{
		"query": "what is the duty rate for transformers",
	}))
	if err != nil {
		t.Fatalf("handle classify: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}

	var output classifyOutput
	if err := json.Unmarshal([]byte(resultText(t, result)), &output); err != nil {
		t.Fatalf("decode tool output: %v", err)
	}
	if output.Intent.IntentType != domain.IntentRateInquiry {
		t.Fatalf("expected rate_inquiry intent, got %q", output.Intent.IntentType)
	}
	if output.Filter["category"] != "tariff_rate" {
		t.Fatalf("expected classified filter, got %+v", output.Filter)
	}
	if output.Confidence != 0.8 {
		t.Fatalf("expected confidence 0.8, got %v", output.Confidence)
	}
	if !strings.Contains(resultText(t, result), "rate_inquiry") {
		t.Fatal("expected intent type in rendered output")
	}
}
