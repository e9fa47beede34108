package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
)

type passageOutput struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Similarity float64           `json:"similarity"`
	FinalScore float64           `json:"final_score"`
	ReferredBy string            `json:"referred_by,omitempty"`
}

type searchOutput struct {
	Query    string          `json:"query"`
	Count    int             `json:"count"`
	Passages []passageOutput `json:"passages"`
}

type classifyOutput struct {
	Query      string              `json:"query"`
	Intent     domain.IntentRecord `json:"intent"`
	Filter     map[string]string   `json:"filter"`
	Confidence float64             `json:"confidence"`
}

func (s *Server) registerTools() {
	searchTool := mcp.NewTool("customs_search",
		mcp.WithDescription("Search indexed customs law articles, tariff schedules, HS code notes and procedure guides. Returns scored passages with their source metadata."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question or phrase to search for. A 6-digit HS code triggers an exact code lookup."),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Maximum number of passages to return (default 5)."),
		),
		mcp.WithString("agent_type",
			mcp.Description("Specialist profile whose retrieval hints to apply."),
			mcp.Enum("law", "tariff", "procedure", "general"),
		),
		mcp.WithObject("filter",
			mcp.Description("Explicit metadata constraints, for example {\"category\": \"law\", \"hs_code\": \"850440\"}. Skips query classification."),
		),
	)
	s.mcp.AddTool(searchTool, s.handleSearch)

	classifyTool := mcp.NewTool("classify_query",
		mcp.WithDescription("Classify a customs question into an intent record and a metadata filter without running retrieval."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question to classify."),
		),
	)
	s.mcp.AddTool(classifyTool, s.handleClassify)
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := domain.SearchRequest{
		Query:     query,
		TopK:      request.GetInt("top_k", 0),
		AgentType: request.GetString("agent_type", ""),
		Filter:    stringMapArgument(request, "filter"),
	}
	result, err := s.search.Search(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	output := searchOutput{
		Query:    result.Query,
		Count:    len(result.Passages),
		Passages: make([]passageOutput, 0, len(result.Passages)),
	}
	for _, p := range result.Passages {
		output.Passages = append(output.Passages, passageOutput{
			ID:         p.ID,
			Content:    p.Content,
			Metadata:   p.Metadata,
			Similarity: p.Similarity,
			FinalScore: p.FinalScore,
			ReferredBy: p.ReferredBy,
		})
	}
	return jsonResult(output)
}

func (s *Server) handleClassify(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	intent := s.intents.ExtractIntent(ctx, query)
	filter, confidence := s.filters.Generate(ctx, query, intent, nil)

	return jsonResult(classifyOutput{
		Query:      query,
		Intent:     intent,
		Filter:     filter,
		Confidence: confidence,
	})
}

func stringMapArgument(request mcp.CallToolRequest, name string) map[string]string {
	raw, ok := request.GetArguments()[name].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out[k] = s
		}
	}
	return out
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
