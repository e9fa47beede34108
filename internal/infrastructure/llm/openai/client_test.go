package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/ports"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/infrastructure/resilience"
)

func testConfig(baseURL string) Config {
	return Config{
		APIKey:      "test-key",
		BaseURL:     baseURL + "/v1",
		ChatModel:   "test-chat",
		EmbedModel:  "test-embed",
		CallTimeout: 5 * time.Second,
		Resilience: resilience.Config{
			RetryMaxAttempts:    2,
			RetryInitialBackoff: time.Millisecond,
			RetryMaxBackoff:     2 * time.Millisecond,
			RetryMultiplier:     2,
			BreakerEnabled:      false,
		},
	}
}

func writeChatContent(w http.ResponseWriter, content string) {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func TestCompleteReturnsTrimmedContent(t *testing.T) {
	var capturedModel string
	var capturedRoles []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var payload struct {
			Model    string `json:"model"`
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		capturedModel = payload.Model
		capturedRoles = capturedRoles[:0]
		for _, m := range payload.Messages {
			capturedRoles = append(capturedRoles, m.Role)
		}
		writeChatContent(w, "  answer text \n")
	}))
	defer server.Close()

	var gotOp, gotModel string
	var gotPrompt, gotCompletion int
	cfg := testConfig(server.URL)
	cfg.OnUsage = func(operation, model string, promptTokens, completionTokens int) {
		gotOp, gotModel = operation, model
		gotPrompt, gotCompletion = promptTokens, completionTokens
	}
	client := New(cfg)

	out, err := client.Complete(context.Background(), "system prompt", "user prompt", 0.2, 100)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != "answer text" {
		t.Fatalf("expected trimmed content, got %q", out)
	}
	if capturedModel != "test-chat" {
		t.Fatalf("expected chat model in request, got %q", capturedModel)
	}
	if len(capturedRoles) != 2 || capturedRoles[0] != "system" || capturedRoles[1] != "user" {
		t.Fatalf("unexpected message roles %v", capturedRoles)
	}
	if gotOp != "chat_complete" || gotModel != "test-chat" {
		t.Fatalf("usage hook got operation %q model %q", gotOp, gotModel)
	}
	if gotPrompt != 10 || gotCompletion != 5 {
		t.Fatalf("usage hook got tokens %d/%d", gotPrompt, gotCompletion)
	}
}

func TestCompleteJSONRetriesSchemaViolation(t *testing.T) {
	requests := 0
	valid := `{"specialist":"law","reasoning":"statute question","complexity":0.4,"requires_multiple":false}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			writeChatContent(w, "I think the answer is law, roughly.")
			return
		}
		writeChatContent(w, valid)
	}))
	defer server.Close()

	client := New(testConfig(server.URL))
	payload, err := client.CompleteJSON(context.Background(), "sys", "user", ports.SchemaRoutingDecision, 0, 200)
	if err != nil {
		t.Fatalf("CompleteJSON() error = %v", err)
	}
	if requests != 2 {
		t.Fatalf("expected a retry after malformed output, got %d requests", requests)
	}
	var decoded struct {
		Specialist string `json:"specialist"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if decoded.Specialist != "law" {
		t.Fatalf("expected specialist law, got %q", decoded.Specialist)
	}
}

func TestCompleteJSONFailsTemporaryWhenNeverValid(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		writeChatContent(w, `{"wrong_field": true}`)
	}))
	defer server.Close()

	client := New(testConfig(server.URL))
	_, err := client.CompleteJSON(context.Background(), "sys", "user", ports.SchemaRoutingDecision, 0, 200)
	if err == nil {
		t.Fatalf("expected error for nonconforming output")
	}
	if requests != 2 {
		t.Fatalf("expected retries to exhaust, got %d requests", requests)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if !strings.Contains(err.Error(), "routing_decision") {
		t.Fatalf("expected schema name in error, got %v", err)
	}
}

func TestEmbedBatchOrdersByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		resp := map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{0.4, 0.5}},
				{"index": 0, "embedding": []float32{0.1, 0.2}},
			},
			"usage": map[string]any{"prompt_tokens": 3, "total_tokens": 3},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := New(testConfig(server.URL))
	vectors, err := client.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if vectors[0][0] != 0.1 || vectors[1][0] != 0.4 {
		t.Fatalf("vectors not ordered by input index: %v", vectors)
	}
}

func TestEmbedServerErrorRetriesThenWrapsTemporary(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer server.Close()

	client := New(testConfig(server.URL))
	_, err := client.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatalf("expected error")
	}
	if requests != 2 {
		t.Fatalf("expected 2 attempts against a 503, got %d", requests)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestValidateResponseShapes(t *testing.T) {
	cases := []struct {
		name    string
		schema  string
		payload string
		wantErr bool
	}{
		{
			name:    "valid filter",
			schema:  ports.SchemaFilterClassification,
			payload: `{"category":"law","data_type":"law_article","regulation_type":"","country":"","hs_code":"","law_name":"customs act","article":"94","confidence":0.9}`,
			wantErr: false,
		},
		{
			name:    "filter missing confidence",
			schema:  ports.SchemaFilterClassification,
			payload: `{"category":"law"}`,
			wantErr: true,
		},
		{
			name:    "routing complexity out of range",
			schema:  ports.SchemaRoutingDecision,
			payload: `{"specialist":"law","complexity":1.4}`,
			wantErr: true,
		},
		{
			name:    "valid classification",
			schema:  ports.SchemaQueryClassification,
			payload: `{"normalized_query":"q","expanded_query":"q duty","intent":{"intent_type":"rate_inquiry","key_concepts":["duty"],"domain_category":"tariff","urgency":"normal","specificity":"specific"}}`,
			wantErr: false,
		},
		{
			name:    "classification intent not an object",
			schema:  ports.SchemaQueryClassification,
			payload: `{"normalized_query":"q","intent":"tariff"}`,
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateResponse(tc.schema, []byte(tc.payload))
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
