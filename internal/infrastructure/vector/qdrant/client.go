// Package qdrant implements the vector index port against the Qdrant REST
// API. Passages live in a single collection; the passage text is stored in
// the "content" payload field and every other payload field is exposed as
// string metadata.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
	"github.com/ktBigDeal/customs-clearance-sub000/internal/infrastructure/resilience"
)

const payloadContentField = "content"

type Config struct {
	BaseURL    string
	Collection string
	Timeout    time.Duration
	Resilience resilience.Config
}

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	exec       *resilience.Executor
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		collection: cfg.Collection,
		httpClient: &http.Client{Timeout: timeout},
		exec:       resilience.NewExecutor(cfg.Resilience),
	}
}

// Ping verifies the collection exists and the service answers.
func (c *Client) Ping(ctx context.Context) error {
	const operation = "vector_ping"
	err := c.exec.Execute(ctx, operation, classifyQdrantError, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection), nil)
		if err != nil {
			return fmt.Errorf("create ping request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant ping request: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return newHTTPStatusError(operation, resp)
		}
		return nil
	})
	return wrapIndexError(operation, err)
}

func (c *Client) Search(ctx context.Context, vector []float32, k int, filter domain.MetadataFilter) ([]domain.IndexHit, error) {
	const operation = "vector_search"
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if clauses := mustClauses(filter); len(clauses) > 0 {
		reqBody["filter"] = map[string]any{"must": clauses}
	}

	hits, err := resilience.Call(ctx, c.exec, operation, classifyQdrantError, func(ctx context.Context) ([]domain.IndexHit, error) {
		var searchResp struct {
			Result []scoredPoint `json:"result"`
		}
		if err := c.postJSON(ctx, fmt.Sprintf("/collections/%s/points/search", c.collection), reqBody, &searchResp, operation); err != nil {
			return nil, err
		}
		out := make([]domain.IndexHit, 0, len(searchResp.Result))
		for _, p := range searchResp.Result {
			out = append(out, p.toHit(1-p.Score))
		}
		return out, nil
	})
	if err != nil {
		return nil, wrapIndexError(operation, err)
	}
	return hits, nil
}

// FetchByIDs retrieves passages by point ID. Fetched hits were never
// compared to a query vector and carry distance 1; callers assign their
// own relevance.
func (c *Client) FetchByIDs(ctx context.Context, ids []string) ([]domain.IndexHit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const operation = "vector_fetch"
	reqBody := map[string]any{
		"ids":          ids,
		"with_payload": true,
	}

	hits, err := resilience.Call(ctx, c.exec, operation, classifyQdrantError, func(ctx context.Context) ([]domain.IndexHit, error) {
		var fetchResp struct {
			Result []scoredPoint `json:"result"`
		}
		if err := c.postJSON(ctx, fmt.Sprintf("/collections/%s/points", c.collection), reqBody, &fetchResp, operation); err != nil {
			return nil, err
		}
		out := make([]domain.IndexHit, 0, len(fetchResp.Result))
		for _, p := range fetchResp.Result {
			out = append(out, p.toHit(1))
		}
		return out, nil
	})
	if err != nil {
		return nil, wrapIndexError(operation, err)
	}
	return hits, nil
}

// SearchExact scrolls points whose payload field equals value. Exact hits
// carry distance 0 so they rank as perfect matches.
func (c *Client) SearchExact(ctx context.Context, field, value string, k int) ([]domain.IndexHit, error) {
	return c.scroll(ctx, "vector_exact_search", domain.MetadataFilter{field: value}, k)
}

// scroll pages points matching every filter clause, without a query vector.
func (c *Client) scroll(ctx context.Context, operation string, filter domain.MetadataFilter, k int) ([]domain.IndexHit, error) {
	reqBody := map[string]any{
		"filter":       map[string]any{"must": mustClauses(filter)},
		"limit":        k,
		"with_payload": true,
	}

	hits, err := resilience.Call(ctx, c.exec, operation, classifyQdrantError, func(ctx context.Context) ([]domain.IndexHit, error) {
		var scrollResp struct {
			Result struct {
				Points []scoredPoint `json:"points"`
			} `json:"result"`
		}
		if err := c.postJSON(ctx, fmt.Sprintf("/collections/%s/points/scroll", c.collection), reqBody, &scrollResp, operation); err != nil {
			return nil, err
		}
		out := make([]domain.IndexHit, 0, len(scrollResp.Result.Points))
		for _, p := range scrollResp.Result.Points {
			out = append(out, p.toHit(0))
		}
		return out, nil
	})
	if err != nil {
		return nil, wrapIndexError(operation, err)
	}
	return hits, nil
}

type scoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (p scoredPoint) toHit(distance float64) domain.IndexHit {
	metadata := make(map[string]string, len(p.Payload))
	content := ""
	for key, value := range p.Payload {
		if key == payloadContentField {
			content = stringifyPayload(value)
			continue
		}
		metadata[key] = stringifyPayload(value)
	}
	return domain.IndexHit{
		ID:       stringifyPayload(p.ID),
		Content:  content,
		Metadata: metadata,
		Distance: distance,
	}
}

func mustClauses(filter domain.MetadataFilter) []map[string]any {
	if len(filter) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	clauses := make([]map[string]any, 0, len(keys))
	for _, key := range keys {
		clauses = append(clauses, map[string]any{
			"key":   key,
			"match": map[string]any{"value": filter[key]},
		})
	}
	return clauses
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return newHTTPStatusError(operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func newHTTPStatusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}

func stringifyPayload(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
