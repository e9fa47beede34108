// Package openai adapts an OpenAI-compatible chat and embedding API to the
// completion and embedder ports. All calls go through the shared resilience
// executor and an optional client-side rate limit.
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/infrastructure/resilience"
)

type Config struct {
	APIKey  string
	BaseURL string

	ChatModel       string
	EmbedModel      string
	EmbedDimensions int

	// MaxConcurrent bounds in-flight API calls; zero disables the bound.
	MaxConcurrent int
	// RequestsPerSecond throttles outgoing calls; zero disables throttling.
	RequestsPerSecond float64
	Burst             int

	CallTimeout time.Duration

	Resilience resilience.Config

	// OnUsage receives token counts after each successful call.
	OnUsage func(operation, model string, promptTokens, completionTokens int)
}

type Client struct {
	api        *openai.Client
	chatModel  string
	embedModel openai.EmbeddingModel
	dimensions int

	limiter     *rate.Limiter
	slots       chan struct{}
	exec        *resilience.Executor
	callTimeout time.Duration
	onUsage     func(operation, model string, promptTokens, completionTokens int)
}

func New(cfg Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = "gpt-4o-mini"
	}
	embedModel := cfg.EmbedModel
	if embedModel == "" {
		embedModel = "text-embedding-3-small"
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 90 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	var slots chan struct{}
	if cfg.MaxConcurrent > 0 {
		slots = make(chan struct{}, cfg.MaxConcurrent)
	}

	return &Client{
		api:         openai.NewClientWithConfig(clientCfg),
		chatModel:   chatModel,
		embedModel:  openai.EmbeddingModel(embedModel),
		dimensions:  cfg.EmbedDimensions,
		limiter:     limiter,
		slots:       slots,
		exec:        resilience.NewExecutor(cfg.Resilience),
		callTimeout: callTimeout,
		onUsage:     cfg.OnUsage,
	}
}

func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	const operation = "chat_complete"
	out, err := resilience.Call(ctx, c.exec, operation, classifyAPIError, func(ctx context.Context) (string, error) {
		return c.chat(ctx, operation, systemPrompt, userPrompt, temperature, maxTokens, false)
	})
	if err != nil {
		return "", wrapTemporaryIfNeeded(operation, err)
	}
	return out, nil
}

// CompleteJSON asks for JSON-mode output and validates it against the named
// response schema. Schema violations are retried like transient failures
// but never count toward the circuit breaker.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt, schemaName string, temperature float64, maxTokens int) ([]byte, error) {
	const operation = "chat_complete_json"
	out, err := resilience.Call(ctx, c.exec, operation, classifyAPIError, func(ctx context.Context) ([]byte, error) {
		raw, err := c.chat(ctx, operation, systemPrompt, userPrompt, temperature, maxTokens, true)
		if err != nil {
			return nil, err
		}
		payload := []byte(extractJSONObject(raw))
		if err := validateResponse(schemaName, payload); err != nil {
			return nil, err
		}
		return payload, nil
	})
	if err != nil {
		return nil, wrapTemporaryIfNeeded(operation, err)
	}
	return out, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	const operation = "embed"
	out, err := resilience.Call(ctx, c.exec, operation, classifyAPIError, func(ctx context.Context) ([][]float32, error) {
		return c.embed(ctx, texts)
	})
	if err != nil {
		return nil, wrapTemporaryIfNeeded(operation, err)
	}
	return out, nil
}

// chat dispatches one completion call. The dispatched call is detached
// from caller cancellation and bounded by the call timeout: an abandoned
// request lets an in-flight call finish and discards the result. Queueing
// in acquire still honors caller cancellation.
func (c *Client) chat(ctx context.Context, operation, systemPrompt, userPrompt string, temperature float64, maxTokens int, jsonMode bool) (string, error) {
	if err := c.acquire(ctx); err != nil {
		return "", err
	}
	defer c.release()

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: float32(temperature),
		MaxTokens:   maxTokens,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(callCtx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	c.recordUsage(operation, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *Client) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout)
	defer cancel()

	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          c.embedModel,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if c.dimensions > 0 {
		req.Dimensions = c.dimensions
	}

	resp, err := c.api.CreateEmbeddings(callCtx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding response index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	c.recordUsage("embed", resp.Usage.PromptTokens, resp.Usage.TotalTokens-resp.Usage.PromptTokens)
	return vectors, nil
}

func (c *Client) acquire(ctx context.Context) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if c.slots != nil {
		select {
		case c.slots <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *Client) release() {
	if c.slots != nil {
		<-c.slots
	}
}

func (c *Client) recordUsage(operation string, promptTokens, completionTokens int) {
	if c.onUsage == nil {
		return
	}
	model := c.chatModel
	if operation == "embed" {
		model = string(c.embedModel)
	}
	c.onUsage(operation, model, promptTokens, completionTokens)
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
