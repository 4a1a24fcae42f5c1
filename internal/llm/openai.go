package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openrlm/infinite-chat/internal/config"
	"github.com/openrlm/infinite-chat/internal/httpkit"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
// The provider name selects the auth convention: "anthropic" uses
// x-api-key plus anthropic-version headers, "ollama" sends no auth,
// everything else sends a Bearer token.
type OpenAIClient struct {
	provider  string
	baseURL   string
	apiKey    string
	model     string
	maxTokens int

	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIClient creates a client from backend configuration.
func NewOpenAIClient(cfg config.LLMConfig, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	return &OpenAIClient{
		provider:  cfg.Provider,
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: maxTokens,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(cfg.Timeout()),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(logger),
		),
		logger: logger,
	}
}

// Wire types for the chat completions API. Tool call arguments travel
// as a JSON-encoded string and are decoded at this boundary.
type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []wireMessage    `json:"messages"`
	Tools       []map[string]any `json:"tools,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"`
	Stream      bool             `json:"stream"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
}

type chatResponseBody struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete implements the Client interface.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, tools []map[string]any, systemPrompt string) (*ChatResponse, error) {
	wire := make([]wireMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		wire = append(wire, wireMessage{Role: "system", Content: systemPrompt})
	}
	for _, m := range messages {
		wm := wireMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				return nil, fmt.Errorf("encode tool arguments: %w", err)
			}
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = string(args)
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		wire = append(wire, wm)
	}

	reqBody := chatRequest{
		Model:       c.model,
		Messages:    wire,
		Stream:      false,
		MaxTokens:   c.maxTokens,
		Temperature: 0.7,
	}
	if len(tools) > 0 {
		reqBody.Tools = tools
		reqBody.ToolChoice = "auto"
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	c.logger.Log(ctx, config.LevelTrace, "llm request",
		"provider", c.provider,
		"model", c.model,
		"messages", len(wire),
		"tools", len(tools),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UnavailableError{Provider: c.provider, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 4096)
		return nil, &UnavailableError{
			Provider: c.provider,
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, body),
		}
	}

	var body chatResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &MalformedResponseError{Provider: c.provider, Err: err}
	}
	if body.Error != nil {
		return nil, &UnavailableError{
			Provider: c.provider,
			Err:      fmt.Errorf("%s: %s", body.Error.Type, body.Error.Message),
		}
	}
	if len(body.Choices) == 0 {
		return nil, &MalformedResponseError{
			Provider: c.provider,
			Err:      fmt.Errorf("no choices in response"),
		}
	}

	msg := body.Choices[0].Message
	out := &ChatResponse{
		Model:        body.Model,
		Content:      msg.Content,
		InputTokens:  body.Usage.PromptTokens,
		OutputTokens: body.Usage.CompletionTokens,
	}
	for _, wtc := range msg.ToolCalls {
		tc := ToolCall{ID: wtc.ID, Name: wtc.Function.Name}
		if wtc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(wtc.Function.Arguments), &tc.Arguments); err != nil {
				return nil, &MalformedResponseError{
					Provider: c.provider,
					Err:      fmt.Errorf("decode arguments for %s: %w", wtc.Function.Name, err),
				}
			}
		}
		out.ToolCalls = append(out.ToolCalls, tc)
	}

	c.logger.Log(ctx, config.LevelTrace, "llm response",
		"provider", c.provider,
		"duration", time.Since(start),
		"toolCalls", len(out.ToolCalls),
		"inputTokens", out.InputTokens,
		"outputTokens", out.OutputTokens,
	)

	return out, nil
}

// setAuth applies the provider's auth convention.
func (c *OpenAIClient) setAuth(req *http.Request) {
	switch c.provider {
	case "anthropic":
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")
	case "ollama":
		// Local, no auth.
	default:
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
