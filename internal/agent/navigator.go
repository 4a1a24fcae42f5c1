package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/openrlm/infinite-chat/internal/fuzzy"
	"github.com/openrlm/infinite-chat/internal/history"
	"github.com/openrlm/infinite-chat/internal/llm"
	"github.com/openrlm/infinite-chat/internal/prompts"
)

// Navigator is the plain chat mode: the model sees a recency window of
// the conversation directly, plus search and expand tools for reaching
// history beyond the window. Unlike the orchestrator loop it does at
// most one round of tool execution per message.
type Navigator struct {
	llm    llm.Client
	store  history.Provider
	window history.Window
	logger *slog.Logger
}

// NewNavigator creates a navigator sized to the given context window.
func NewNavigator(client llm.Client, store history.Provider, windowTokens int, logger *slog.Logger) *Navigator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{
		llm:    client,
		store:  store,
		window: history.NewWindow(windowTokens),
		logger: logger,
	}
}

// ChatOutcome is the result of one navigator exchange.
type ChatOutcome struct {
	Response  string
	MessageID string
	Stats     map[string]int
	ToolsUsed []string
}

// Chat appends the user message to the chat track, completes against
// the recency window, runs one round of tool calls if the model asks,
// and persists the assistant reply.
func (n *Navigator) Chat(ctx context.Context, conversationID, message string) (*ChatOutcome, error) {
	if _, err := n.store.Append(ctx, conversationID, history.TrackChat, "user", message, nil); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	view, err := n.store.Load(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	recent := n.window.Recent(view, history.DefaultReserveTokens)
	buffer := make([]llm.Message, 0, len(recent)+2)
	for _, m := range recent {
		buffer = append(buffer, llm.Message{Role: m.Role, Content: m.Content})
	}

	systemPrompt := prompts.NavigatorSystem(n.window.MaxTokens)
	resp, err := n.llm.Complete(ctx, buffer, navigatorToolSchema(), systemPrompt)
	if err != nil {
		return nil, err
	}

	var toolsUsed []string
	if len(resp.ToolCalls) > 0 {
		buffer = append(buffer, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			toolsUsed = append(toolsUsed, tc.Name)
			result := n.executeTool(view, tc)
			content, err := json.Marshal(result)
			if err != nil {
				return nil, fmt.Errorf("encode tool result: %w", err)
			}
			buffer = append(buffer, llm.Message{
				Role:       "tool",
				Content:    string(content),
				ToolCallID: tc.ID,
			})
		}

		resp, err = n.llm.Complete(ctx, buffer, navigatorToolSchema(), systemPrompt)
		if err != nil {
			return nil, err
		}
	}

	msgID, err := n.store.Append(ctx, conversationID, history.TrackChat, "assistant", resp.Content, nil)
	if err != nil {
		return nil, fmt.Errorf("append assistant message: %w", err)
	}

	updated, err := n.store.Load(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("reload history: %w", err)
	}

	return &ChatOutcome{
		Response:  resp.Content,
		MessageID: msgID,
		Stats:     history.WindowStats(n.window.Recent(updated, history.DefaultReserveTokens)),
		ToolsUsed: toolsUsed,
	}, nil
}

// executeTool runs one navigator tool against the full view. Failures
// are error payloads for the model, never Go errors.
func (n *Navigator) executeTool(view history.View, tc llm.ToolCall) any {
	switch tc.Name {
	case "search_conversations":
		query, err := stringArg(tc.Name, tc.Arguments, "query", "")
		if err != nil {
			return map[string]any{"error": err.Error()}
		}
		limit, err := intArg(tc.Name, tc.Arguments, "limit", 5)
		if err != nil {
			return map[string]any{"error": err.Error()}
		}
		return fuzzy.SearchMessages(view, query, limit)

	case "expand_context":
		msgID, err := stringArg(tc.Name, tc.Arguments, "message_id", "")
		if err != nil {
			return map[string]any{"error": err.Error()}
		}
		dir, err := stringArg(tc.Name, tc.Arguments, "direction", "both")
		if err != nil {
			return map[string]any{"error": err.Error()}
		}
		pairs, err := intArg(tc.Name, tc.Arguments, "pairs", 3)
		if err != nil {
			return map[string]any{"error": err.Error()}
		}
		return fuzzy.ExpandContext(view, msgID, fuzzy.ParseDirection(dir), pairs)

	default:
		return map[string]any{"error": fmt.Sprintf("unknown tool: %s", tc.Name)}
	}
}

// navigatorToolSchema declares the two history navigation tools.
func navigatorToolSchema() []map[string]any {
	return []map[string]any{
		{
			"type": "function",
			"function": map[string]any{
				"name":        "search_conversations",
				"description": "Search conversation history using fuzzy matching. Returns snippets around matching text.",
				"parameters": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "Search query - uses fuzzy matching like fzf",
						},
						"limit": map[string]any{
							"type":        "integer",
							"description": "Maximum number of results to return",
							"default":     5,
						},
					},
					"required": []string{"query"},
				},
			},
		},
		{
			"type": "function",
			"function": map[string]any{
				"name":        "expand_context",
				"description": "Expand context around a specific message. Use this when you need to see full message pairs around a search result.",
				"parameters": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"message_id": map[string]any{
							"type":        "string",
							"description": "ID of the message to expand around",
						},
						"direction": map[string]any{
							"type":        "string",
							"enum":        []string{"before", "after", "both"},
							"description": "Which direction to expand around the message",
							"default":     "both",
						},
						"pairs": map[string]any{
							"type":        "integer",
							"description": "Number of message pairs to expand (each pair = 2 messages)",
							"default":     3,
						},
					},
					"required": []string{"message_id"},
				},
			},
		},
	}
}
