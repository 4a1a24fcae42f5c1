package agent

import (
	"fmt"

	"github.com/openrlm/infinite-chat/internal/llm"
)

// Op is a parsed context access operation. The set is closed: exactly
// five operations exist, and Toolset.Execute switches over them
// exhaustively. Parsing the wire name happens once, in ParseOp; past
// that point there is no "unknown tool" state.
type Op interface {
	opName() string
}

// OverviewOp requests conversation-level metadata.
type OverviewOp struct{}

func (OverviewOp) opName() string { return "get_context_overview" }

// ChunkOp retrieves a message range [Start, End), truncated to at most
// MaxTokens characters of content.
type ChunkOp struct {
	Start     int
	End       int
	MaxTokens int
}

func (ChunkOp) opName() string { return "get_context_chunk" }

// SearchOp runs a fuzzy search over the history view.
type SearchOp struct {
	Query string
	Limit int
}

func (SearchOp) opName() string { return "search_context" }

// RecursiveOp delegates an analysis task over a caller-supplied message
// subset to the model backend. Subset records are arbitrary
// message-shaped values, serialized verbatim into the delegated request.
type RecursiveOp struct {
	Prompt string
	Subset []any
	Task   string
}

func (RecursiveOp) opName() string { return "recursive_lm_call" }

// FinalAnswerOp terminates the run with the model's answer.
type FinalAnswerOp struct {
	Answer         string
	Reasoning      string
	ContextSources []any
}

func (FinalAnswerOp) opName() string { return "final_answer" }

// ArgumentError reports a tool call the model got wrong: an unknown
// tool name or a missing/mistyped argument. It is recovered locally,
// surfaced back to the model as an error payload so it can retry.
type ArgumentError struct {
	Tool string
	Msg  string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Tool, e.Msg)
}

// ParseOp converts a wire tool call into a typed operation. Defaults
// mirror the tool schema: chunk end = start+10, max_tokens = 2000,
// search limit = 5, recursive task = "analyze".
func ParseOp(tc llm.ToolCall) (Op, error) {
	args := tc.Arguments
	switch tc.Name {
	case "get_context_overview":
		return OverviewOp{}, nil

	case "get_context_chunk":
		start, err := intArg(tc.Name, args, "start_index", 0)
		if err != nil {
			return nil, err
		}
		end, err := intArg(tc.Name, args, "end_index", start+10)
		if err != nil {
			return nil, err
		}
		maxTokens, err := intArg(tc.Name, args, "max_tokens", 2000)
		if err != nil {
			return nil, err
		}
		return ChunkOp{Start: start, End: end, MaxTokens: maxTokens}, nil

	case "search_context":
		query, err := stringArg(tc.Name, args, "query", "")
		if err != nil {
			return nil, err
		}
		limit, err := intArg(tc.Name, args, "limit", 5)
		if err != nil {
			return nil, err
		}
		return SearchOp{Query: query, Limit: limit}, nil

	case "recursive_lm_call":
		prompt, err := stringArg(tc.Name, args, "prompt", "")
		if err != nil {
			return nil, err
		}
		task, err := stringArg(tc.Name, args, "task", "analyze")
		if err != nil {
			return nil, err
		}
		var subset []any
		if raw, ok := args["context_subset"]; ok && raw != nil {
			subset, ok = raw.([]any)
			if !ok {
				return nil, &ArgumentError{Tool: tc.Name, Msg: "context_subset must be an array"}
			}
		}
		return RecursiveOp{Prompt: prompt, Subset: subset, Task: task}, nil

	case "final_answer":
		answer, err := stringArg(tc.Name, args, "answer", "")
		if err != nil {
			return nil, err
		}
		if answer == "" {
			return nil, &ArgumentError{Tool: tc.Name, Msg: "missing required argument: answer"}
		}
		reasoning, err := stringArg(tc.Name, args, "reasoning", "")
		if err != nil {
			return nil, err
		}
		var sources []any
		if raw, ok := args["context_sources"]; ok && raw != nil {
			sources, ok = raw.([]any)
			if !ok {
				return nil, &ArgumentError{Tool: tc.Name, Msg: "context_sources must be an array"}
			}
		}
		return FinalAnswerOp{Answer: answer, Reasoning: reasoning, ContextSources: sources}, nil

	default:
		return nil, &ArgumentError{Tool: tc.Name, Msg: "unknown tool"}
	}
}

// intArg reads an integer argument, tolerating the float64 values JSON
// decoding produces.
func intArg(tool string, args map[string]any, key string, def int) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, &ArgumentError{Tool: tool, Msg: fmt.Sprintf("%s must be an integer", key)}
	}
}

func stringArg(tool string, args map[string]any, key, def string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", &ArgumentError{Tool: tool, Msg: fmt.Sprintf("%s must be a string", key)}
	}
	return s, nil
}
