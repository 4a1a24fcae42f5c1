package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openrlm/infinite-chat/internal/fuzzy"
	"github.com/openrlm/infinite-chat/internal/history"
	"github.com/openrlm/infinite-chat/internal/llm"
	"github.com/openrlm/infinite-chat/internal/prompts"
)

// Toolset executes context access operations against one immutable
// history view. A fresh Toolset is built per run; it never mutates the
// view. All failures are returned as error payloads in the result map
// so the model can see them and retry — nothing here panics or aborts
// the loop.
type Toolset struct {
	view   history.View
	llm    llm.Client
	logger *slog.Logger
}

// NewToolset builds a toolset over a history view. The llm client is
// only used by recursive_lm_call.
func NewToolset(view history.View, client llm.Client, logger *slog.Logger) *Toolset {
	if logger == nil {
		logger = slog.Default()
	}
	return &Toolset{view: view, llm: client, logger: logger}
}

func errPayload(format string, args ...any) map[string]any {
	return map[string]any{"error": fmt.Sprintf(format, args...)}
}

// Execute runs one operation. FinalAnswerOp never reaches here; the
// orchestrator terminates on it before dispatch.
func (t *Toolset) Execute(ctx context.Context, op Op) map[string]any {
	switch op := op.(type) {
	case OverviewOp:
		return t.overview()
	case ChunkOp:
		return t.chunk(op)
	case SearchOp:
		return t.search(op)
	case RecursiveOp:
		return t.recursive(ctx, op)
	case FinalAnswerOp:
		return map[string]any{"error": "final_answer is terminal and cannot be executed"}
	default:
		// Unreachable: ParseOp only produces the five variants above.
		return errPayload("unknown operation %T", op)
	}
}

// overview summarizes the whole view: size, time span, rough topics,
// and per-role message counts. Token counts are character counts; there
// is no tokenizer in the loop.
func (t *Toolset) overview() map[string]any {
	if len(t.view) == 0 {
		return map[string]any{
			"total_messages":       0,
			"total_tokens":         0,
			"conversation_span":    "No messages",
			"topics":               []any{},
			"message_distribution": map[string]int{},
		}
	}

	span := "Unknown time span"
	var timestamps []string
	for _, m := range t.view {
		if m.Timestamp != "" {
			timestamps = append(timestamps, m.Timestamp)
		}
	}
	if len(timestamps) > 0 {
		span = fmt.Sprintf("%s to %s", datePrefix(timestamps[0]), datePrefix(timestamps[len(timestamps)-1]))
	}

	roleCounts := map[string]int{}
	for _, m := range t.view {
		role := m.Role
		if role == "" {
			role = "unknown"
		}
		roleCounts[role]++
	}

	return map[string]any{
		"total_messages":       len(t.view),
		"total_tokens":         t.view.TotalChars(),
		"conversation_span":    span,
		"potential_topics":     potentialTopics(t.view),
		"message_distribution": roleCounts,
		"context_available":    true,
	}
}

// datePrefix returns the date part of an RFC 3339 timestamp (the first
// ten characters), or the whole string if shorter.
func datePrefix(ts string) string {
	if len(ts) > 10 {
		return ts[:10]
	}
	return ts
}

// potentialTopics returns up to 10 distinct lowercase words longer than
// 4 characters that occur more than twice across the view, in first
// appearance order.
func potentialTopics(view history.View) []string {
	counts := map[string]int{}
	var order []string
	for _, m := range view {
		for _, word := range strings.Fields(strings.ToLower(m.Content)) {
			if len([]rune(word)) <= 4 {
				continue
			}
			if counts[word] == 0 {
				order = append(order, word)
			}
			counts[word]++
		}
	}

	topics := []string{}
	for _, word := range order {
		if counts[word] > 2 {
			topics = append(topics, word)
			if len(topics) == 10 {
				break
			}
		}
	}
	return topics
}

// chunk slices the view by index, then greedily keeps messages from the
// front of the slice while their cumulative content length stays within
// the token budget.
func (t *Toolset) chunk(op ChunkOp) map[string]any {
	total := len(t.view)

	start, end := op.Start, op.End
	if start < 0 {
		start = 0
	}
	if end > total {
		end = total
	}
	if start >= total {
		return errPayload("Start index %d exceeds total messages %d", start, total)
	}
	if end < start {
		end = start
	}

	chunk := t.view[start:end]

	tokens := 0
	for _, m := range chunk {
		tokens += len(m.Content)
	}
	if tokens > op.MaxTokens {
		kept := 0
		running := 0
		for _, m := range chunk {
			if running+len(m.Content) > op.MaxTokens {
				break
			}
			running += len(m.Content)
			kept++
		}
		chunk = chunk[:kept]
		tokens = running
	}

	return map[string]any{
		"chunk":            chunk,
		"start_index":      start,
		"end_index":        start + len(chunk),
		"total_in_chunk":   len(chunk),
		"estimated_tokens": tokens,
		"has_more":         end < total,
	}
}

// search runs the fuzzy matcher over the view and expands two message
// pairs of surrounding context around every hit.
func (t *Toolset) search(op SearchOp) map[string]any {
	if len(t.view) == 0 {
		return map[string]any{
			"results":        []any{},
			"total_messages": 0,
		}
	}

	hits := fuzzy.SearchMessages(t.view, op.Query, op.Limit)

	expanded := []map[string]any{}
	for _, hit := range hits {
		expanded = append(expanded, map[string]any{
			"search_result":    hit,
			"expanded_context": fuzzy.ExpandContext(t.view, hit.MessageID, fuzzy.Both, 2),
		})
	}

	return map[string]any{
		"results":     expanded,
		"query":       op.Query,
		"total_found": len(expanded),
	}
}

// recursive delegates a sub-task to the model backend over the supplied
// subset. The sub-call is isolated: the main loop's buffer is not sent,
// only the task, prompt, and serialized subset. Backend failures come
// back as error payloads rather than aborting the run.
func (t *Toolset) recursive(ctx context.Context, op RecursiveOp) map[string]any {
	if len(op.Subset) == 0 {
		return map[string]any{"error": "No context subset provided for recursive LM call"}
	}

	subsetJSON, err := json.MarshalIndent(op.Subset, "", "  ")
	if err != nil {
		return errPayload("Failed recursive LM call: %v", err)
	}

	userContent := fmt.Sprintf("Task: %s\n\nPrompt: %s\n\nContext to analyze:\n%s",
		op.Task, op.Prompt, subsetJSON)

	resp, err := t.llm.Complete(ctx,
		[]llm.Message{{Role: "user", Content: userContent}},
		nil,
		prompts.RecursiveSystem,
	)
	if err != nil {
		t.logger.Warn("recursive call failed", "task", op.Task, "error", err)
		return errPayload("Failed recursive LM call: %v", err)
	}

	return map[string]any{
		"result":       resp.Content,
		"task":         op.Task,
		"context_size": len(op.Subset),
		"timestamp":    time.Now().UTC().Format(time.RFC3339Nano),
	}
}
