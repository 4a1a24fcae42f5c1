package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/openrlm/infinite-chat/internal/history"
	"github.com/openrlm/infinite-chat/internal/llm"
	"github.com/openrlm/infinite-chat/internal/prompts"
)

// funcClient scripts the model backend with a closure.
type funcClient func(ctx context.Context, messages []llm.Message, tools []map[string]any, systemPrompt string) (*llm.ChatResponse, error)

func (f funcClient) Complete(ctx context.Context, messages []llm.Message, tools []map[string]any, systemPrompt string) (*llm.ChatResponse, error) {
	return f(ctx, messages, tools, systemPrompt)
}

// fakeStore serves a fixed view.
type fakeStore struct {
	view history.View
	err  error
}

func (f *fakeStore) Load(ctx context.Context, conversationID string) (history.View, error) {
	return f.view, f.err
}

func (f *fakeStore) LoadTrack(ctx context.Context, conversationID, track string) (history.View, error) {
	return f.view, f.err
}

func (f *fakeStore) Append(ctx context.Context, conversationID, track, role, content string, metadata map[string]any) (string, error) {
	return "msg-id", nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func toolCallResp(name string, args map[string]any) *llm.ChatResponse {
	return &llm.ChatResponse{
		ToolCalls: []llm.ToolCall{{ID: "tc1", Name: name, Arguments: args}},
	}
}

func finalAnswerResp(answer, reasoning string) *llm.ChatResponse {
	return toolCallResp("final_answer", map[string]any{
		"answer":    answer,
		"reasoning": reasoning,
	})
}

func TestRunFinalAnswer(t *testing.T) {
	calls := 0
	client := funcClient(func(ctx context.Context, messages []llm.Message, tools []map[string]any, systemPrompt string) (*llm.ChatResponse, error) {
		calls++
		if calls == 1 {
			return toolCallResp("get_context_overview", nil), nil
		}
		return finalAnswerResp("the answer", "because"), nil
	})

	o := New(client, &fakeStore{}, nil, testLogger(), 20)
	result := o.Run(context.Background(), "c1", "what happened?")

	if result.State != StateFinalAnswer {
		t.Fatalf("state = %s, want %s", result.State, StateFinalAnswer)
	}
	if result.Answer != "the answer" || result.Reasoning != "because" {
		t.Errorf("answer/reasoning = %q/%q", result.Answer, result.Reasoning)
	}
	if result.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", result.Iterations)
	}
	if calls != 2 {
		t.Errorf("backend calls = %d, want 2", calls)
	}
	// 2 seed entries plus one tool_request and one tool_result per iteration.
	if len(result.ConversationLog) != 6 {
		t.Errorf("log has %d entries, want 6", len(result.ConversationLog))
	}
	if result.ContextSources == nil {
		t.Error("context_sources must be an empty array, not nil")
	}
	if result.Error != "" {
		t.Errorf("unexpected error field %q", result.Error)
	}
}

func TestRunLogSeedEntries(t *testing.T) {
	client := funcClient(func(ctx context.Context, messages []llm.Message, tools []map[string]any, systemPrompt string) (*llm.ChatResponse, error) {
		return finalAnswerResp("done", ""), nil
	})

	o := New(client, &fakeStore{}, nil, testLogger(), 20)
	result := o.Run(context.Background(), "c1", "the question")

	log := result.ConversationLog
	if len(log) < 2 {
		t.Fatalf("log has %d entries, want at least 2", len(log))
	}
	if log[0].Role != "system" || log[0].Content != "RLM Root LM started" || log[0].Type != EntrySystem {
		t.Errorf("seed[0] = %+v", log[0])
	}
	if log[1].Role != "user" || log[1].Content != "the question" {
		t.Errorf("seed[1] = %+v", log[1])
	}
	if log[2].Type != EntryToolRequest || !strings.HasPrefix(log[2].Content, "Tool calls: ") {
		t.Errorf("log[2] = %+v", log[2])
	}
	if log[3].Type != EntryToolResult || !strings.HasPrefix(log[3].Content, "Tool 'final_answer' result: ") {
		t.Errorf("log[3] = %+v", log[3])
	}
}

func TestRunDirectResponse(t *testing.T) {
	client := funcClient(func(ctx context.Context, messages []llm.Message, tools []map[string]any, systemPrompt string) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{Content: "plain text answer"}, nil
	})

	o := New(client, &fakeStore{}, nil, testLogger(), 20)
	result := o.Run(context.Background(), "c1", "hi")

	if result.State != StateDirectResponse {
		t.Fatalf("state = %s, want %s", result.State, StateDirectResponse)
	}
	if result.Answer != "plain text answer" {
		t.Errorf("answer = %q", result.Answer)
	}
	if result.Reasoning != prompts.DirectResponseReasoning {
		t.Errorf("reasoning = %q", result.Reasoning)
	}
	if result.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", result.Iterations)
	}
	last := result.ConversationLog[len(result.ConversationLog)-1]
	if last.Type != EntryDirectResponse {
		t.Errorf("last log type = %q, want %q", last.Type, EntryDirectResponse)
	}
}

func TestRunDirectResponseEmptyContent(t *testing.T) {
	client := funcClient(func(ctx context.Context, messages []llm.Message, tools []map[string]any, systemPrompt string) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{}, nil
	})

	o := New(client, &fakeStore{}, nil, testLogger(), 20)
	result := o.Run(context.Background(), "c1", "hi")

	if result.Answer != "No response generated" {
		t.Errorf("answer = %q, want fallback", result.Answer)
	}
}

func TestRunMaxIterations(t *testing.T) {
	calls := 0
	client := funcClient(func(ctx context.Context, messages []llm.Message, tools []map[string]any, systemPrompt string) (*llm.ChatResponse, error) {
		calls++
		return toolCallResp("get_context_overview", nil), nil
	})

	o := New(client, &fakeStore{}, nil, testLogger(), 3)
	result := o.Run(context.Background(), "c1", "loop forever")

	if result.State != StateMaxIterations {
		t.Fatalf("state = %s, want %s", result.State, StateMaxIterations)
	}
	if result.Iterations != 3 {
		t.Errorf("iterations = %d, want 3", result.Iterations)
	}
	if calls != 3 {
		t.Errorf("backend calls = %d, want exactly 3", calls)
	}
	if result.Answer != prompts.MaxIterationsApology {
		t.Errorf("answer = %q, want apology", result.Answer)
	}
	if len(result.ConversationLog) != 8 {
		t.Errorf("log has %d entries, want 8", len(result.ConversationLog))
	}
}

func TestRunBackendError(t *testing.T) {
	client := funcClient(func(ctx context.Context, messages []llm.Message, tools []map[string]any, systemPrompt string) (*llm.ChatResponse, error) {
		return nil, errors.New("backend down")
	})

	o := New(client, &fakeStore{}, nil, testLogger(), 20)
	result := o.Run(context.Background(), "c1", "hi")

	if result.State != StateError {
		t.Fatalf("state = %s, want %s", result.State, StateError)
	}
	if result.Iterations != 0 {
		t.Errorf("iterations = %d, want 0", result.Iterations)
	}
	if len(result.ConversationLog) != 0 {
		t.Errorf("log has %d entries, want 0", len(result.ConversationLog))
	}
	if result.ConversationLog == nil {
		t.Error("log must be an empty slice, not nil")
	}
	want := "An error occurred while processing your request: backend down"
	if result.Answer != want {
		t.Errorf("answer = %q, want %q", result.Answer, want)
	}
	if result.Reasoning != "Error in RLM processing" {
		t.Errorf("reasoning = %q", result.Reasoning)
	}
	if result.Error != "backend down" {
		t.Errorf("error = %q", result.Error)
	}
}

func TestRunMidRunErrorDiscardsProgress(t *testing.T) {
	calls := 0
	client := funcClient(func(ctx context.Context, messages []llm.Message, tools []map[string]any, systemPrompt string) (*llm.ChatResponse, error) {
		calls++
		if calls == 1 {
			return toolCallResp("get_context_overview", nil), nil
		}
		return nil, errors.New("flaked")
	})

	o := New(client, &fakeStore{}, nil, testLogger(), 20)
	result := o.Run(context.Background(), "c1", "hi")

	if result.State != StateError {
		t.Fatalf("state = %s, want %s", result.State, StateError)
	}
	if result.Iterations != 0 {
		t.Errorf("iterations = %d, want 0 after mid-run fault", result.Iterations)
	}
	if len(result.ConversationLog) != 0 {
		t.Errorf("log has %d entries, want 0 after mid-run fault", len(result.ConversationLog))
	}
}

func TestRunCancellationKeepsPartialLog(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	client := funcClient(func(ctx context.Context, messages []llm.Message, tools []map[string]any, systemPrompt string) (*llm.ChatResponse, error) {
		calls++
		if calls == 1 {
			return toolCallResp("get_context_overview", nil), nil
		}
		cancel()
		return nil, ctx.Err()
	})

	o := New(client, &fakeStore{}, nil, testLogger(), 20)
	result := o.Run(ctx, "c1", "hi")

	if result.State != StateError {
		t.Fatalf("state = %s, want %s", result.State, StateError)
	}
	if result.Iterations != 1 {
		t.Errorf("iterations = %d, want 1 (last completed iteration)", result.Iterations)
	}
	// Seeds plus the first iteration's tool_request and tool_result survive.
	if len(result.ConversationLog) != 4 {
		t.Errorf("log has %d entries, want 4", len(result.ConversationLog))
	}
}

func TestRunStoreErrorFailsFast(t *testing.T) {
	client := funcClient(func(ctx context.Context, messages []llm.Message, tools []map[string]any, systemPrompt string) (*llm.ChatResponse, error) {
		t.Fatal("backend must not be called when the store fails")
		return nil, nil
	})

	o := New(client, &fakeStore{err: errors.New("disk gone")}, nil, testLogger(), 20)
	result := o.Run(context.Background(), "c1", "hi")

	if result.State != StateError {
		t.Fatalf("state = %s, want %s", result.State, StateError)
	}
	if result.Iterations != 0 || len(result.ConversationLog) != 0 {
		t.Errorf("iterations=%d log=%d, want 0/0", result.Iterations, len(result.ConversationLog))
	}
}

func TestRunFinalAnswerStopsBatch(t *testing.T) {
	client := funcClient(func(ctx context.Context, messages []llm.Message, tools []map[string]any, systemPrompt string) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{
			ToolCalls: []llm.ToolCall{
				{ID: "tc1", Name: "final_answer", Arguments: map[string]any{"answer": "done"}},
				{ID: "tc2", Name: "get_context_overview", Arguments: nil},
			},
		}, nil
	})

	o := New(client, &fakeStore{}, nil, testLogger(), 20)
	result := o.Run(context.Background(), "c1", "hi")

	if result.State != StateFinalAnswer {
		t.Fatalf("state = %s, want %s", result.State, StateFinalAnswer)
	}
	// Seeds + tool_request + exactly one tool_result. The second call in
	// the batch is never executed or logged.
	if len(result.ConversationLog) != 4 {
		t.Errorf("log has %d entries, want 4", len(result.ConversationLog))
	}
	last := result.ConversationLog[3]
	if !strings.Contains(last.Content, "final_answer") {
		t.Errorf("last log entry = %q, want final_answer result", last.Content)
	}
}

func TestRunUnknownToolContinues(t *testing.T) {
	calls := 0
	client := funcClient(func(ctx context.Context, messages []llm.Message, tools []map[string]any, systemPrompt string) (*llm.ChatResponse, error) {
		calls++
		if calls == 1 {
			return toolCallResp("bogus_tool", map[string]any{"x": 1}), nil
		}
		return finalAnswerResp("recovered", ""), nil
	})

	o := New(client, &fakeStore{}, nil, testLogger(), 20)
	result := o.Run(context.Background(), "c1", "hi")

	if result.State != StateFinalAnswer {
		t.Fatalf("state = %s, want %s after recovering from unknown tool", result.State, StateFinalAnswer)
	}
	found := false
	for _, e := range result.ConversationLog {
		if e.Type == EntryToolResult && strings.Contains(e.Content, "unknown tool") {
			found = true
		}
	}
	if !found {
		t.Error("expected an error payload for the unknown tool in the log")
	}
}

func TestRunFeedsToolResultsBack(t *testing.T) {
	var secondCallMsgs []llm.Message
	calls := 0
	client := funcClient(func(ctx context.Context, messages []llm.Message, tools []map[string]any, systemPrompt string) (*llm.ChatResponse, error) {
		calls++
		if calls == 1 {
			return toolCallResp("get_context_overview", nil), nil
		}
		secondCallMsgs = messages
		return finalAnswerResp("done", ""), nil
	})

	o := New(client, &fakeStore{}, nil, testLogger(), 20)
	o.Run(context.Background(), "c1", "the query")

	// user query, assistant tool request, tool result.
	if len(secondCallMsgs) != 3 {
		t.Fatalf("second call saw %d messages, want 3", len(secondCallMsgs))
	}
	if secondCallMsgs[0].Role != "user" || secondCallMsgs[0].Content != "the query" {
		t.Errorf("buffer[0] = %+v", secondCallMsgs[0])
	}
	if secondCallMsgs[1].Role != "assistant" || len(secondCallMsgs[1].ToolCalls) != 1 {
		t.Errorf("buffer[1] = %+v", secondCallMsgs[1])
	}
	if secondCallMsgs[2].Role != "tool" || secondCallMsgs[2].ToolCallID != "tc1" {
		t.Errorf("buffer[2] = %+v", secondCallMsgs[2])
	}
}

func TestRunSystemPromptCarriesQuery(t *testing.T) {
	var gotPrompt string
	client := funcClient(func(ctx context.Context, messages []llm.Message, tools []map[string]any, systemPrompt string) (*llm.ChatResponse, error) {
		gotPrompt = systemPrompt
		return finalAnswerResp("done", ""), nil
	})

	query := fmt.Sprintf("needle-%d", 42)
	o := New(client, &fakeStore{}, nil, testLogger(), 20)
	o.Run(context.Background(), "c1", query)

	if !strings.Contains(gotPrompt, query) {
		t.Error("system prompt does not embed the user query")
	}
}

func TestNewDefaultsMaxIterations(t *testing.T) {
	o := New(nil, &fakeStore{}, nil, testLogger(), 0)
	if o.maxIterations != 20 {
		t.Errorf("maxIterations = %d, want 20", o.maxIterations)
	}
}
