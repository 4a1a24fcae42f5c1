// Package agent implements the root agent loop: a bounded tool-calling
// state machine that lets the model explore conversation history through
// a fixed set of context access operations instead of receiving the
// whole history in its prompt.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/openrlm/infinite-chat/internal/events"
	"github.com/openrlm/infinite-chat/internal/history"
	"github.com/openrlm/infinite-chat/internal/llm"
	"github.com/openrlm/infinite-chat/internal/prompts"
)

// State is the terminal state of a run.
type State string

// Terminal states. Every run ends in exactly one.
const (
	// StateFinalAnswer means the model called final_answer.
	StateFinalAnswer State = "final_answer"
	// StateDirectResponse means the model answered in plain text
	// without calling any tool.
	StateDirectResponse State = "direct_response"
	// StateMaxIterations means the iteration ceiling was reached.
	StateMaxIterations State = "max_iterations"
	// StateError means a backend fault aborted the run.
	StateError State = "error"
)

// Result is the full outcome of one run. It is always well-formed:
// error and max-iteration outcomes carry a normal-shaped answer with an
// explanatory reasoning string, so callers never special-case faults.
type Result struct {
	State                 State      `json:"state"`
	Answer                string     `json:"answer"`
	Reasoning             string     `json:"reasoning"`
	ContextSources        []any      `json:"context_sources"`
	ConversationLog       []LogEntry `json:"conversation_log"`
	Iterations            int        `json:"iterations"`
	ProcessingTimeSeconds float64    `json:"processing_time_seconds"`
	Error                 string     `json:"error,omitempty"`
}

// Orchestrator owns the agent loop. It is stateless between runs; all
// per-run state lives on the stack of Run.
type Orchestrator struct {
	llm           llm.Client
	store         history.Provider
	bus           *events.Bus
	logger        *slog.Logger
	maxIterations int
}

// New creates an orchestrator. maxIterations values below 1 fall back
// to the default ceiling of 20. bus may be nil.
func New(client llm.Client, store history.Provider, bus *events.Bus, logger *slog.Logger, maxIterations int) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if maxIterations < 1 {
		maxIterations = 20
	}
	return &Orchestrator{
		llm:           client,
		store:         store,
		bus:           bus,
		logger:        logger,
		maxIterations: maxIterations,
	}
}

// Run processes one user query against a conversation's history. The
// model receives only the query; everything else it must fetch through
// the toolset. The loop makes at most maxIterations backend calls.
//
// Fault policy: a backend error mid-run discards partial progress and
// returns an error-shaped result with zero iterations and an empty log.
// Cancellation is the exception: the log accumulated up to the last
// completed iteration is kept as a diagnostic artifact.
func (o *Orchestrator) Run(ctx context.Context, conversationID, userQuery string) *Result {
	start := time.Now()

	o.bus.Publish(events.Event{
		Timestamp: start,
		Source:    events.SourceAgent,
		Kind:      events.KindRequestStart,
		Data: map[string]any{
			"conversation_id": conversationID,
			"query_len":       len(userQuery),
		},
	})

	view, err := o.store.Load(ctx, conversationID)
	if err != nil {
		return o.finish(conversationID, start, o.errorResult(start, err, nil, 0))
	}

	toolset := NewToolset(view, o.llm, o.logger)
	systemPrompt := prompts.RootSystem(userQuery)

	buffer := []llm.Message{{Role: "user", Content: userQuery}}
	log := []LogEntry{
		logEntry("system", "RLM Root LM started", EntrySystem),
		logEntry("user", userQuery, ""),
	}

	iteration := 0
	for iteration < o.maxIterations {
		iteration++

		resp, err := o.complete(ctx, conversationID, iteration, buffer, systemPrompt)
		if err != nil {
			if ctx.Err() != nil {
				// Cancellation keeps the partial log for diagnostics.
				return o.finish(conversationID, start, o.errorResult(start, err, log, iteration-1))
			}
			return o.finish(conversationID, start, o.errorResult(start, err, nil, 0))
		}

		if len(resp.ToolCalls) == 0 {
			log = append(log, logEntry("assistant", resp.Content, EntryDirectResponse))
			answer := resp.Content
			if answer == "" {
				answer = "No response generated"
			}
			return o.finish(conversationID, start, &Result{
				State:                 StateDirectResponse,
				Answer:                answer,
				Reasoning:             prompts.DirectResponseReasoning,
				ContextSources:        []any{},
				ConversationLog:       log,
				Iterations:            iteration,
				ProcessingTimeSeconds: elapsed(start),
			})
		}

		callsJSON, err := json.MarshalIndent(resp.ToolCalls, "", "  ")
		if err != nil {
			return o.finish(conversationID, start, o.errorResult(start, err, nil, 0))
		}
		log = append(log, logEntry("assistant", fmt.Sprintf("Tool calls: %s", callsJSON), EntryToolRequest))

		var toolMsgs []llm.Message
		var final *FinalAnswerOp

		for _, tc := range resp.ToolCalls {
			var result map[string]any

			op, parseErr := ParseOp(tc)
			switch {
			case parseErr != nil:
				result = map[string]any{"error": parseErr.Error()}
			case isFinalAnswer(op):
				fa := op.(FinalAnswerOp)
				final = &fa
				result = map[string]any{"type": "final_answer", "data": tc.Arguments}
			default:
				result = o.executeTool(ctx, toolset, conversationID, tc.Name, op)
			}

			resultJSON, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return o.finish(conversationID, start, o.errorResult(start, err, nil, 0))
			}
			log = append(log, logEntry("tool",
				fmt.Sprintf("Tool '%s' result: %s", tc.Name, resultJSON), EntryToolResult))

			// final_answer terminates the run; later calls in the same
			// batch are never executed.
			if final != nil {
				break
			}

			compact, err := json.Marshal(result)
			if err != nil {
				return o.finish(conversationID, start, o.errorResult(start, err, nil, 0))
			}
			toolMsgs = append(toolMsgs, llm.Message{
				Role:       "tool",
				Content:    string(compact),
				ToolCallID: tc.ID,
			})
		}

		if final != nil {
			sources := final.ContextSources
			if sources == nil {
				sources = []any{}
			}
			return o.finish(conversationID, start, &Result{
				State:                 StateFinalAnswer,
				Answer:                final.Answer,
				Reasoning:             final.Reasoning,
				ContextSources:        sources,
				ConversationLog:       log,
				Iterations:            iteration,
				ProcessingTimeSeconds: elapsed(start),
			})
		}

		buffer = append(buffer, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		buffer = append(buffer, toolMsgs...)
	}

	return o.finish(conversationID, start, &Result{
		State:                 StateMaxIterations,
		Answer:                prompts.MaxIterationsApology,
		Reasoning:             "Max iterations reached without final answer",
		ContextSources:        []any{},
		ConversationLog:       log,
		Iterations:            iteration,
		ProcessingTimeSeconds: elapsed(start),
	})
}

func isFinalAnswer(op Op) bool {
	_, ok := op.(FinalAnswerOp)
	return ok
}

// complete makes one root model call with the tool schema attached,
// publishing llm_call/llm_response events around it.
func (o *Orchestrator) complete(ctx context.Context, conversationID string, iteration int, buffer []llm.Message, systemPrompt string) (*llm.ChatResponse, error) {
	o.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceAgent,
		Kind:      events.KindLLMCall,
		Data: map[string]any{
			"conversation_id": conversationID,
			"iter":            iteration,
		},
	})

	resp, err := o.llm.Complete(ctx, buffer, ToolSchema(), systemPrompt)
	if err != nil {
		return nil, err
	}

	o.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceAgent,
		Kind:      events.KindLLMResponse,
		Data: map[string]any{
			"conversation_id": conversationID,
			"iter":            iteration,
			"tokens_in":       resp.InputTokens,
			"tokens_out":      resp.OutputTokens,
			"tool_calls":      len(resp.ToolCalls),
		},
	})
	return resp, nil
}

// executeTool dispatches one non-terminal operation with tool events
// around it.
func (o *Orchestrator) executeTool(ctx context.Context, toolset *Toolset, conversationID, name string, op Op) map[string]any {
	o.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceAgent,
		Kind:      events.KindToolCall,
		Data: map[string]any{
			"conversation_id": conversationID,
			"tool":            name,
		},
	})

	started := time.Now()
	result := toolset.Execute(ctx, op)
	_, failed := result["error"]

	o.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceAgent,
		Kind:      events.KindToolDone,
		Data: map[string]any{
			"conversation_id": conversationID,
			"tool":            name,
			"ok":              !failed,
			"duration_ms":     time.Since(started).Milliseconds(),
		},
	})
	return result
}

// errorResult builds the error-shaped result. log may be nil (the
// fail-fast path) or the partial log (cancellation).
func (o *Orchestrator) errorResult(start time.Time, err error, log []LogEntry, iterations int) *Result {
	if log == nil {
		log = []LogEntry{}
	}
	return &Result{
		State:                 StateError,
		Answer:                fmt.Sprintf("An error occurred while processing your request: %v", err),
		Reasoning:             "Error in RLM processing",
		ContextSources:        []any{},
		ConversationLog:       log,
		Iterations:            iterations,
		ProcessingTimeSeconds: elapsed(start),
		Error:                 err.Error(),
	}
}

// finish publishes the request_complete event and logs the outcome.
func (o *Orchestrator) finish(conversationID string, start time.Time, r *Result) *Result {
	o.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceAgent,
		Kind:      events.KindRequestComplete,
		Data: map[string]any{
			"conversation_id": conversationID,
			"state":           string(r.State),
			"iterations":      r.Iterations,
			"elapsed_ms":      time.Since(start).Milliseconds(),
		},
	})

	o.logger.Info("agent run finished",
		"conversationID", conversationID,
		"state", r.State,
		"iterations", r.Iterations,
		"elapsed", time.Since(start),
	)
	return r
}

// elapsed returns wall-clock seconds since start, rounded to two
// decimal places.
func elapsed(start time.Time) float64 {
	return math.Round(time.Since(start).Seconds()*100) / 100
}
