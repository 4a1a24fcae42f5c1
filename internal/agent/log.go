package agent

import "time"

// Log entry types. Every entry in the interaction log carries one.
const (
	// EntrySystem marks the seed entry recorded when a run starts.
	EntrySystem = "system"
	// EntryToolRequest records the model's verbatim tool call batch.
	EntryToolRequest = "tool_request"
	// EntryToolResult records the outcome of one tool execution.
	EntryToolResult = "tool_result"
	// EntryDirectResponse records a plain answer given without tools.
	EntryDirectResponse = "direct_response"
)

// LogEntry is one line of the interaction log. The log is append-only
// within a run and returned whole with the result.
type LogEntry struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type,omitempty"`
}

func logEntry(role, content, entryType string) LogEntry {
	return LogEntry{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Type:      entryType,
	}
}
