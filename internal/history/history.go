// Package history provides conversation history storage and the read-only
// view the agent explores. A conversation carries three tracks: the clean
// user/assistant dialogue of agent mode, the plain chat exchange, and the
// agent interaction log. Search and retrieval operate on the merged,
// timestamp-ordered view of the two dialogue tracks; the agent log is an
// audit artifact, never searched.
package history

import "context"

// Track names for the message streams of a conversation.
const (
	// TrackDialogue holds the clean user/assistant exchange of agent mode.
	TrackDialogue = "dialogue"
	// TrackChat holds the plain chat exchange.
	TrackChat = "chat"
	// TrackAgent holds the agent's interaction log entries. Excluded
	// from the merged view.
	TrackAgent = "agent"
)

// Message is a single stored conversation message. Messages are immutable
// once persisted; insertion order equals timestamp order.
type Message struct {
	ID        string         `json:"id"`
	Role      string         `json:"role"` // system, user, assistant, tool
	Content   string         `json:"content"`
	Timestamp string         `json:"timestamp"` // RFC 3339, non-decreasing
	Track     string         `json:"track,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// View is the immutable merged history a single agent run explores.
// It is built once per query by the Provider and never mutated by the
// core; both dialogue tracks appear, sorted by timestamp, duplicates
// unmerged.
type View []Message

// ByID returns the index of the message with the given id, or -1.
func (v View) ByID(id string) int {
	for i, m := range v {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// TotalChars returns the summed content length across the view,
// the core's token approximation (no tokenizer).
func (v View) TotalChars() int {
	total := 0
	for _, m := range v {
		total += len(m.Content)
	}
	return total
}

// Provider is the storage collaborator the agent core reads history
// through. Implementations must preserve insertion order and return
// ids stable and unique within a conversation.
type Provider interface {
	// Load returns the merged, timestamp-ordered view of the dialogue
	// and chat tracks.
	Load(ctx context.Context, conversationID string) (View, error)

	// LoadTrack returns a single track in insertion order.
	LoadTrack(ctx context.Context, conversationID, track string) (View, error)

	// Append adds a message to a track and returns its id.
	Append(ctx context.Context, conversationID, track, role, content string, metadata map[string]any) (string, error)
}
