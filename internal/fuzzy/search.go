package fuzzy

import (
	"sort"

	"github.com/openrlm/infinite-chat/internal/history"
)

// Direction selects which side of a message ExpandContext grows toward.
type Direction string

// Expansion directions.
const (
	Before Direction = "before"
	After  Direction = "after"
	Both   Direction = "both"
)

// ParseDirection maps a wire string to a Direction, defaulting to Both.
func ParseDirection(s string) Direction {
	switch Direction(s) {
	case Before, After:
		return Direction(s)
	default:
		return Both
	}
}

// SearchResult is one scored hit from SearchMessages. Transient: built
// per query, never persisted.
type SearchResult struct {
	MessageID string  `json:"message_id"`
	Snippet   string  `json:"snippet"`
	Timestamp string  `json:"timestamp"`
	Role      string  `json:"role"`
	Score     float64 `json:"score"`
	MatchSpan Span    `json:"match_span"`
}

// SearchMessages scores every message against the query, extracting a
// snippet around the first located span. Results are sorted by score,
// highest first, and capped at limit.
func SearchMessages(messages history.View, query string, limit int) []SearchResult {
	var results []SearchResult

	for _, msg := range messages {
		spans := FindMatchSpans(query, msg.Content)
		if len(spans) == 0 {
			continue
		}

		best := spans[0]
		results = append(results, SearchResult{
			MessageID: msg.ID,
			Snippet:   ExtractSnippet(msg.Content, best, 1),
			Timestamp: msg.Timestamp,
			Role:      msg.Role,
			Score:     Score(query, msg.Content),
			MatchSpan: best,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// ExpandContext returns the message with the given id plus up to pairs*2
// messages on the requested side(s), clipped to the view bounds and in
// original order. An unknown id yields an empty slice, not an error;
// callers must treat emptiness as "nothing to show".
func ExpandContext(messages history.View, messageID string, direction Direction, pairs int) []history.Message {
	target := messages.ByID(messageID)
	if target == -1 {
		return []history.Message{}
	}

	start, end := target, target+1

	if direction == Before || direction == Both {
		start = target - pairs*2
		if start < 0 {
			start = 0
		}
	}
	if direction == After || direction == Both {
		end = target + 1 + pairs*2
		if end > len(messages) {
			end = len(messages)
		}
	}

	out := make([]history.Message, end-start)
	copy(out, messages[start:end])
	return out
}
