package history

import "strings"

// DefaultWindowTokens is the assumed model context size when none is
// given.
const DefaultWindowTokens = 200000

// DefaultReserveTokens is held back from the window for the system
// prompt and tool results.
const DefaultReserveTokens = 20000

// EstimateTokens is the rough estimate used for budgets: characters
// divided by four.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// WeightedTokens blends the character estimate with a word-based one
// (about 1.3 tokens per word). Still an approximation; there is no
// tokenizer anywhere in the system.
func WeightedTokens(text string) int {
	words := len(strings.Fields(text))
	chars := len(text)
	return int((float64(chars)/4 + float64(words)*1.3) / 2)
}

// messageTokens counts a message including its role prefix, matching
// how it is serialized into a prompt.
func messageTokens(m Message) int {
	return WeightedTokens(m.Role + ": " + m.Content)
}

// Window sizes a sliding context window over a view.
type Window struct {
	MaxTokens int
}

// NewWindow creates a window sizer. maxTokens values below 1 fall back
// to DefaultWindowTokens.
func NewWindow(maxTokens int) Window {
	if maxTokens < 1 {
		maxTokens = DefaultWindowTokens
	}
	return Window{MaxTokens: maxTokens}
}

// Recent returns the longest suffix of v that fits in the window after
// holding back reserve tokens. Most recent messages win; the suffix
// keeps original order.
func (w Window) Recent(v View, reserve int) View {
	if len(v) == 0 {
		return View{}
	}

	available := w.MaxTokens - reserve
	used := 0
	start := len(v)
	for i := len(v) - 1; i >= 0; i-- {
		t := messageTokens(v[i])
		if used+t > available {
			break
		}
		used += t
		start = i
	}
	return v[start:]
}

// CanFit reports whether a new user message fits alongside the current
// view within the window.
func (w Window) CanFit(v View, newContent string, reserve int) bool {
	available := w.MaxTokens - reserve

	current := 0
	for _, m := range v {
		current += messageTokens(m)
	}
	return current+WeightedTokens("user: "+newContent) <= available
}

// WindowStats summarizes a view for API responses.
func WindowStats(v View) map[string]int {
	if len(v) == 0 {
		return map[string]int{
			"total_messages":             0,
			"total_tokens":               0,
			"average_tokens_per_message": 0,
		}
	}

	total := 0
	for _, m := range v {
		total += messageTokens(m)
	}
	return map[string]int{
		"total_messages":             len(v),
		"total_tokens":               total,
		"average_tokens_per_message": total / len(v),
	}
}
