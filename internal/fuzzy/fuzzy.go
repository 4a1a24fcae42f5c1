// Package fuzzy implements subsequence fuzzy matching over conversation
// text: scoring in the style of interactive fuzzy finders, match span
// location, and sentence-aligned snippet extraction. All functions are
// pure and operate on runes, so multi-byte text scores consistently.
package fuzzy

import (
	"strings"
)

// snippetMaxLen bounds extracted snippets; longer text is truncated
// with an ellipsis marker.
const snippetMaxLen = 300

// Span is a half-open [Start, End) character range of a match in text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// isBoundary reports whether r separates words for the boundary bonus.
func isBoundary(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '_', '-':
		return true
	}
	return false
}

// matchIndices walks text once, greedily consuming the next needed
// pattern character. Returns the matched text indices and whether the
// whole pattern was consumed.
func matchIndices(pattern, text []rune) ([]int, bool) {
	matches := make([]int, 0, len(pattern))
	p := 0
	for t := 0; t < len(text) && p < len(pattern); t++ {
		if pattern[p] == text[t] {
			matches = append(matches, t)
			p++
		}
	}
	return matches, p == len(pattern)
}

// Score rates how well pattern matches text, in [0, 1]. Matching is a
// case-insensitive ordered subsequence walk; if the pattern is not a
// subsequence of the text the score is 0. Otherwise four signals are
// combined: coverage (weight 0.5), contiguity of consecutive match
// positions (0.3), word-boundary alignment (0.1), and earliness of the
// first match (0.1). Compact, early, word-aligned matches win over
// scattered ones.
func Score(pattern, text string) float64 {
	return scoreRunes([]rune(strings.ToLower(pattern)), []rune(strings.ToLower(text)))
}

func scoreRunes(p, t []rune) float64 {
	matches, full := matchIndices(p, t)
	if !full || len(matches) == 0 {
		return 0
	}

	contiguity := 0
	for i := 1; i < len(matches); i++ {
		if matches[i] == matches[i-1]+1 {
			contiguity++
		}
	}

	wordBoundary := 0
	for _, pos := range matches {
		if pos == 0 || isBoundary(t[pos-1]) {
			wordBoundary++
		}
	}

	earliness := 1 - float64(matches[0])/float64(len(t))
	if earliness < 0 {
		earliness = 0
	}

	score := float64(len(matches))/float64(len(p))*0.5 +
		float64(contiguity)/float64(len(p))*0.3 +
		float64(wordBoundary)/float64(len(p))*0.1 +
		earliness*0.1

	if score > 1 {
		score = 1
	}
	return score
}

// FindMatchSpans locates candidate match spans of pattern in text by
// sliding a window of max(len(pattern), 3)+10 characters and re-walking
// every window that scores above 0.5 to recover the literal span.
// Overlapping windows may yield duplicate or overlapping spans; nothing
// is deduplicated here, and callers wanting the single best span take
// the first element.
func FindMatchSpans(pattern, text string) []Span {
	p := []rune(strings.ToLower(pattern))
	t := []rune(strings.ToLower(text))

	windowSize := len(p)
	if windowSize < 3 {
		windowSize = 3
	}

	var spans []Span
	for i := 0; i+windowSize <= len(t); i++ {
		end := i + windowSize + 10
		if end > len(t) {
			end = len(t)
		}
		window := t[i:end]

		if scoreRunes(p, window) <= 0.5 {
			continue
		}

		matches, full := matchIndices(p, window)
		if full {
			spans = append(spans, Span{
				Start: i + matches[0],
				End:   i + matches[len(matches)-1] + 1,
			})
		}
	}

	return spans
}

// splitSentences splits content on runs of '.', '!', '?', keeping the
// punctuation with the preceding sentence. The concatenation of the
// returned slices equals the input.
func splitSentences(content []rune) [][]rune {
	var sentences [][]rune
	start := 0
	i := 0
	for i < len(content) {
		if content[i] == '.' || content[i] == '!' || content[i] == '?' {
			// Consume the whole punctuation run.
			for i < len(content) && (content[i] == '.' || content[i] == '!' || content[i] == '?') {
				i++
			}
			sentences = append(sentences, content[start:i])
			start = i
			continue
		}
		i++
	}
	if start < len(content) {
		sentences = append(sentences, content[start:])
	}
	return sentences
}

// ExtractSnippet returns the sentence containing the match start plus
// contextSentences sentences on each side, trimmed and truncated to 300
// characters with an ellipsis marker if longer.
func ExtractSnippet(content string, span Span, contextSentences int) string {
	runes := []rune(content)
	sentences := splitSentences(runes)
	if len(sentences) == 0 {
		return ""
	}

	target := 0
	charCount := 0
	for i, sentence := range sentences {
		sentenceEnd := charCount + len(sentence)
		if charCount <= span.Start && span.Start <= sentenceEnd {
			target = i
			break
		}
		charCount = sentenceEnd
	}

	start := target - contextSentences
	if start < 0 {
		start = 0
	}
	end := target + contextSentences + 1
	if end > len(sentences) {
		end = len(sentences)
	}

	var b strings.Builder
	for _, sentence := range sentences[start:end] {
		b.WriteString(string(sentence))
	}
	snippet := strings.TrimSpace(b.String())

	if sr := []rune(snippet); len(sr) > snippetMaxLen {
		snippet = string(sr[:snippetMaxLen]) + "..."
	}
	return snippet
}
