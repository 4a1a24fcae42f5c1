package fuzzy

import (
	"strings"
	"testing"
)

func TestScoreZeroForNonSubsequence(t *testing.T) {
	cases := []struct {
		pattern, text string
	}{
		{"xyz", "abc"},
		{"abc", "acb"},
		{"hello", "hell"},
		{"aa", "a"},
	}
	for _, tc := range cases {
		if got := Score(tc.pattern, tc.text); got != 0 {
			t.Errorf("Score(%q, %q) = %v, want 0", tc.pattern, tc.text, got)
		}
	}
}

func TestScoreBounds(t *testing.T) {
	cases := []struct {
		pattern, text string
	}{
		{"a", "a"},
		{"abc", "abc"},
		{"database", "we discussed the database schema"},
		{"dbs", "database schema"},
	}
	for _, tc := range cases {
		got := Score(tc.pattern, tc.text)
		if got <= 0 || got > 1 {
			t.Errorf("Score(%q, %q) = %v, want in (0, 1]", tc.pattern, tc.text, got)
		}
	}
}

func TestScoreCaseInsensitive(t *testing.T) {
	a := Score("HELLO", "hello world")
	b := Score("hello", "HELLO WORLD")
	if a != b {
		t.Errorf("case-insensitive scores differ: %v vs %v", a, b)
	}
	if a == 0 {
		t.Error("expected non-zero score for case-insensitive match")
	}
}

func TestScorePrefersContiguous(t *testing.T) {
	contiguous := Score("abc", "abcxx")
	scattered := Score("abc", "axbxc")
	if contiguous <= scattered {
		t.Errorf("contiguous %v should beat scattered %v", contiguous, scattered)
	}
}

func TestScorePrefersEarly(t *testing.T) {
	early := Score("fox", "fox jumped over")
	late := Score("fox", "jumped over fox")
	if early <= late {
		t.Errorf("early match %v should beat late match %v", early, late)
	}
}

func TestScoreWordBoundaryBonus(t *testing.T) {
	// Same match position distance, but one starts at a word boundary.
	boundary := Score("fox", "the fox")
	packed := Score("fox", "thiefox")
	if boundary <= packed {
		t.Errorf("boundary-aligned %v should beat packed %v", boundary, packed)
	}
}

func TestFindMatchSpans(t *testing.T) {
	spans := FindMatchSpans("hello", "say hello there")
	if len(spans) == 0 {
		t.Fatal("expected at least one span")
	}
	want := Span{Start: 4, End: 9}
	if spans[0] != want {
		t.Errorf("spans[0] = %+v, want %+v", spans[0], want)
	}
	// Overlapping windows re-locate the same occurrence. Duplicates are
	// allowed; every span must still point at the occurrence.
	for i, s := range spans {
		if s != want {
			t.Errorf("spans[%d] = %+v, want %+v", i, s, want)
		}
	}
}

func TestFindMatchSpansNoMatch(t *testing.T) {
	if spans := FindMatchSpans("zebra", "nothing relevant here"); len(spans) != 0 {
		t.Errorf("expected no spans, got %v", spans)
	}
}

func TestFindMatchSpansShortPattern(t *testing.T) {
	// Window size floors at 3 even for single-rune patterns.
	spans := FindMatchSpans("q", "a quick test")
	if len(spans) == 0 {
		t.Fatal("expected spans for single-rune pattern")
	}
	if spans[0].Start != 2 || spans[0].End != 3 {
		t.Errorf("spans[0] = %+v, want {2 3}", spans[0])
	}
}

func TestExtractSnippetSentenceAligned(t *testing.T) {
	content := "First sentence. Second sentence here. Third one."

	// Span starts inside the second sentence.
	got := ExtractSnippet(content, Span{Start: 17, End: 23}, 0)
	if got != "Second sentence here." {
		t.Errorf("got %q, want %q", got, "Second sentence here.")
	}

	// One sentence of context each side covers the whole content.
	got = ExtractSnippet(content, Span{Start: 17, End: 23}, 1)
	if got != content {
		t.Errorf("got %q, want full content", got)
	}
}

func TestExtractSnippetFirstSentenceContext(t *testing.T) {
	content := "Alpha beta. Gamma delta. Epsilon zeta."
	got := ExtractSnippet(content, Span{Start: 0, End: 5}, 1)
	want := "Alpha beta. Gamma delta."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractSnippetTruncates(t *testing.T) {
	content := strings.Repeat("x", 400)
	got := ExtractSnippet(content, Span{Start: 10, End: 15}, 1)
	if len([]rune(got)) != snippetMaxLen+3 {
		t.Errorf("snippet length = %d, want %d", len([]rune(got)), snippetMaxLen+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated snippet should end with ellipsis, got %q", got[len(got)-10:])
	}
}

func TestExtractSnippetEmptyContent(t *testing.T) {
	if got := ExtractSnippet("", Span{Start: 0, End: 0}, 1); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestSplitSentencesLossless(t *testing.T) {
	cases := []string{
		"One. Two! Three?",
		"No terminator at all",
		"Ellipsis... then more. Done",
		"",
	}
	for _, c := range cases {
		parts := splitSentences([]rune(c))
		var joined strings.Builder
		for _, p := range parts {
			joined.WriteString(string(p))
		}
		if joined.String() != c {
			t.Errorf("splitSentences(%q) lost content: %q", c, joined.String())
		}
	}
}
