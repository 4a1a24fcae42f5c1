package fuzzy

import (
	"fmt"
	"testing"

	"github.com/openrlm/infinite-chat/internal/history"
)

func testView() history.View {
	contents := []string{
		"Hello, how can I help you today?",
		"I need help with my refund request. It was rejected.",
		"Let me look at your refund. Can you share the order number?",
		"Sure, the order number is 12345.",
		"Thanks. The refund was rejected because the return window closed.",
		"That window seems too short. Can you escalate this?",
		"I have escalated your case to the billing team.",
		"Great, when should I expect an answer?",
		"Within two business days, usually sooner.",
		"Thanks for the help!",
	}
	var v history.View
	for i, c := range contents {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		v = append(v, history.Message{
			ID:        fmt.Sprintf("m%d", i),
			Role:      role,
			Content:   c,
			Timestamp: fmt.Sprintf("2026-01-01T00:00:%02dZ", i),
		})
	}
	return v
}

func TestSearchMessagesLimit(t *testing.T) {
	v := testView()

	results := SearchMessages(v, "refund", 2)
	if len(results) > 2 {
		t.Fatalf("got %d results, want at most 2", len(results))
	}
	if len(results) == 0 {
		t.Fatal("expected matches for refund")
	}
	for _, r := range results {
		if r.Score <= 0 {
			t.Errorf("result %s has non-positive score %v", r.MessageID, r.Score)
		}
		if r.Snippet == "" {
			t.Errorf("result %s has empty snippet", r.MessageID)
		}
	}
}

func TestSearchMessagesSortedByScore(t *testing.T) {
	v := testView()

	results := SearchMessages(v, "refund rejected", 10)
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted: score[%d]=%v > score[%d]=%v",
				i, results[i].Score, i-1, results[i-1].Score)
		}
	}
}

func TestSearchMessagesNoMatch(t *testing.T) {
	v := testView()
	if results := SearchMessages(v, "zzzzqqq", 5); len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestExpandContextBoth(t *testing.T) {
	v := testView()

	got := ExpandContext(v, "m5", Both, 2)
	// 1 target + up to 4 each side.
	if len(got) != 9 {
		t.Fatalf("got %d messages, want 9", len(got))
	}
	if got[0].ID != "m1" || got[len(got)-1].ID != "m9" {
		t.Errorf("range = [%s, %s], want [m1, m9]", got[0].ID, got[len(got)-1].ID)
	}
}

func TestExpandContextClipsAtBounds(t *testing.T) {
	v := testView()

	got := ExpandContext(v, "m0", Both, 2)
	if len(got) != 5 {
		t.Fatalf("got %d messages, want 5", len(got))
	}
	if got[0].ID != "m0" {
		t.Errorf("first = %s, want m0", got[0].ID)
	}

	got = ExpandContext(v, "m9", Both, 2)
	if len(got) != 5 {
		t.Fatalf("got %d messages, want 5", len(got))
	}
	if got[len(got)-1].ID != "m9" {
		t.Errorf("last = %s, want m9", got[len(got)-1].ID)
	}
}

func TestExpandContextDirections(t *testing.T) {
	v := testView()

	before := ExpandContext(v, "m5", Before, 1)
	if len(before) != 3 || before[0].ID != "m3" || before[2].ID != "m5" {
		t.Errorf("before = %v, want m3..m5", ids(before))
	}

	after := ExpandContext(v, "m5", After, 1)
	if len(after) != 3 || after[0].ID != "m5" || after[2].ID != "m7" {
		t.Errorf("after = %v, want m5..m7", ids(after))
	}
}

// Both equals the union of before and after, deduplicated at the pivot.
func TestExpandContextSymmetry(t *testing.T) {
	v := testView()

	both := ExpandContext(v, "m5", Both, 1)
	before := ExpandContext(v, "m5", Before, 1)
	after := ExpandContext(v, "m5", After, 1)

	union := map[string]bool{}
	for _, m := range before {
		union[m.ID] = true
	}
	for _, m := range after {
		union[m.ID] = true
	}

	if len(both) != len(union) {
		t.Fatalf("both has %d messages, union has %d", len(both), len(union))
	}
	for _, m := range both {
		if !union[m.ID] {
			t.Errorf("message %s in both but not in union", m.ID)
		}
	}
}

func TestExpandContextUnknownID(t *testing.T) {
	v := testView()

	got := ExpandContext(v, "nope", Both, 2)
	if got == nil {
		t.Fatal("want empty slice, got nil")
	}
	if len(got) != 0 {
		t.Errorf("got %d messages, want 0", len(got))
	}
}

func TestParseDirection(t *testing.T) {
	cases := map[string]Direction{
		"before":  Before,
		"after":   After,
		"both":    Both,
		"":        Both,
		"upwards": Both,
	}
	for in, want := range cases {
		if got := ParseDirection(in); got != want {
			t.Errorf("ParseDirection(%q) = %q, want %q", in, got, want)
		}
	}
}

func ids(v []history.Message) []string {
	out := make([]string, len(v))
	for i, m := range v {
		out[i] = m.ID
	}
	return out
}
