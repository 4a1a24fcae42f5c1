package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/openrlm/infinite-chat/internal/history"
)

// handleExport renders a conversation transcript. format=markdown (the
// default) returns the raw transcript; format=html renders it through
// goldmark.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	convID := r.PathValue("id")

	view, err := s.store.Load(r.Context(), convID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(view) == 0 {
		s.errorResponse(w, http.StatusNotFound, "conversation not found or empty")
		return
	}

	md := transcriptMarkdown(convID, view)

	switch r.URL.Query().Get("format") {
	case "", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		fmt.Fprint(w, md)
	case "html":
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(md), &buf); err != nil {
			s.errorResponse(w, http.StatusInternalServerError, "render transcript: "+err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>Conversation %s</title></head>\n<body>\n%s</body>\n</html>\n", convID, buf.String())
	default:
		s.errorResponse(w, http.StatusBadRequest, "format must be markdown or html")
	}
}

// transcriptMarkdown renders the merged view as a markdown transcript,
// one section per message.
func transcriptMarkdown(convID string, view history.View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Conversation %s\n\n", convID)
	fmt.Fprintf(&b, "%d messages\n\n", len(view))

	for _, m := range view {
		fmt.Fprintf(&b, "## %s", m.Role)
		if m.Timestamp != "" {
			fmt.Fprintf(&b, " (%s)", m.Timestamp)
		}
		b.WriteString("\n\n")
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}
