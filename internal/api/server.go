// Package api implements the HTTP API: chat in both modes, history
// search and retrieval, agent logs, transcript export, and a live
// event stream.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/openrlm/infinite-chat/internal/agent"
	"github.com/openrlm/infinite-chat/internal/buildinfo"
	"github.com/openrlm/infinite-chat/internal/events"
	"github.com/openrlm/infinite-chat/internal/fuzzy"
	"github.com/openrlm/infinite-chat/internal/history"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address   string
	port      int
	store     *history.SQLiteStore
	orch      *agent.Orchestrator
	navigator *agent.Navigator
	bus       *events.Bus
	window    history.Window
	logger    *slog.Logger
	server    *http.Server
}

// NewServer creates the API server. bus may be nil; the event stream
// endpoint then reports unavailability.
func NewServer(address string, port int, store *history.SQLiteStore, orch *agent.Orchestrator, nav *agent.Navigator, bus *events.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:   address,
		port:      port,
		store:     store,
		orch:      orch,
		navigator: nav,
		bus:       bus,
		window:    history.NewWindow(history.DefaultWindowTokens),
		logger:    logger,
	}
}

// Start begins serving HTTP requests. Blocks until the listener fails
// or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	// Chat endpoints
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/rlm-chat", s.handleRLMChat)

	// History endpoints
	mux.HandleFunc("POST /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/expand", s.handleExpand)
	mux.HandleFunc("GET /api/history/{id}", s.handleHistory)
	mux.HandleFunc("GET /api/history/{id}/export", s.handleExport)
	mux.HandleFunc("GET /api/conversations", s.handleConversations)
	mux.HandleFunc("GET /api/rlm-logs/{id}", s.handleRLMLogs)

	// Observability
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /", s.handleRoot)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.withLogging(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // Agent runs and the event stream outlive any fixed deadline.
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "infinite-chat",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.RuntimeInfo(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

// ChatRequest is the plain chat request.
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

// ChatResponse is the plain chat response.
type ChatResponse struct {
	Response       string         `json:"response"`
	ConversationID string         `json:"conversation_id"`
	MessageID      string         `json:"message_id"`
	ContextStats   map[string]int `json:"context_stats"`
	ToolsUsed      []string       `json:"tools_used,omitempty"`
}

// handleChat serves the plain chat mode: recency window plus one round
// of search/expand tools.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	convID := req.ConversationID
	if convID == "" {
		convID = uuid.New().String()
	}

	outcome, err := s.navigator.Chat(r.Context(), convID, req.Message)
	if err != nil {
		s.logger.Error("chat failed", "conversationID", convID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ChatResponse{
		Response:       outcome.Response,
		ConversationID: convID,
		MessageID:      outcome.MessageID,
		ContextStats:   outcome.Stats,
		ToolsUsed:      outcome.ToolsUsed,
	}, s.logger)
}

// RLMChatRequest is the agent mode chat request.
type RLMChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

// RLMChatResponse is the agent mode chat response.
type RLMChatResponse struct {
	Response       string         `json:"response"`
	ConversationID string         `json:"conversation_id"`
	MessageID      string         `json:"message_id"`
	ContextStats   map[string]int `json:"context_stats"`
	RLMStats       map[string]any `json:"rlm_stats"`
}

// handleRLMChat serves agent mode: the model explores history through
// the context toolset. The clean exchange lands on the dialogue track,
// the full interaction log on the agent track.
func (s *Server) handleRLMChat(w http.ResponseWriter, r *http.Request) {
	var req RLMChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	convID := req.ConversationID
	if convID == "" {
		convID = uuid.New().String()
	}
	ctx := r.Context()

	if _, err := s.store.Append(ctx, convID, history.TrackDialogue, "user", req.Message, nil); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := s.orch.Run(ctx, convID, req.Message)

	if err := s.persistAgentLog(ctx, convID, req.Message, result); err != nil {
		s.logger.Error("failed to persist agent log", "conversationID", convID, "error", err)
	}

	msgID, err := s.store.Append(ctx, convID, history.TrackDialogue, "assistant", result.Answer, nil)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	dialogue, err := s.store.LoadTrack(ctx, convID, history.TrackDialogue)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	stats, err := s.store.Stats(ctx, convID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	stats["state"] = string(result.State)
	stats["iterations_used"] = result.Iterations
	stats["has_reasoning"] = result.Reasoning != ""
	stats["context_sources"] = result.ContextSources
	stats["processing_time_seconds"] = result.ProcessingTimeSeconds

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, RLMChatResponse{
		Response:       result.Answer,
		ConversationID: convID,
		MessageID:      msgID,
		ContextStats:   history.WindowStats(s.window.Recent(dialogue, history.DefaultReserveTokens)),
		RLMStats:       stats,
	}, s.logger)
}

// persistAgentLog writes the run summary and every interaction log
// entry to the agent track.
func (s *Server) persistAgentLog(ctx context.Context, convID, query string, result *agent.Result) error {
	summary := map[string]any{
		"original_query":        query,
		"state":                 string(result.State),
		"iterations":            result.Iterations,
		"answer_length":         len(result.Answer),
		"has_reasoning":         result.Reasoning != "",
		"context_sources_count": len(result.ContextSources),
	}
	content := fmt.Sprintf("True RLM processing for query: %s", query)
	if _, err := s.store.Append(ctx, convID, history.TrackAgent, "system", content, summary); err != nil {
		return err
	}

	for _, entry := range result.ConversationLog {
		meta := map[string]any{"timestamp": entry.Timestamp}
		if entry.Type != "" {
			meta["type"] = entry.Type
		}
		if _, err := s.store.Append(ctx, convID, history.TrackAgent, entry.Role, entry.Content, meta); err != nil {
			return err
		}
	}
	return nil
}

// SearchRequest is the history search request.
type SearchRequest struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
	Limit          int    `json:"limit"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ConversationID == "" {
		s.errorResponse(w, http.StatusBadRequest, "conversation_id is required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 5
	}

	view, err := s.store.Load(r.Context(), req.ConversationID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	results := fuzzy.SearchMessages(view, req.Query, req.Limit)
	if results == nil {
		results = []fuzzy.SearchResult{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"results": results}, s.logger)
}

// ExpandRequest is the context expansion request.
type ExpandRequest struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Direction      string `json:"direction"`
	Pairs          int    `json:"pairs"`
}

func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	var req ExpandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ConversationID == "" || req.MessageID == "" {
		s.errorResponse(w, http.StatusBadRequest, "conversation_id and message_id are required")
		return
	}
	if req.Pairs <= 0 {
		req.Pairs = 3
	}

	view, err := s.store.Load(r.Context(), req.ConversationID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	expanded := fuzzy.ExpandContext(view, req.MessageID, fuzzy.ParseDirection(req.Direction), req.Pairs)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"messages": expanded}, s.logger)
}

// handleHistory returns the merged view with limit/offset pagination.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	convID := r.PathValue("id")

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	view, err := s.store.Load(r.Context(), convID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	total := len(view)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}

	page := make([]history.Message, end-offset)
	copy(page, view[offset:end])

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"messages":    page,
		"total_count": total,
	}, s.logger)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.store.ListConversations(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if conversations == nil {
		conversations = []history.ConversationSummary{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"conversations": conversations}, s.logger)
}

// handleRLMLogs returns the agent interaction log alongside the clean
// dialogue and per-track stats.
func (s *Server) handleRLMLogs(w http.ResponseWriter, r *http.Request) {
	convID := r.PathValue("id")
	ctx := r.Context()

	agentLogs, err := s.store.LoadTrack(ctx, convID, history.TrackAgent)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	dialogue, err := s.store.LoadTrack(ctx, convID, history.TrackDialogue)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	stats, err := s.store.Stats(ctx, convID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	if agentLogs == nil {
		agentLogs = history.View{}
	}
	if dialogue == nil {
		dialogue = history.View{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"agent_logs":        agentLogs,
		"conversation_logs": dialogue,
		"stats":             stats,
	}, s.logger)
}

// queryInt parses an integer query parameter with a default.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
