package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"bookbot/internal/app"
	"bookbot/internal/ratelimit"
	"bookbot/internal/util"
	"bookbot/pkg/ai"
	"bookbot/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App               *app.App
	RedisAddr         string
	RedisPassword     string
	ChatRatePerMinute int
}

// Server exposes the chat and debug HTTP endpoints.
type Server struct {
	app         *app.App
	mux         *http.ServeMux
	chatLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured. The chat rate limiter is
// enabled only when a Redis address is given; without one every request is
// allowed through.
func New(cfg Config) (*Server, error) {
	s := &Server{
		app: cfg.App,
		mux: http.NewServeMux(),
	}
	if cfg.RedisAddr != "" {
		limit := cfg.ChatRatePerMinute
		if limit <= 0 {
			limit = 30
		}
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "bookbot:ratelimit:chat", limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init chat limiter: %w", err)
		}
		s.chatLimiter = limiter
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(
		util.WithCORS(
			util.WithRequestID(
				util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/chat", s.chatHandler(s.app.ChatRules))
	s.mux.HandleFunc("/api/chat_llm", s.chatHandler(s.app.ChatLLM))
	s.mux.HandleFunc("/api/chat_orchestrator", s.chatHandler(s.app.ChatOrchestrated))
	s.mux.HandleFunc("/api/conversations/messages", s.handleConversationMessages)
	s.mux.HandleFunc("/api/debug/find_books", s.handleDebugFindBooks)
	s.mux.HandleFunc("/api/debug/search_docs", s.handleDebugSearchDocs)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatFunc func(ctx context.Context, req app.ChatRequest) (app.ChatResponse, error)

func (s *Server) chatHandler(chat chatFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !s.allowRate(w, r) {
			return
		}
		var req app.ChatRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Message == "" {
			writeError(w, http.StatusBadRequest, "message is required")
			return
		}
		if req.SessionID == "" {
			writeError(w, http.StatusBadRequest, "session_id is required")
			return
		}
		if req.UserID == "" {
			req.UserID = req.SessionID
		}
		resp, err := chat(r.Context(), req)
		if err != nil {
			writeChatError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// writeChatError maps orchestration failures onto HTTP statuses. Upstream
// detail stays in the log; clients get a stable generic message.
func writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	log := util.LoggerFromContext(r.Context())
	switch {
	case errors.Is(err, app.ErrGatewayNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "model gateway not configured")
	case errors.Is(err, ai.ErrBackendUnavailable):
		log.Error("model_backend_error", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "model backend unavailable")
	case errors.Is(err, app.ErrUnknownTool):
		log.Error("unknown_tool_directive", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "assistant produced an invalid tool request")
	default:
		log.Error("chat_error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleConversationMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	sessionID := q.Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	userID := q.Get("user_id")
	if userID == "" {
		userID = sessionID
	}
	limit := intParam(q.Get("limit"), 20)
	msgs, err := s.app.RecentConversationMessages(r.Context(), q.Get("shop_id"), userID, sessionID, limit)
	if err != nil {
		writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": msgs})
}

func (s *Server) handleDebugFindBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var filter domain.BookFilter
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&filter); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	books, err := s.app.FindBooks(r.Context(), filter)
	if err != nil {
		writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": books})
}

type searchDocsRequest struct {
	Query        string `json:"query"`
	TopK         int    `json:"top_k"`
	SourcePrefix string `json:"source_prefix"`
}

func (s *Server) handleDebugSearchDocs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req searchDocsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	writeJSON(w, http.StatusOK, s.app.SearchDocs(req.Query, req.TopK, req.SourcePrefix))
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request) bool {
	if s.chatLimiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r)
	if s.chatLimiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "too many chat requests")
	return false
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
