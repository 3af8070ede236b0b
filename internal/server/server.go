package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cherylchat/internal/assistant"
	"cherylchat/internal/notify"
	"cherylchat/internal/ratelimit"
	"cherylchat/internal/servicetoken"
	"cherylchat/internal/util"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Replies       *assistant.ReplyService
	Notifier      notify.Notifier
	TokenVerifier *servicetoken.Verifier
	Limiter       *ratelimit.SenderLimiter
}

// Server exposes the ingest endpoints for the chat service. Message intake
// only records and enqueues; reply generation happens in the background
// worker, so POST handlers answer 202 without waiting on the model.
type Server struct {
	replies       *assistant.ReplyService
	notifier      notify.Notifier
	tokenVerifier *servicetoken.Verifier
	limiter       *ratelimit.SenderLimiter
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		replies:       cfg.Replies,
		notifier:      cfg.Notifier,
		tokenVerifier: cfg.TokenVerifier,
		limiter:       cfg.Limiter,
		mux:           http.NewServeMux(),
	}
	if s.notifier == nil {
		s.notifier = notify.NopNotifier{}
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithRequestID(util.WithRequestLog("cheryl-chat", s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/v1/messages", s.withServiceAuth(s.handleMessages))
	s.mux.Handle("/v1/presence", s.withServiceAuth(s.handlePresence))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) withServiceAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenVerifier != nil {
			token, ok := servicetoken.BearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if _, err := s.tokenVerifier.Verify(token); err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	})
}

type messageRequest struct {
	UserID  string `json:"userId"`
	Content string `json:"content"`
}

// handleMessages records an inbound user message and requests a reply. The
// reply request is dropped when one is already in flight for the
// conversation; the message itself is always stored.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req messageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if !s.limiter.Allow(r.Context(), req.UserID) {
		writeError(w, http.StatusTooManyRequests, "too many messages")
		return
	}

	logger := util.LoggerFromContext(r.Context())
	now := time.Now().UTC()
	msg, err := s.replies.CreateUserMessage(req.UserID, req.Content, now)
	if err != nil {
		logger.Error("store user message", "error", err)
		writeError(w, http.StatusInternalServerError, "could not store message")
		return
	}
	if err := s.notifier.MessageCreated(r.Context(), msg); err != nil {
		logger.Warn("notify message created", "error", err, "messageId", msg.ID)
	}

	reply, queued, err := s.replies.Enqueue(msg.ID, now)
	if err != nil {
		logger.Error("enqueue reply", "error", err, "messageId", msg.ID)
		writeError(w, http.StatusInternalServerError, "could not request reply")
		return
	}
	if queued {
		if err := s.notifier.AssistantStatus(r.Context(), s.replies.ConversationID(), s.replies.AssistantUserID(), true); err != nil {
			logger.Warn("notify assistant status", "error", err, "replyId", reply.ID)
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"messageId": msg.ID,
		"queued":    queued,
	})
}

type presenceRequest struct {
	UserID string `json:"userId"`
	Event  string `json:"event"`
}

// handlePresence replays the assistant's current activity to a user who just
// connected, so late joiners see the typing indicator for an in-flight reply.
func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req presenceRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	switch req.Event {
	case "connected", "disconnected":
	default:
		writeError(w, http.StatusBadRequest, "event must be connected or disconnected")
		return
	}

	if req.Event == "connected" {
		busy, err := s.replies.Busy()
		if err != nil {
			util.LoggerFromContext(r.Context()).Error("check in-flight replies", "error", err)
			writeError(w, http.StatusInternalServerError, "could not check assistant status")
			return
		}
		if busy {
			if err := s.notifier.AssistantStatus(r.Context(), s.replies.ConversationID(), s.replies.AssistantUserID(), true); err != nil {
				util.LoggerFromContext(r.Context()).Warn("replay assistant status", "error", err)
			}
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
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
	slog.Debug("http_error", "status", status, "message", msg)
	writeJSON(w, status, map[string]string{"error": msg})
}
