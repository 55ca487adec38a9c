package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gameday/event-chat/internal/chat"
	"github.com/gameday/event-chat/internal/chatlog"
	"github.com/gameday/event-chat/internal/messaging"
	"github.com/gameday/event-chat/internal/metrics"
	"github.com/gameday/event-chat/internal/protocol"
	"github.com/gameday/event-chat/internal/ratelimit"
)

const maxBodyBytes = 16 << 10

// handleList serves GET /event-chats/event/{eventId}?since=&limit=.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	eventID, ok := parseID(r.PathValue("eventId"))
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "Invalid event id")
		return
	}

	q := r.URL.Query()
	limit := protocol.DefaultPageLimit
	if raw := q.Get(protocol.ParamLimit); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > protocol.MaxPageLimit {
			writeError(w, http.StatusUnprocessableEntity, "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	var since *time.Time
	if raw := q.Get(protocol.ParamSince); raw != "" {
		t, err := protocol.ParseSince(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "Invalid 'since' timestamp; use ISO-8601 format")
			return
		}
		since = &t
	}

	msgs, err := s.store.List(r.Context(), eventID, since, limit)
	if err != nil {
		s.internalError(w, r, "list messages", err)
		return
	}

	page := chat.Page{Messages: msgs}
	if page.Messages == nil {
		page.Messages = []chat.Message{}
	}
	if n := len(msgs); n > 0 {
		page.NextCursor = chat.CursorAt(msgs[n-1].Timestamp)
	}
	writeJSON(w, http.StatusOK, page)
}

// handleCreate serves POST /event-chats/.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req protocol.SendRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}
	eventID, ok := parseID(req.EventID)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "Invalid event id")
		return
	}
	if err := chat.ValidateMessage(req.MessageText); err != nil {
		writeError(w, http.StatusUnprocessableEntity, validationDetail(err))
		return
	}

	if !s.allow(w, r, user.UserID, s.config.SendRule, "You are sending messages too quickly") {
		return
	}

	msg, err := s.store.Create(r.Context(), chatlog.NewMessage{
		EventID:    eventID,
		AuthorID:   user.UserID,
		AuthorName: user.Name,
		Text:       strings.TrimSpace(req.MessageText),
	})
	if err != nil {
		s.internalError(w, r, "create message", err)
		return
	}
	metrics.ChatMessagesTotal.WithLabelValues("created").Inc()

	s.publish(r.Context(), messaging.ChatEvent{
		Type:      messaging.TypeMessageCreated,
		EventID:   msg.EventID,
		MessageID: msg.ID,
		Message:   &msg,
		At:        msg.Timestamp,
	})
	writeJSON(w, http.StatusCreated, msg)
}

// handleGet serves GET /event-chats/{messageId}. An unknown message is 200
// with a null body.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	messageID, ok := parseID(r.PathValue("messageId"))
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "Invalid message id")
		return
	}

	msg, err := s.store.Get(r.Context(), messageID)
	if errors.Is(err, chatlog.ErrNotFound) {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	if err != nil {
		s.internalError(w, r, "get message", err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// handleDelete serves DELETE /event-chats/{messageId}.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	messageID, ok := parseID(r.PathValue("messageId"))
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "Invalid message id")
		return
	}

	if !s.allow(w, r, user.UserID, s.config.DeleteRule, "You are deleting messages too quickly") {
		return
	}

	msg, err := s.store.Delete(r.Context(), messageID, user.UserID)
	switch {
	case errors.Is(err, chatlog.ErrNotFound):
		writeError(w, http.StatusNotFound, "Message not found")
		return
	case errors.Is(err, chatlog.ErrForbidden):
		writeError(w, http.StatusForbidden, "You can only delete your own messages")
		return
	case err != nil:
		s.internalError(w, r, "delete message", err)
		return
	}
	metrics.ChatMessagesTotal.WithLabelValues("deleted").Inc()

	s.publish(r.Context(), messaging.ChatEvent{
		Type:      messaging.TypeMessageDeleted,
		EventID:   msg.EventID,
		MessageID: msg.ID,
		At:        time.Now().UTC(),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// publish sends ev to the feed. Feed failures never fail the request.
func (s *Server) publish(ctx context.Context, ev messaging.ChatEvent) {
	if s.feed == nil {
		return
	}
	if err := s.feed.PublishChatEvent(ev); err != nil {
		s.logger.Warn("publish chat event failed",
			zap.String("type", ev.Type),
			zap.String("message_id", ev.MessageID),
			zap.String("request_id", requestIDFrom(ctx)),
			zap.Error(err),
		)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.Error(op+" failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", requestIDFrom(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

// parseID accepts only UUIDs and returns them in canonical form.
func parseID(raw string) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func validationDetail(err error) string {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return "Message text must not be empty"
	case errors.Is(err, chat.ErrMessageTooLong):
		return "Message text must be at most 1000 characters"
	default:
		return "Message text is not valid UTF-8"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, protocol.NewError(detail))
}

// retryAfterer is implemented by limiters that can report the remaining
// window, such as ratelimit.Limiter.
type retryAfterer interface {
	RetryAfter(ctx context.Context, identifier string, rule ratelimit.Rule) (time.Duration, error)
}

// allow applies rule to userID and writes a 429 when it is exceeded.
// Limiter errors fail open.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, userID string, rule ratelimit.Rule, detail string) bool {
	if s.limiter == nil || rule.Limit <= 0 {
		return true
	}
	allowed, _ := s.limiter.Allow(r.Context(), userID, rule)
	if allowed {
		return true
	}

	retry := rule.Window
	if ra, ok := s.limiter.(retryAfterer); ok {
		if d, err := ra.RetryAfter(r.Context(), userID, rule); err == nil && d > 0 {
			retry = d
		}
	}
	secs := int((retry + time.Second - 1) / time.Second)
	metrics.ChatMessagesTotal.WithLabelValues("rate_limited").Inc()
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, http.StatusTooManyRequests, detail)
	return false
}
