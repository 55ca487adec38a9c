package chatlog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gameday/event-chat/internal/chat"
)

// Memory is a Store kept in process memory. Timestamps are truncated to
// microseconds, like PostgreSQL's, and strictly increase within an event so
// "since" queries never skip a message.
type Memory struct {
	mu     sync.RWMutex
	events map[string][]chat.Message // eventID -> messages, ascending
	byID   map[string]string         // messageID -> eventID
	now    func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		events: make(map[string][]chat.Message),
		byID:   make(map[string]string),
		now:    time.Now,
	}
}

// List implements Store.
func (s *Memory) List(_ context.Context, eventID string, since *time.Time, limit int) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.events[eventID]
	var out []chat.Message
	if since == nil {
		start := max(len(msgs)-limit, 0)
		out = msgs[start:]
	} else {
		i := sort.Search(len(msgs), func(i int) bool { return msgs[i].Timestamp.After(*since) })
		out = msgs[i:min(i+limit, len(msgs))]
	}
	page := make([]chat.Message, len(out))
	copy(page, out)
	return page, nil
}

// Create implements Store.
func (s *Memory) Create(_ context.Context, m NewMessage) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UTC().Truncate(time.Microsecond)
	msgs := s.events[m.EventID]
	if n := len(msgs); n > 0 && !ts.After(msgs[n-1].Timestamp) {
		ts = msgs[n-1].Timestamp.Add(time.Microsecond)
	}

	msg := chat.Message{
		ID:         uuid.NewString(),
		EventID:    m.EventID,
		AuthorID:   m.AuthorID,
		AuthorName: m.AuthorName,
		Text:       m.Text,
		Timestamp:  ts,
	}
	s.events[m.EventID] = append(msgs, msg)
	s.byID[msg.ID] = m.EventID
	return msg, nil
}

// Get implements Store.
func (s *Memory) Get(_ context.Context, messageID string) (chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, msg, ok := s.findLocked(messageID)
	if !ok {
		return chat.Message{}, ErrNotFound
	}
	return msg, nil
}

// Delete implements Store.
func (s *Memory) Delete(_ context.Context, messageID, userID string) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, msg, ok := s.findLocked(messageID)
	if !ok {
		return chat.Message{}, ErrNotFound
	}
	if msg.AuthorID != userID {
		return chat.Message{}, ErrForbidden
	}

	msgs := s.events[msg.EventID]
	s.events[msg.EventID] = append(msgs[:i:i], msgs[i+1:]...)
	delete(s.byID, messageID)
	return msg, nil
}

func (s *Memory) findLocked(messageID string) (int, chat.Message, bool) {
	eventID, ok := s.byID[messageID]
	if !ok {
		return 0, chat.Message{}, false
	}
	for i, m := range s.events[eventID] {
		if m.ID == messageID {
			return i, m, true
		}
	}
	return 0, chat.Message{}, false
}

// Ping implements Store.
func (s *Memory) Ping(context.Context) error { return nil }

// Close implements Store.
func (s *Memory) Close() error { return nil }
