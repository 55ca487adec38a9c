package chat

import "sync"

// DefaultMaxMessages is the number of messages retained per session when no
// explicit cap is configured.
const DefaultMaxMessages = 200

// Store holds the transcript of one chat session: messages in arrival order,
// an id index used to discard already-known messages, and the last
// acknowledged cursor. It is goroutine-safe.
//
// Messages pushed out by the cap are remembered (up to cap ids, oldest
// forgotten first) so a late redelivery, e.g. a send reply racing a poll,
// cannot re-enter at the newest end out of order.
type Store struct {
	mu       sync.RWMutex
	max      int
	messages []Message
	known    map[string]struct{} // message ID -> present
	evicted  map[string]struct{} // message ID -> trimmed by the cap
	order    []string            // evicted IDs, oldest first
	cursor   Cursor
}

// NewStore creates an empty Store that retains at most max messages.
// A non-positive max selects DefaultMaxMessages.
func NewStore(max int) *Store {
	if max <= 0 {
		max = DefaultMaxMessages
	}
	return &Store{
		max:     max,
		known:   make(map[string]struct{}),
		evicted: make(map[string]struct{}),
	}
}

// Reset clears messages, index and cursor. Called on session start and
// teardown.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
	s.known = make(map[string]struct{})
	s.evicted = make(map[string]struct{})
	s.order = nil
	s.cursor = ""
}

// IngestPage appends the messages of page that are not already known,
// preserving their order, and trims the oldest entries beyond the cap. The
// cursor advances from page.NextCursor whenever it is set and not older than
// the current one, even if nothing new was added: an all-duplicate or empty
// poll still makes progress. It returns the number of novel messages.
func (s *Store) IngestPage(page Page) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	novel := 0
	for _, msg := range page.Messages {
		if s.appendLocked(msg) {
			novel++
		}
	}
	if novel > 0 {
		s.trimLocked()
	}
	if !page.NextCursor.IsZero() && !page.NextCursor.Before(s.cursor) {
		s.cursor = page.NextCursor
	}
	return novel
}

// IngestSingle appends a locally originated message (the server's reply to a
// send) unless a poll already delivered it.
func (s *Store) IngestSingle(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.appendLocked(msg) {
		return false
	}
	s.trimLocked()
	return true
}

// Remove deletes the message with the given ID. It reports whether the
// message was present. Unlike eviction, removal does not block the message
// from being ingested again.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.known[id]; !ok {
		return false
	}
	delete(s.known, id)
	for i, m := range s.messages {
		if m.ID == id {
			s.messages = append(s.messages[:i:i], s.messages[i+1:]...)
			break
		}
	}
	return true
}

// Messages returns a copy of the transcript, oldest first. It never returns
// nil.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Cursor returns the last acknowledged cursor, empty before the first load.
func (s *Store) Cursor() Cursor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// Len returns the number of retained messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Contains reports whether a message with the given ID is retained.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.known[id]
	return ok
}

// Cap returns the configured maximum number of messages.
func (s *Store) Cap() int {
	return s.max
}

func (s *Store) appendLocked(msg Message) bool {
	if msg.ID == "" {
		return false
	}
	if _, ok := s.known[msg.ID]; ok {
		return false
	}
	if _, ok := s.evicted[msg.ID]; ok {
		return false
	}
	s.known[msg.ID] = struct{}{}
	s.messages = append(s.messages, msg)
	return true
}

// trimLocked evicts from the oldest end until the cap holds.
func (s *Store) trimLocked() {
	over := len(s.messages) - s.max
	if over <= 0 {
		return
	}
	for _, m := range s.messages[:over] {
		delete(s.known, m.ID)
		s.evicted[m.ID] = struct{}{}
		s.order = append(s.order, m.ID)
	}
	if drop := len(s.order) - s.max; drop > 0 {
		for _, id := range s.order[:drop] {
			delete(s.evicted, id)
		}
		s.order = append([]string(nil), s.order[drop:]...)
	}
	kept := make([]Message, s.max)
	copy(kept, s.messages[over:])
	s.messages = kept
}
