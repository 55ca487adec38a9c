// Package session coordinates one live chat view: it seeds the transcript for
// an event, keeps it current through the adaptive poller, mediates sends and
// deletes, and publishes snapshots to observers. Only responses belonging to
// the current session are ever applied.
package session

import (
	"errors"
	"time"

	"github.com/gameday/event-chat/internal/chat"
)

var (
	// ErrNoSession is returned by actions issued while no event is active.
	ErrNoSession = errors.New("session: no active event")
	// ErrNoEvent is returned when InitForEvent is given an empty event ID.
	ErrNoEvent = errors.New("session: event id is required")

	ErrEmptyMessage   = chat.ErrEmptyMessage
	ErrMessageTooLong = chat.ErrMessageTooLong
)

// Fallback errors surfaced when the server gives no detail.
const (
	DefaultSendError   = "Failed to send message"
	DefaultDeleteError = "Failed to delete message"
)

// State is an immutable snapshot of the controller, handed to observers.
type State struct {
	EventID      string // empty when no session is active
	Cursor       chat.Cursor
	Messages     []chat.Message
	PollInterval time.Duration
	LastError    string // empty when the last action succeeded
	Loading      bool   // true while the initial page is in flight
}

// Active reports whether the snapshot belongs to a live session.
func (s State) Active() bool {
	return s.EventID != ""
}
