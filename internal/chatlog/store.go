// Package chatlog persists event chat transcripts for the chat server. It
// defines the Store contract and provides a PostgreSQL implementation for
// deployments and an in-memory one for development and tests.
package chatlog

import (
	"context"
	"errors"
	"time"

	"github.com/gameday/event-chat/internal/chat"
)

var (
	// ErrNotFound is returned when a message does not exist.
	ErrNotFound = errors.New("chatlog: message not found")
	// ErrForbidden is returned when a user deletes someone else's message.
	ErrForbidden = errors.New("chatlog: message belongs to another user")
)

// NewMessage is a message about to be stored. The store assigns its ID and
// timestamp.
type NewMessage struct {
	EventID    string
	AuthorID   string
	AuthorName string
	Text       string
}

// Store is the chat log contract used by the HTTP API.
type Store interface {
	// List returns messages of an event in ascending timestamp order. With a
	// nil since it returns the newest limit messages; otherwise at most limit
	// messages strictly after since.
	List(ctx context.Context, eventID string, since *time.Time, limit int) ([]chat.Message, error)
	Create(ctx context.Context, m NewMessage) (chat.Message, error)
	Get(ctx context.Context, messageID string) (chat.Message, error)
	// Delete removes a message if userID authored it.
	Delete(ctx context.Context, messageID, userID string) (chat.Message, error)
	Ping(ctx context.Context) error
	Close() error
}
