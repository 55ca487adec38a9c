// Package chat holds the event-chat domain types and the local transcript
// store that keeps a per-event message list consistent with a pull-only
// server: ordered, deduplicated by message id, capped, with a forward-only
// cursor.
package chat

import (
	"encoding/json"
	"strings"
	"time"
)

// Message is a single chat message posted to an event. It is treated as an
// immutable value; identity is ID and nothing else.
type Message struct {
	ID              string    `json:"messageId"`
	EventID         string    `json:"eventId"`
	AuthorID        string    `json:"userId"`
	Text            string    `json:"messageText"`
	Timestamp       time.Time `json:"timestamp"`                // server-assigned
	AuthorName      string    `json:"userName,omitempty"`      // resolved by the server, may be empty
	AuthorAvatarURL string    `json:"userAvatarUrl,omitempty"` // resolved by the server, may be empty
}

// Page is the envelope returned by one fetch: messages oldest-first and the
// cursor to pass back on the next poll. NextCursor is empty when the server
// returned no messages (null on the wire).
type Page struct {
	Messages   []Message `json:"messages"`
	NextCursor Cursor    `json:"nextCursor"`
}

// Cursor is an opaque position marker handed out by the server. The client
// only passes it back verbatim as the "since" filter; the server uses the
// timestamp of the newest message it returned.
type Cursor string

// IsZero reports whether no cursor has been acknowledged yet.
func (c Cursor) IsZero() bool {
	return strings.TrimSpace(string(c)) == ""
}

// Before reports whether c points strictly earlier than other. Cursors that
// parse as RFC 3339 timestamps are compared as instants so that equivalent
// encodings ("Z" vs "+00:00") are not mistaken for movement; anything else
// falls back to a lexical comparison. The zero cursor is before everything
// except another zero cursor.
func (c Cursor) Before(other Cursor) bool {
	if c.IsZero() {
		return !other.IsZero()
	}
	if other.IsZero() {
		return false
	}
	ct, cerr := time.Parse(time.RFC3339Nano, string(c))
	ot, oerr := time.Parse(time.RFC3339Nano, string(other))
	if cerr == nil && oerr == nil {
		return ct.Before(ot)
	}
	return string(c) < string(other)
}

// MarshalJSON encodes the zero cursor as null.
func (c Cursor) MarshalJSON() ([]byte, error) {
	if c.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(string(c))
}

// CursorAt renders t the way the server encodes cursors.
func CursorAt(t time.Time) Cursor {
	return Cursor(t.UTC().Format(time.RFC3339Nano))
}
