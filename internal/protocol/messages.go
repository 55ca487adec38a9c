// Package protocol defines the REST wire format shared by the chat client
// and the reference server: route shapes, query parameters, request bodies
// and the error envelope. Message and page bodies are the chat package types,
// which carry their own JSON tags.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Routes and parameters
// ---------------------------------------------------------------------------

const (
	// BasePath is the collection root. POST here creates a message.
	BasePath = "/event-chats/"

	// EventPathPrefix is followed by the event ID to list its messages.
	EventPathPrefix = "/event-chats/event/"

	ParamSince = "since"
	ParamLimit = "limit"
)

// Page size bounds enforced by the server.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// EventMessagesPath returns the listing path for an event.
func EventMessagesPath(eventID string) string {
	return EventPathPrefix + eventID
}

// MessagePath returns the path addressing a single message.
func MessagePath(messageID string) string {
	return BasePath + messageID
}

// ---------------------------------------------------------------------------
// Request bodies
// ---------------------------------------------------------------------------

// SendRequest is the body of POST /event-chats/. The author is never part of
// the body; the server takes it from the caller's credentials.
type SendRequest struct {
	EventID     string `json:"eventId"`
	MessageText string `json:"messageText"`
}

// ---------------------------------------------------------------------------
// Error envelope
// ---------------------------------------------------------------------------

// ErrorResponse is the body of every non-2xx response. Detail is either a
// plain string or, for request validation failures, a list of
// {"loc", "msg", "type"} objects.
type ErrorResponse struct {
	Detail Detail `json:"detail"`
}

// Detail captures the human-readable part of an error body regardless of
// which of the two shapes the server used.
type Detail string

// UnmarshalJSON implements the json.Unmarshaler interface. A string is taken
// as is; for a list the first item's "msg" is used.
func (d *Detail) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*d = Detail(s)
		return nil
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("protocol: detail is neither string nor list: %w", err)
	}
	if len(items) > 0 {
		*d = Detail(items[0].Msg)
	}
	return nil
}

// NewError builds an error body with a plain string detail.
func NewError(detail string) ErrorResponse {
	return ErrorResponse{Detail: Detail(detail)}
}

// ParseDetail extracts the detail from a raw error body. It returns an empty
// string when the body is not a recognizable error envelope.
func ParseDetail(body []byte) string {
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return strings.TrimSpace(string(resp.Detail))
}

// ---------------------------------------------------------------------------
// Cursor encoding
// ---------------------------------------------------------------------------

// ParseSince parses a "since" cursor. Both the "Z" suffix and numeric
// offsets are accepted; the result is in UTC.
func ParseSince(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("protocol: invalid since cursor %q: %w", raw, err)
	}
	return t.UTC(), nil
}
