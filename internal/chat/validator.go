package chat

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxTextChars is the longest message body the server accepts.
const MaxTextChars = 1000

var (
	// ErrEmptyMessage is returned for a body that is blank after trimming.
	ErrEmptyMessage = errors.New("message text is empty")

	// ErrMessageTooLong is returned for a body over MaxTextChars characters.
	ErrMessageTooLong = fmt.Errorf("message exceeds %d character limit", MaxTextChars)

	// ErrInvalidUTF8 is returned for a body that is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("message contains invalid UTF-8")
)

// ValidateMessage checks that a chat message body meets content
// requirements. The text is judged after trimming surrounding whitespace,
// which is also what gets sent.
func ValidateMessage(text string) error {
	if !utf8.ValidString(text) {
		return ErrInvalidUTF8
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(trimmed) > MaxTextChars {
		return ErrMessageTooLong
	}
	return nil
}
