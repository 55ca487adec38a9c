package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes a failed request so callers can react without inspecting
// status codes.
type Kind int

const (
	// KindNetwork covers dial failures, timeouts and cancellation.
	KindNetwork Kind = iota + 1
	// KindAuth is a 401 or 403 response.
	KindAuth
	// KindValidation is any other 4xx response except 429.
	KindValidation
	// KindRateLimited is a 429 response.
	KindRateLimited
	// KindServer is a 5xx response or a body that could not be decoded.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error is returned by every Client operation that fails.
type Error struct {
	Kind   Kind
	Op     string // "fetch", "send", "delete" or "get"
	Status int    // HTTP status, 0 when no response was received
	Detail string // server-provided detail, may be empty
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "":
		return fmt.Sprintf("transport: %s: %s error (%d): %s", e.Op, e.Kind, e.Status, e.Detail)
	case e.Status != 0:
		return fmt.Sprintf("transport: %s: %s error (%d)", e.Op, e.Kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("transport: %s: %s error: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("transport: %s: %s error", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the category of err, or 0 when err is not a transport error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return 0
}

// DetailOf returns the server-provided detail carried by err, if any.
func DetailOf(err error) string {
	var te *Error
	if errors.As(err, &te) {
		return te.Detail
	}
	return ""
}

// kindForStatus maps a non-success HTTP status to a Kind.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindServer
	}
}
