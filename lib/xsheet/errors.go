package xsheet

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized is returned when the server rejects the credential (HTTP 401).
// it is never retried with the same credential.
var ErrUnauthorized = errors.New("xsheet: credential rejected")

// ErrMalformedResponse marks a response body that did not have the expected shape.
var ErrMalformedResponse = errors.New("xsheet: malformed response")

// TransientError covers every failure that is neither a success nor a 401:
// transport errors, other non-2xx statuses and malformed bodies.
type TransientError struct {
	Op     string
	Status int
	// Body is the raw response body, kept for diagnostics.
	Body string
	// Message is the error message supplied by the server, empty when the
	// body carried none.
	Message string
	Err     error
}

func (e *TransientError) Error() string {
	detail := e.Message
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	if detail == "" {
		detail = http.StatusText(e.Status)
	}
	if e.Status != 0 {
		return fmt.Sprintf("xsheet: %s: status %d: %s", e.Op, e.Status, detail)
	}
	return fmt.Sprintf("xsheet: %s: %s", e.Op, detail)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is (or wraps) a *TransientError.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// UserMessage returns the server's message for a failed call when there is
// one, otherwise fallback.
func UserMessage(err error, fallback string) string {
	var transient *TransientError
	if errors.As(err, &transient) && transient.Message != "" {
		return transient.Message
	}
	return fallback
}
