package pce

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound means the PCE returned 404 for the object.
	ErrNotFound = errors.New("pce: object not found")
	// ErrUnreachable covers transport failures, timeouts, throttling,
	// server errors and rejected credentials.
	ErrUnreachable = errors.New("pce: unreachable")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("pce: %s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusNotFound:
		return ErrNotFound
	case e.Code >= 500, e.Code == http.StatusTooManyRequests,
		e.Code == http.StatusUnauthorized, e.Code == http.StatusForbidden:
		return ErrUnreachable
	}
	return nil
}

// Retryable reports whether err is worth another attempt: transport
// failures, timeouts, 429 and 5xx. Not-found, rejected credentials and other
// 4xx responses are final, as is cancellation by the caller.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return errors.Is(err, ErrUnreachable)
}
