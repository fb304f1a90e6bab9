package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Predefined errors for gateway responses
var (
	ErrMalformedResponse = errors.New("gateway: malformed response body")
	ErrShapeMismatch     = errors.New("gateway: response shape mismatch")
	ErrNotAuthenticated  = errors.New("gateway: session not authenticated")
)

// TransportError means the call itself failed: the request could not be sent,
// the connection broke, or the body could not be decoded.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError means the gateway answered, but not with something usable:
// a non-2xx status, or a 2xx body whose shape failed validation.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("gateway: %s: HTTP error! status: %d: %s", e.Op, e.StatusCode, msg)
}

func (e *StatusError) Unwrap() error { return e.Err }

// IsStatus reports whether err is a StatusError carrying the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

func shapeError(op string, code int, format string, args ...any) error {
	return &StatusError{
		Op:         op,
		StatusCode: code,
		Message:    fmt.Sprintf(format, args...),
		Err:        ErrShapeMismatch,
	}
}
