package store

import (
	"context"
	"errors"

	"storefront-sync/internal/gateway"
)

// Predefined errors for envelope settlements
var (
	ErrDiscarded    = errors.New("store: settlement discarded")
	ErrWorkPanicked = errors.New("store: operation panicked")
)

// ErrorKind classifies a domain error.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindStatus    ErrorKind = "status"
	KindInternal  ErrorKind = "internal"
)

// DomainError is the normalized failure recorded on a domain after a failed
// settlement.
type DomainError struct {
	Kind    ErrorKind `json:"kind"`
	Code    int       `json:"code,omitempty"`
	Message string    `json:"message"`
}

func (e *DomainError) Error() string { return e.Message }

// NormalizeError maps any error from a unit of work onto the DomainError
// taxonomy. Transport failures keep their message verbatim; status failures
// keep the HTTP code.
func NormalizeError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var se *gateway.StatusError
	if errors.As(err, &se) {
		return &DomainError{Kind: KindStatus, Code: se.StatusCode, Message: se.Error()}
	}
	var te *gateway.TransportError
	if errors.As(err, &te) {
		return &DomainError{Kind: KindTransport, Message: te.Error()}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &DomainError{Kind: KindTransport, Message: err.Error()}
	}
	return &DomainError{Kind: KindInternal, Message: err.Error()}
}
