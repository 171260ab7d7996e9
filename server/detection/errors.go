package detection

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportFailure covers every rejected round trip: network errors,
	// timeouts, non-OK RPC status and malformed payloads.
	ErrTransportFailure = errors.New("detection: transport failure")

	// ErrMalformedResponse is returned when the reply cannot be decoded or
	// carries values outside the contract.
	ErrMalformedResponse = errors.New("detection: malformed response")
)

// StatusError is a non-OK RPC status reported by the service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("detection: rpc status %d", e.Code)
	}
	return fmt.Sprintf("detection: rpc status %d: %s", e.Code, e.Message)
}

func transportError(err error) error {
	return fmt.Errorf("%w: %w", ErrTransportFailure, err)
}
