package backend

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured = errors.New("backend address is not configured")
	ErrTransport     = errors.New("backend transport failure")
	ErrRejected      = errors.New("backend rejected the request")
)

// RejectedError is a response the backend delivered with a non-success status.
type RejectedError struct {
	Action  string `json:"action"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s rejected with status %q", e.Action, e.Status)
	}
	return fmt.Sprintf("%s rejected with status %q: %s", e.Action, e.Status, e.Message)
}

func (e *RejectedError) Unwrap() error {
	return ErrRejected
}

// TransportError covers network failures and responses without a usable body.
type TransportError struct {
	Action     string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed with HTTP %d: %v", e.Action, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Action, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// RejectionMessage returns the backend-supplied message, if err carries one.
func RejectionMessage(err error) string {
	var re *RejectedError
	if errors.As(err, &re) {
		return re.Message
	}
	return ""
}
