package verify

import (
	"context"
	"errors"
)

var (
	// ErrTransport marks failures talking to the automation backend
	ErrTransport = errors.New("agent transport failure")
	// ErrTimeout marks a check abandoned after its category timeout
	ErrTimeout = errors.New("check timed out")
	// ErrSession marks a failure to open an isolated agent session
	ErrSession = errors.New("agent session unavailable")
)

// IsTransportError reports whether err came from the agent's transport
func IsTransportError(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrSession)
}

// IsTimeoutError reports whether err is a check or context timeout
func IsTimeoutError(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
