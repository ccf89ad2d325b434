package transport

import (
	"errors"
	"fmt"
)

// APIError represents a non-2xx HTTP response from the gateway.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("azure openai api error: status %d: %s", e.StatusCode, e.Body)
}

// ErrNotConnected reports ReadMessages being called before a successful
// Connect.
var ErrNotConnected = errors.New("not connected to azure openai")

// ErrSessionClosed reports use of a session after Close.
var ErrSessionClosed = errors.New("session closed")
