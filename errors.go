package azureoai

import (
	"fmt"

	"github.com/ucalyptus/azure-oai-agent-sdk-go/internal/auth"
)

// ConnectionError reports a fatal setup, authentication, or HTTP failure.
// The stream produced no further messages once one of these is returned.
type ConnectionError struct {
	msg string
	err error
}

func (e *ConnectionError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %v", e.msg, e.err)
}

// Unwrap exposes the underlying cause for errors.Is and errors.As.
func (e *ConnectionError) Unwrap() error {
	return e.err
}

// ErrInvalidTokenResponse marks a token endpoint response that was not the
// expected JSON shape. Match it with errors.Is against a ConnectionError.
var ErrInvalidTokenResponse = auth.ErrInvalidTokenResponse
