package check

import (
	"errors"
	"fmt"

	"github.com/securepool/pincheck/internal/pin"
)

// EndpointError reports an HTTP or WebSocket request that failed or
// answered with a status outside the expected set.
type EndpointError struct {
	Method string
	Path   string

	// Status is the response code, zero when no response arrived.
	Status int

	Err error
}

func (e *EndpointError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("check: %s %s: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("check: %s %s: unexpected status %d", e.Method, e.Path, e.Status)
}

func (e *EndpointError) Unwrap() error { return e.Err }

// statusFor maps a transport error to fail or error. A pin rejected by the
// connection hook is a failed expectation, anything else means the check
// could not complete.
func statusFor(err error) Status {
	var me *pin.MismatchError
	if errors.As(err, &me) {
		return StatusFail
	}
	return StatusError
}
