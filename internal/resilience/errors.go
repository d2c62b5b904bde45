package resilience

import (
	"errors"
	"fmt"
)

// ErrCircuitOpen is returned without invoking the protected function while a
// breaker is open, or half-open with its probe already in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// AttemptsError reports a protected call that failed after its retry phase.
type AttemptsError struct {
	CallSite string
	Attempts int
	Class    Class
	Err      error
}

func (e *AttemptsError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.CallSite, e.Attempts, e.Err)
}

func (e *AttemptsError) Unwrap() error {
	return e.Err
}
