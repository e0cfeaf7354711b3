package chat

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrEmptyMessage     = errors.New("message is empty")
)

// CallFailure reports a failed call to an external service: a transport error,
// a non-2xx status, or a response body that could not be used. Callers do not
// distinguish between these.
type CallFailure struct {
	Target string
	Status int
	Err    error
}

func (e *CallFailure) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s call failed", e.Target)
	}
	return e.Err.Error()
}

func (e *CallFailure) Unwrap() error {
	return e.Err
}

// IsCallFailure reports whether err came from an external call.
func IsCallFailure(err error) bool {
	var failure *CallFailure
	return errors.As(err, &failure)
}
