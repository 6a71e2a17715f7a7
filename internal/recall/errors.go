package recall

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable means the archive could not be contacted in time.
	ErrUnreachable = errors.New("recall: unreachable")

	// ErrNotFound means the requested message does not exist.
	ErrNotFound = errors.New("recall: message not found")

	// ErrInvalid means a record or query failed validation.
	ErrInvalid = errors.New("recall: invalid request")
)

// StatusError is a non-2xx response from the archive API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("recall: HTTP %d: %s", e.Code, e.Body)
}
