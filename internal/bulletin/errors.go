package bulletin

import (
	"errors"
	"fmt"
)

// ErrNoTable is returned when a bulletin page carries no results table.
// It means "no results" and is not a failure.
var ErrNoTable = errors.New("bulletin: no results table")

// TransportError reports a failed bulletin request: a connection problem
// or a non-2xx response.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("bulletin request %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("bulletin request %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
