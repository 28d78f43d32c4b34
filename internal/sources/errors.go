package sources

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSourceUnavailable marks a source that could not be reached or answered with a non-2xx status.
var ErrSourceUnavailable = errors.New("source unavailable")

// SourceError describes a failed fetch. Failed lists individual requests
// when a source issues several of them.
type SourceError struct {
	Source string
	Status int
	Failed []string
	Err    error
}

func (e *SourceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "source %s", e.Source)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if len(e.Failed) > 0 {
		fmt.Fprintf(&b, ": failed requests [%s]", strings.Join(e.Failed, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

func unavailable(source string, status int, cause error) *SourceError {
	err := ErrSourceUnavailable
	if cause != nil {
		err = fmt.Errorf("%w: %v", ErrSourceUnavailable, cause)
	}
	return &SourceError{Source: source, Status: status, Err: err}
}
