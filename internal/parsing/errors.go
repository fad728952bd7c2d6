package parsing

import (
	"errors"
	"fmt"
)

// Reasons a page is not usable. They are deterministic, so a parse failure is
// counted once and never retried.
var (
	ErrMalformedHTML = errors.New("malformed HTML")
	ErrNoTitle       = errors.New("no title found")
	ErrNoBody        = errors.New("no article body found")
)

// Error ties a parse failure to the page it came from. Reason is one of the
// Err values above; Cause is the underlying parser error, if any.
type Error struct {
	URL    string
	Reason error
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse %s: %v: %v", e.URL, e.Reason, e.Cause)
	}
	return fmt.Sprintf("parse %s: %v", e.URL, e.Reason)
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Cause}
}

// Retryable is always false.
func (e *Error) Retryable() bool {
	return false
}
