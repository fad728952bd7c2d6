package fetch

import "fmt"

// Kind classifies a fetch failure
type Kind string

const (
	// KindTransient failures may succeed on retry: timeouts, resets, 429, 5xx
	KindTransient Kind = "transient"
	// KindTerminal failures will not: 4xx, malformed URL, non-HTML content
	KindTerminal Kind = "terminal"
)

// Error represents an error during URL fetching.
type Error struct {
	URL        string
	Message    string
	StatusCode int
	Kind       Kind
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient
}

func transient(url string, status int, msg string, cause error) *Error {
	return &Error{URL: url, StatusCode: status, Message: msg, Kind: KindTransient, Cause: cause}
}

func terminal(url string, status int, msg string, cause error) *Error {
	return &Error{URL: url, StatusCode: status, Message: msg, Kind: KindTerminal, Cause: cause}
}
