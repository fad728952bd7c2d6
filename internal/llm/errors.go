package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error is a failed call to an LLM provider.
type Error struct {
	Provider   Provider
	Message    string
	StatusCode int // HTTP status when known
	Transient  bool
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the call may succeed if repeated (quota, overload, timeouts).
func (e *Error) Retryable() bool {
	return e.Transient
}

// transientHTTPStatus reports whether an HTTP status signals quota or overload.
func transientHTTPStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

type httpCoder interface {
	HTTPCode() int
}

// classify wraps a provider error. The caller's own cancellation is never transient.
func classify(ctx context.Context, provider Provider, msg string, err error) *Error {
	e := &Error{Provider: provider, Message: msg, Cause: err}
	if ctx.Err() != nil {
		return e
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		e.StatusCode = gerr.Code
		e.Transient = transientHTTPStatus(gerr.Code)
		return e
	}

	var coder httpCoder
	if errors.As(err, &coder) && coder.HTTPCode() > 0 {
		e.StatusCode = coder.HTTPCode()
		e.Transient = transientHTTPStatus(e.StatusCode)
		return e
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
			e.Transient = true
		}
		return e
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		e.Transient = true
		return e
	}

	text := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "503", "resource exhausted", "resource_exhausted", "unavailable", "overloaded", "connection refused", "connection reset", "timeout"} {
		if strings.Contains(text, marker) {
			e.Transient = true
			break
		}
	}
	return e
}
