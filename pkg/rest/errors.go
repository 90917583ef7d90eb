package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
)

var ErrNotFound = errors.New("resource not found")

// APIError is returned for non-2xx responses and for envelopes with success=false.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.StatusCode)
	}
	return e.Message
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

const (
	msgTimeout = "Request timed out, please try again"
	msgGeneric = "Something went wrong, please try again"
)

// ErrorMessage extracts a human-readable message from any error returned by the client.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return msgTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return msgTimeout
	}

	return msgGeneric
}
