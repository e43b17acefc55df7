package scrapyd

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownEndpoint is returned before any request when a URL is built for an unregistered name.
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	// ErrNotImplemented is returned by operations the client does not support.
	ErrNotImplemented = errors.New("not implemented")
)

// StatusError reports a non-2xx response from the daemon.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, bodySnippet(e.Body))
}

// DecodeError reports a response body that is not valid JSON.
type DecodeError struct {
	Endpoint Endpoint
	Body     []byte
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response: %v (body: %s)", e.Endpoint, e.Err, bodySnippet(e.Body))
}

func (e *DecodeError) Unwrap() error { return e.Err }

func bodySnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
