package httpclient

import (
	"context"
	"net/url"
)

// Response is a minimal HTTP response contract.
type Response interface {
	Body() []byte
	StatusCode() int
}

// Client abstracts HTTP calls so callers can inject mocks or different transports.
// Implementations must be safe for concurrent use.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
	// Post sends body verbatim; callers own its encoding and Content-Type.
	Post(ctx context.Context, url string, body string, headers map[string]string) (Response, error)
	// PostForm sends form as an application/x-www-form-urlencoded body.
	PostForm(ctx context.Context, url string, form url.Values, headers map[string]string) (Response, error)
}
