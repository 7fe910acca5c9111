// Package polling implements the asynchronous polling execution protocol for
// data subject request tasks: the initial triggering phase that records
// correlation identifiers, the continuation phase that polls open
// sub-requests, and the aggregation of results once every sub-request is
// terminal. It is a protocol-agnostic polling driver layered over whatever
// declarative or override request shape the connector author supplies.
package polling

import (
	"context"
	"encoding/json"
)

// RequestParams is one fully-substituted HTTP request ready to be sent.
type RequestParams struct {
	Method  string
	Path    string
	Headers map[string]string
	Query   map[string]string
	Body    []byte
}

// Response is the subset of an HTTP response the engine interprets.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the response carries a 2xx status code.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error { return json.Unmarshal(r.Body, v) }

// Text returns the raw response body as a string.
func (r *Response) Text() string { return string(r.Body) }

// AuthenticatedClient abstracts the connector-scoped HTTP client. When
// ignoreErrors is set, non-2xx responses are returned instead of surfacing
// as errors.
type AuthenticatedClient interface {
	Send(ctx context.Context, params RequestParams, ignoreErrors bool) (*Response, error)
}
