package polling

import (
	"context"
	"sync"
)

// mockClient implements AuthenticatedClient with a pluggable send function
// and records every request it receives.
type mockClient struct {
	mu     sync.Mutex
	SendFn func(ctx context.Context, params RequestParams, ignoreErrors bool) (*Response, error)
	calls  []RequestParams
}

func (m *mockClient) Send(ctx context.Context, params RequestParams, ignoreErrors bool) (*Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, params)
	m.mu.Unlock()

	if m.SendFn != nil {
		return m.SendFn(ctx, params, ignoreErrors)
	}
	panic("unexpected call to mockClient.Send")
}

func (m *mockClient) Calls() []RequestParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RequestParams, len(m.calls))
	copy(out, m.calls)
	return out
}

func jsonResponse(status int, body string) *Response {
	return &Response{StatusCode: status, Body: []byte(body)}
}
