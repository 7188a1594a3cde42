// Package mocks provides test doubles for the chat backend, the Slack user
// directory and the configuration watcher.
package mocks

import (
	"context"
	"sync"

	"github.com/coral-p2025/coral/chat"
	"github.com/coral-p2025/coral/server/mention"
)

// MockChatClient is a chat.Client that records requests and answers with
// ChatFunc.
//
// Example usage:
//
//	client := mocks.NewMockChatClient(func(ctx context.Context, req chat.Request) (*chat.Response, error) {
//	    return &chat.Response{Text: "mocked reply", GenerationID: "gen-1"}, nil
//	})
type MockChatClient struct {
	ChatFunc func(context.Context, chat.Request) (*chat.Response, error)

	mu       sync.Mutex
	requests []chat.Request
}

var _ chat.Client = (*MockChatClient)(nil)

// NewMockChatClient returns a client answering with fn. A nil fn answers
// every request with an empty response.
func NewMockChatClient(fn func(context.Context, chat.Request) (*chat.Response, error)) *MockChatClient {
	return &MockChatClient{ChatFunc: fn}
}

// NewStaticChatClient returns a client answering every request with text.
func NewStaticChatClient(text, generationID string) *MockChatClient {
	return NewMockChatClient(func(context.Context, chat.Request) (*chat.Response, error) {
		return &chat.Response{Text: text, GenerationID: generationID}, nil
	})
}

// NewFailingChatClient returns a client failing every request with err.
func NewFailingChatClient(err error) *MockChatClient {
	return NewMockChatClient(func(context.Context, chat.Request) (*chat.Response, error) {
		return nil, err
	})
}

// Chat implements chat.Client.
func (m *MockChatClient) Chat(ctx context.Context, req chat.Request) (*chat.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	return &chat.Response{}, nil
}

// Requests returns a copy of the requests received so far.
func (m *MockChatClient) Requests() []chat.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chat.Request(nil), m.requests...)
}

// LastRequest returns the most recent request. It panics when none was
// received.
func (m *MockChatClient) LastRequest() chat.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

// MockResolver resolves display names from a fixed directory. IDs missing
// from Names fail with ErrUserNotFound.
type MockResolver struct {
	Names map[string]string

	mu    sync.Mutex
	calls map[string]int
}

var _ mention.Resolver = (*MockResolver)(nil)

// NewMockResolver returns a resolver for names.
func NewMockResolver(names map[string]string) *MockResolver {
	return &MockResolver{Names: names}
}

// ResolveDisplayName implements mention.Resolver.
func (m *MockResolver) ResolveDisplayName(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[userID]++
	m.mu.Unlock()

	name, ok := m.Names[userID]
	if !ok {
		return "", ErrUserNotFound
	}
	return name, nil
}

// Calls returns how many times userID was looked up.
func (m *MockResolver) Calls(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[userID]
}
