package services

import (
	"context"
	"io"
	"strings"
	"sync"
)

// MockLLMAPI is a mock implementation of LLMService for testing
type MockLLMAPI struct {
	ChatStreamFunc func(ctx context.Context, apiKey string, req *ChatCompletionRequest) (io.ReadCloser, error)

	// Track calls for testing
	ChatStreamCalls []ChatStreamCall

	mu sync.Mutex // protects all fields above
}

type ChatStreamCall struct {
	APIKey  string
	Request ChatCompletionRequest
}

// Ensure MockLLMAPI implements LLMService
var _ LLMService = (*MockLLMAPI)(nil)

// NewMockLLMAPI creates a new mock LLM service
func NewMockLLMAPI() *MockLLMAPI {
	return &MockLLMAPI{
		ChatStreamCalls: make([]ChatStreamCall, 0),
	}
}

// ChatStream mocks opening a stream. The default reply is a single answer
// frame followed by [DONE].
func (m *MockLLMAPI) ChatStream(ctx context.Context, apiKey string, req *ChatCompletionRequest) (io.ReadCloser, error) {
	m.mu.Lock()
	m.ChatStreamCalls = append(m.ChatStreamCalls, ChatStreamCall{APIKey: apiKey, Request: *req})
	fn := m.ChatStreamFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, apiKey, req)
	}

	return io.NopCloser(strings.NewReader(SSEBody(`{"choices":[{"delta":{"content":"Mock response"}}]}`))), nil
}

// SetStreamResponse makes every call return the given raw SSE body.
func (m *MockLLMAPI) SetStreamResponse(body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChatStreamFunc = func(ctx context.Context, apiKey string, req *ChatCompletionRequest) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(body)), nil
	}
}

// SetChatStreamError sets up the mock to fail on connect
func (m *MockLLMAPI) SetChatStreamError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChatStreamFunc = func(ctx context.Context, apiKey string, req *ChatCompletionRequest) (io.ReadCloser, error) {
		return nil, err
	}
}

// GetCalls returns a copy of the call tracking data in a thread-safe way
func (m *MockLLMAPI) GetCalls() []ChatStreamCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]ChatStreamCall, len(m.ChatStreamCalls))
	copy(calls, m.ChatStreamCalls)
	return calls
}

// Reset clears all call tracking
func (m *MockLLMAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChatStreamCalls = make([]ChatStreamCall, 0)
}

// SSEBody renders payloads as data frames terminated by [DONE].
func SSEBody(payloads ...string) string {
	var sb strings.Builder
	for _, p := range payloads {
		sb.WriteString("data: " + p + "\n\n")
	}
	sb.WriteString("data: [DONE]\n\n")
	return sb.String()
}
