package services

import (
	"context"
	"io"
)

// LLMService opens streaming chat completions.
type LLMService interface {
	// ChatStream posts req and returns the open event-stream body. The
	// caller must close it. Connect failures and non-200 responses are
	// returned as *TransportError.
	ChatStream(ctx context.Context, apiKey string, req *ChatCompletionRequest) (io.ReadCloser, error)
}
