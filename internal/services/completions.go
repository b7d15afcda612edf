package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/mission-console/pkg/chat"
)

const (
	completionsPath = "/chat/completions"

	// maxErrorBody caps how much of a failed response is read into the error.
	maxErrorBody = 4096
)

// ChatCompletionRequest is the streaming request body. The sampling fields
// are always sent; the pointer and slice fields only when set.
type ChatCompletionRequest struct {
	Model            string             `json:"model"`
	Messages         []chat.ChatMessage `json:"messages"`
	Stream           bool               `json:"stream"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float64            `json:"temperature"`
	TopP             float64            `json:"top_p"`
	TopK             int                `json:"top_k"`
	FrequencyPenalty float64            `json:"frequency_penalty"`
	EnableThinking   *bool              `json:"enable_thinking,omitempty"`
	ThinkingBudget   *int               `json:"thinking_budget,omitempty"`
	MinP             *float64           `json:"min_p,omitempty"`
	Stop             []string           `json:"stop,omitempty"`
}

// TransportError is a failure to reach the API or a non-200 reply.
type TransportError struct {
	Op         string // "connect", "read", "status"
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// CompletionsService implements LLMService for any OpenAI-compatible
// chat completions endpoint.
type CompletionsService struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Ensure CompletionsService implements LLMService
var _ LLMService = (*CompletionsService)(nil)

// NewCompletionsService creates a streaming client for baseURL (e.g.
// https://api.siliconflow.cn/v1). The HTTP client has no overall timeout so
// long streams are not cut off; bound requests with the context instead.
func NewCompletionsService(baseURL string, logger *slog.Logger) *CompletionsService {
	return &CompletionsService{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// WithHTTPClient replaces the HTTP client, for tests and custom transports.
func (c *CompletionsService) WithHTTPClient(client *http.Client) *CompletionsService {
	c.httpClient = client
	return c
}

func (c *CompletionsService) ChatStream(ctx context.Context, apiKey string, chatReq *ChatCompletionRequest) (io.ReadCloser, error) {
	reqBody, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + completionsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "text/event-stream")

	c.logger.Debug("Opening chat stream",
		"url", url,
		"model", chatReq.Model,
		"message_count", len(chatReq.Messages))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Error("Chat completions API returned error",
			"status_code", resp.StatusCode,
			"response_body", string(body))
		return nil, &TransportError{
			Op:         "status",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", apiErrorMessage(body)),
		}
	}

	return resp.Body, nil
}

// apiErrorMessage pulls error.message out of an OpenAI-style error body,
// falling back to the raw text.
func apiErrorMessage(body []byte) string {
	var apiErr struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	if len(body) == 0 {
		return "(empty response)"
	}
	return string(body)
}
