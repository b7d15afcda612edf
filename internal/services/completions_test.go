package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/jwebster45206/mission-console/pkg/chat"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // Reduce noise in tests
	}))
}

func TestCompletionsService_ChatStream(t *testing.T) {
	var gotHeaders http.Header
	var gotBody map[string]any
	var gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, SSEBody(`{"choices":[{"delta":{"content":"hi"}}]}`))
	}))
	defer server.Close()

	svc := NewCompletionsService(server.URL+"/v1", testLogger())
	body, err := svc.ChatStream(context.Background(), "sk-test", &ChatCompletionRequest{
		Model:    "test-model",
		Messages: []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "hello"}},
		Stream:   true,
	})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	defer func() { _ = body.Close() }()

	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if string(raw) != SSEBody(`{"choices":[{"delta":{"content":"hi"}}]}`) {
		t.Errorf("Unexpected body: %q", raw)
	}

	if gotPath != "/v1/chat/completions" {
		t.Errorf("Expected path /v1/chat/completions, got %s", gotPath)
	}
	if got := gotHeaders.Get("Authorization"); got != "Bearer sk-test" {
		t.Errorf("Expected bearer auth, got %q", got)
	}
	if got := gotHeaders.Get("Accept"); got != "text/event-stream" {
		t.Errorf("Expected event-stream accept, got %q", got)
	}
	if got := gotHeaders.Get("Content-Type"); got != "application/json" {
		t.Errorf("Expected json content type, got %q", got)
	}
	if gotBody["stream"] != true {
		t.Errorf("Expected stream=true, got %v", gotBody["stream"])
	}
}

func TestCompletionsService_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"invalid api key","type":"auth"}}`)
	}))
	defer server.Close()

	svc := NewCompletionsService(server.URL, testLogger())
	_, err := svc.ChatStream(context.Background(), "bad", &ChatCompletionRequest{Model: "m"})

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Expected TransportError, got %v", err)
	}
	if te.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", te.StatusCode)
	}
	if te.Err.Error() != "invalid api key" {
		t.Errorf("Expected API message, got %q", te.Err.Error())
	}
}

func TestCompletionsService_ConnectError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	svc := NewCompletionsService(url, testLogger())
	_, err := svc.ChatStream(context.Background(), "k", &ChatCompletionRequest{Model: "m"})

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Expected TransportError, got %v", err)
	}
	if te.Op != "connect" {
		t.Errorf("Expected connect op, got %s", te.Op)
	}
}

func TestChatCompletionRequest_OptionalFields(t *testing.T) {
	budget := 256
	enabled := true
	minP := 0.1

	tests := []struct {
		name    string
		req     ChatCompletionRequest
		present []string
		absent  []string
	}{
		{
			name:    "minimal",
			req:     ChatCompletionRequest{Model: "m", Stream: true},
			present: []string{"model", "messages", "stream", "max_tokens", "temperature", "top_p", "top_k", "frequency_penalty"},
			absent:  []string{"enable_thinking", "thinking_budget", "min_p", "stop"},
		},
		{
			name: "all optional",
			req: ChatCompletionRequest{
				Model: "m", EnableThinking: &enabled, ThinkingBudget: &budget,
				MinP: &minP, Stop: []string{"END"},
			},
			present: []string{"enable_thinking", "thinking_budget", "min_p", "stop"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.req)
			if err != nil {
				t.Fatalf("marshal failed: %v", err)
			}
			var fields map[string]any
			if err := json.Unmarshal(data, &fields); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			for _, k := range tt.present {
				if _, ok := fields[k]; !ok {
					t.Errorf("Expected field %s to be present in %s", k, data)
				}
			}
			for _, k := range tt.absent {
				if _, ok := fields[k]; ok {
					t.Errorf("Expected field %s to be absent in %s", k, data)
				}
			}
		})
	}
}

func TestApiErrorMessage(t *testing.T) {
	if got := apiErrorMessage(nil); got != "(empty response)" {
		t.Errorf("Expected empty marker, got %q", got)
	}
	if got := apiErrorMessage([]byte("bad gateway")); got != "bad gateway" {
		t.Errorf("Expected raw body, got %q", got)
	}
}
