package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/mission-console/internal/config"
	"github.com/jwebster45206/mission-console/internal/services"
	"github.com/jwebster45206/mission-console/pkg/chat"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSettings() config.Settings {
	return config.Settings{
		APIKey:      "sk-test",
		Model:       "test-model",
		MaxTokens:   256,
		Temperature: 0.7,
		TopP:        0.9,
		TopK:        50,
	}
}

// recorder captures callback traffic.
type recorder struct {
	thinking  []string
	answer    []string
	finalized []string
	errors    []string
	usage     []chat.UsageTotals
	statuses  []Status
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnThinkingDelta: func(text string) { r.thinking = append(r.thinking, text) },
		OnAnswerDelta:   func(text string) { r.answer = append(r.answer, text) },
		OnTurnFinalized: func(answer string) { r.finalized = append(r.finalized, answer) },
		OnError:         func(message string) { r.errors = append(r.errors, message) },
		OnUsageUpdate:   func(totals chat.UsageTotals) { r.usage = append(r.usage, totals) },
		OnStatusChanged: func(status Status) { r.statuses = append(r.statuses, status) },
	}
}

func TestSession_SendStreamsAndFinalizes(t *testing.T) {
	var gotReq map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range []string{
			": keep-alive\n",
			`data: {"choices":[{"delta":{"reasoning_content":"plan"}}]}` + "\n\n",
			`data: {"choices":[{"delta":{"content":"Hel"}}]}` + "\n\n",
			`data: {"choices":[{"delta":{"content":"lo"}}],"usage":{"prompt_tokens":12,"completion_tokens":3}}` + "\n\n",
			"data: [DONE]\n\n",
		} {
			_, _ = io.WriteString(w, line)
			flusher.Flush()
		}
	}))
	defer server.Close()

	rec := &recorder{}
	llm := services.NewCompletionsService(server.URL, testLogger())
	s := New(llm, testSettings(), rec.callbacks(), testLogger())
	s.SetSystemPrompt("You are mission control.")

	answer, err := s.Send(context.Background(), "status report")
	require.NoError(t, err)

	assert.Equal(t, "Hello", answer)
	assert.Equal(t, []string{"plan"}, rec.thinking)
	assert.Equal(t, []string{"Hel", "lo"}, rec.answer)
	assert.Equal(t, []string{"Hello"}, rec.finalized)
	assert.Empty(t, rec.errors)
	require.Len(t, rec.usage, 1)
	assert.Equal(t, chat.UsageTotals{PromptTokens: 12, CompletionTokens: 3}, rec.usage[0])
	assert.Equal(t, []Status{StatusConnecting, StatusStreaming, StatusIdle}, rec.statuses)
	assert.Equal(t, StatusIdle, s.Status())

	history := s.History()
	require.Len(t, history, 3)
	assert.Equal(t, chat.ChatRoleSystem, history[0].Role)
	assert.Equal(t, chat.ChatMessage{Role: chat.ChatRoleUser, Content: "status report"}, history[1])
	assert.Equal(t, chat.ChatMessage{Role: chat.ChatRoleAgent, Content: "Hello"}, history[2])

	msgs, ok := gotReq["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, true, gotReq["stream"])
}

func TestSession_FinishReasonEndsStream(t *testing.T) {
	llm := services.NewMockLLMAPI()
	llm.SetStreamResponse(
		`data: {"choices":[{"delta":{"content":"done"},"finish_reason":"stop"}]}` + "\n\n" +
			`data: {"choices":[{"delta":{"content":" ignored"}}]}` + "\n\n")

	s := New(llm, testSettings(), Callbacks{}, testLogger())
	answer, err := s.Send(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "done", answer)
}

func TestSession_CleanEOFFinalizes(t *testing.T) {
	llm := services.NewMockLLMAPI()
	llm.SetStreamResponse(`data: {"choices":[{"delta":{"content":"partial"}}]}` + "\n")

	rec := &recorder{}
	s := New(llm, testSettings(), rec.callbacks(), testLogger())
	answer, err := s.Send(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "partial", answer)
	assert.Equal(t, []string{"partial"}, rec.finalized)
	assert.Empty(t, rec.usage)
}

func TestSession_UsageAccumulatesAcrossTurns(t *testing.T) {
	llm := services.NewMockLLMAPI()
	llm.SetStreamResponse(services.SSEBody(
		`{"choices":[{"delta":{"content":"a"}}],"usage":{"prompt_tokens":5,"completion_tokens":1}}`,
		`{"choices":[{"delta":{"content":"b"}}],"usage":{"prompt_tokens":10,"completion_tokens":2}}`,
	))

	s := New(llm, testSettings(), Callbacks{}, testLogger())
	for i := 0; i < 2; i++ {
		_, err := s.Send(context.Background(), "turn")
		require.NoError(t, err)
	}

	// Only the last snapshot of each stream is committed.
	assert.Equal(t, chat.UsageTotals{PromptTokens: 20, CompletionTokens: 4}, s.Totals())
}

func TestSession_Rejections(t *testing.T) {
	llm := services.NewMockLLMAPI()
	rec := &recorder{}
	s := New(llm, testSettings(), rec.callbacks(), testLogger())

	_, err := s.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	s.status = StatusStreaming
	_, err = s.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrBusy)
	s.status = StatusIdle

	assert.Empty(t, rec.errors)
	assert.Empty(t, rec.statuses)
	assert.Empty(t, llm.GetCalls())
	assert.Empty(t, s.History())
}

func TestSession_MissingAPIKey(t *testing.T) {
	llm := services.NewMockLLMAPI()
	rec := &recorder{}
	settings := testSettings()
	settings.APIKey = ""
	s := New(llm, settings, rec.callbacks(), testLogger())

	_, err := s.Send(context.Background(), "hello")

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Len(t, rec.errors, 1)
	assert.Empty(t, llm.GetCalls())
	assert.Empty(t, s.History())
	assert.Equal(t, StatusIdle, s.Status())
	assert.Equal(t, []Status{StatusConnecting, StatusError, StatusIdle}, rec.statuses)
}

func TestSession_ConnectFailure(t *testing.T) {
	llm := services.NewMockLLMAPI()
	llm.SetChatStreamError(&services.TransportError{Op: "connect", Err: errors.New("connection refused")})
	rec := &recorder{}
	s := New(llm, testSettings(), rec.callbacks(), testLogger())

	_, err := s.Send(context.Background(), "hello")

	var te *services.TransportError
	require.True(t, errors.As(err, &te))
	require.Len(t, rec.errors, 1)
	assert.Contains(t, rec.errors[0], "connection refused")
	assert.Empty(t, rec.finalized)
	assert.Equal(t, StatusIdle, s.Status())

	// The user message stays so the player can retry with context intact.
	assert.Equal(t, []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "hello"}}, s.History())
}

// failingReader yields one frame then a read error.
type failingReader struct {
	sent bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, `data: {"choices":[{"delta":{"content":"half"}}],"usage":{"prompt_tokens":9,"completion_tokens":9}}`+"\n"), nil
	}
	return 0, errors.New("connection reset")
}

func TestSession_ReadErrorKeepsPartialAnswer(t *testing.T) {
	llm := services.NewMockLLMAPI()
	llm.ChatStreamFunc = func(ctx context.Context, apiKey string, req *services.ChatCompletionRequest) (io.ReadCloser, error) {
		return io.NopCloser(&failingReader{}), nil
	}
	rec := &recorder{}
	s := New(llm, testSettings(), rec.callbacks(), testLogger())

	answer, err := s.Send(context.Background(), "hello")
	require.Error(t, err)
	var te *services.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "read", te.Op)

	assert.Equal(t, "half", answer)
	assert.Equal(t, []string{"half"}, rec.answer)
	assert.Len(t, rec.errors, 1)
	assert.Equal(t, []string{"half"}, rec.finalized)

	// Usage seen before the failure is not committed.
	assert.Empty(t, rec.usage)
	assert.Equal(t, chat.UsageTotals{}, s.Totals())
	assert.Equal(t, StatusIdle, s.Status())
	assert.Equal(t, []chat.ChatMessage{
		{Role: chat.ChatRoleUser, Content: "hello"},
		{Role: chat.ChatRoleAgent, Content: "half"},
	}, s.History())
}

func TestSession_DroppedConnectionThenRetry(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "text/event-stream")
		if calls == 1 {
			_, _ = w.Write([]byte(`data: {"choices":[{"delta":{"content":"partial answer"}}]}` + "\n"))
			w.(http.Flusher).Flush()
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		_, _ = w.Write([]byte(services.SSEBody(`{"choices":[{"delta":{"content":"full answer"},"finish_reason":"stop"}]}`)))
	}))
	defer server.Close()

	rec := &recorder{}
	s := New(services.NewCompletionsService(server.URL, testLogger()), testSettings(), rec.callbacks(), testLogger())

	answer, err := s.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, "partial answer", answer)

	answer, err = s.Send(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, "full answer", answer)

	assert.Equal(t, []chat.ChatMessage{
		{Role: chat.ChatRoleUser, Content: "hello"},
		{Role: chat.ChatRoleAgent, Content: "partial answer"},
		{Role: chat.ChatRoleUser, Content: "again"},
		{Role: chat.ChatRoleAgent, Content: "full answer"},
	}, s.History())
	assert.Equal(t, []string{"partial answer", "full answer"}, rec.finalized)
}

// blockingBody never returns data until closed.
type blockingBody struct {
	closed chan struct{}
}

func (b *blockingBody) Read(p []byte) (int, error) {
	<-b.closed
	return 0, io.ErrClosedPipe
}

func (b *blockingBody) Close() error {
	select {
	case <-b.closed:
	default:
		close(b.closed)
	}
	return nil
}

func TestSession_ContextCancel(t *testing.T) {
	body := &blockingBody{closed: make(chan struct{})}
	llm := services.NewMockLLMAPI()
	llm.ChatStreamFunc = func(ctx context.Context, apiKey string, req *services.ChatCompletionRequest) (io.ReadCloser, error) {
		return body, nil
	}
	s := New(llm, testSettings(), Callbacks{}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Send(ctx, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusIdle, s.Status())

	select {
	case <-body.closed:
	default:
		t.Fatal("expected body to be closed on cancel")
	}
}

func TestBuildRequest(t *testing.T) {
	minP := 0.05
	tests := []struct {
		name     string
		settings func(s *config.Settings)
		check    func(t *testing.T, req *services.ChatCompletionRequest)
	}{
		{
			name:     "defaults omit optional fields",
			settings: func(s *config.Settings) {},
			check: func(t *testing.T, req *services.ChatCompletionRequest) {
				assert.True(t, req.Stream)
				assert.Nil(t, req.EnableThinking)
				assert.Nil(t, req.ThinkingBudget)
				assert.Nil(t, req.MinP)
				assert.Nil(t, req.Stop)
			},
		},
		{
			name: "thinking enabled",
			settings: func(s *config.Settings) {
				s.EnableThinking = true
				s.ThinkingBudget = 1024
			},
			check: func(t *testing.T, req *services.ChatCompletionRequest) {
				require.NotNil(t, req.EnableThinking)
				assert.True(t, *req.EnableThinking)
				require.NotNil(t, req.ThinkingBudget)
				assert.Equal(t, 1024, *req.ThinkingBudget)
			},
		},
		{
			name: "min_p and stop configured",
			settings: func(s *config.Settings) {
				s.MinP = &minP
				s.Stop = []string{"###"}
			},
			check: func(t *testing.T, req *services.ChatCompletionRequest) {
				require.NotNil(t, req.MinP)
				assert.Equal(t, 0.05, *req.MinP)
				assert.Equal(t, []string{"###"}, req.Stop)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := testSettings()
			tt.settings(&settings)
			msgs := []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "hi"}}
			req := BuildRequest(settings, msgs)
			assert.Equal(t, "test-model", req.Model)
			assert.Equal(t, msgs, req.Messages)
			tt.check(t, req)
		})
	}
}

func TestSession_ResetAndRestore(t *testing.T) {
	llm := services.NewMockLLMAPI()
	llm.SetStreamResponse(services.SSEBody(
		`{"choices":[{"delta":{"content":"ok"}}],"usage":{"prompt_tokens":1,"completion_tokens":1}}`))
	s := New(llm, testSettings(), Callbacks{}, testLogger())
	s.SetSystemPrompt("sys")

	_, err := s.Send(context.Background(), "hi")
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 3)

	require.NoError(t, s.Reset())
	assert.Empty(t, s.History())
	assert.Equal(t, chat.UsageTotals{}, s.Totals())

	require.NoError(t, s.Restore(snap))
	assert.Equal(t, snap.Messages, s.History())
	assert.Equal(t, 2, s.Totals().Total())

	last, ok := s.LastAnswer()
	assert.True(t, ok)
	assert.Equal(t, "ok", last)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "streaming", StatusStreaming.String())
	assert.True(t, strings.HasPrefix(Status(42).String(), "status("))
}
