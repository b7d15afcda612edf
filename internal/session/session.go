package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/jwebster45206/mission-console/internal/config"
	"github.com/jwebster45206/mission-console/internal/services"
	"github.com/jwebster45206/mission-console/pkg/chat"
	"github.com/jwebster45206/mission-console/pkg/stream"
)

// readBufferSize is the size of each body read handed to the parser.
const readBufferSize = 4096

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrBusy         = errors.New("a message is already in flight")
)

// Status is the session's position in a send cycle.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusStreaming
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusStreaming:
		return "streaming"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ConfigError reports settings that make a request impossible.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing %s", e.Field)
}

// Callbacks deliver stream progress to the caller. They run on the
// goroutine that called Send. Nil callbacks are skipped.
type Callbacks struct {
	OnThinkingDelta func(text string)
	OnAnswerDelta   func(text string)
	OnTurnFinalized func(answer string)
	OnError         func(message string)
	OnUsageUpdate   func(totals chat.UsageTotals)
	OnStatusChanged func(status Status)
}

// Snapshot is the persistable part of a session.
type Snapshot struct {
	Messages []chat.ChatMessage `json:"messages"`
	Usage    chat.UsageTotals   `json:"usage"`
}

// Session owns the conversation history and usage totals and drives one
// streaming request at a time.
type Session struct {
	llm       services.LLMService
	logger    *slog.Logger
	callbacks Callbacks

	mu       sync.Mutex // guards the fields below
	settings config.Settings
	history  *chat.History
	totals   chat.UsageTotals
	status   Status
}

// New creates an idle session with an empty history.
func New(llm services.LLMService, settings config.Settings, callbacks Callbacks, logger *slog.Logger) *Session {
	return &Session{
		llm:       llm,
		logger:    logger,
		callbacks: callbacks,
		settings:  settings,
		history:   chat.NewHistory(),
		status:    StatusIdle,
	}
}

// BuildRequest assembles a streaming request from settings and the full
// history. Optional sampling fields are only set when configured.
func BuildRequest(settings config.Settings, messages []chat.ChatMessage) *services.ChatCompletionRequest {
	req := &services.ChatCompletionRequest{
		Model:            settings.Model,
		Messages:         messages,
		Stream:           true,
		MaxTokens:        settings.MaxTokens,
		Temperature:      settings.Temperature,
		TopP:             settings.TopP,
		TopK:             settings.TopK,
		FrequencyPenalty: settings.FrequencyPenalty,
	}
	if settings.EnableThinking {
		enabled := true
		budget := settings.ThinkingBudget
		req.EnableThinking = &enabled
		req.ThinkingBudget = &budget
	}
	if settings.MinP != nil {
		minP := *settings.MinP
		req.MinP = &minP
	}
	if len(settings.Stop) > 0 {
		req.Stop = append([]string(nil), settings.Stop...)
	}
	return req
}

// Send appends text as a user message and streams the reply. Deltas are
// forwarded to the callbacks as they arrive. When the stream ends the
// answer is appended to history and returned; pending usage is committed
// only if the stream ended cleanly. A read failure still returns the partial
// answer alongside the error. Errors other than ErrEmptyMessage and ErrBusy
// are also reported through OnError; in every case the session is idle
// again when Send returns.
func (s *Session) Send(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}

	s.mu.Lock()
	if s.status != StatusIdle {
		s.mu.Unlock()
		return "", ErrBusy
	}
	s.status = StatusConnecting
	settings := s.settings
	s.mu.Unlock()
	s.notifyStatus(StatusConnecting)

	if settings.APIKey == "" {
		return "", s.fail(&ConfigError{Field: "API key"})
	}

	s.mu.Lock()
	s.history.AppendUser(text)
	req := BuildRequest(settings, s.history.Messages())
	s.mu.Unlock()

	body, err := s.llm.ChatStream(ctx, settings.APIKey, req)
	if err != nil {
		return "", s.fail(err)
	}
	defer func() { _ = body.Close() }()

	s.setStatus(StatusStreaming)

	acc, err := s.read(ctx, body)
	return s.finalize(acc, err), err
}

// chunk is one body read, or the error that ended reading.
type chunk struct {
	data []byte
	err  error
}

// read pumps body through the parser and accumulator until [DONE], a
// finish_reason, EOF or a failure. The accumulator is returned in every
// case. Reads happen on their own goroutine so cancellation does not wait
// on a blocked Read.
func (s *Session) read(ctx context.Context, body io.ReadCloser) (*stream.Accumulator, error) {
	chunks := make(chan chunk)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		defer close(chunks)
		buf := make([]byte, readBufferSize)
		for {
			n, err := body.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				select {
				case chunks <- chunk{data: data}:
				case <-stop:
					return
				}
			}
			if err != nil {
				select {
				case chunks <- chunk{err: err}:
				case <-stop:
				}
				return
			}
		}
	}()

	parser := stream.NewParser()
	acc := stream.NewAccumulator()

	for {
		select {
		case <-ctx.Done():
			// Closing the body unblocks the reader goroutine.
			_ = body.Close()
			return acc, &services.TransportError{Op: "read", Err: ctx.Err()}

		case c, ok := <-chunks:
			if !ok {
				return acc, nil
			}
			if c.err != nil {
				if errors.Is(c.err, io.EOF) {
					return acc, nil
				}
				return acc, &services.TransportError{Op: "read", Err: c.err}
			}

			payloads, done := parser.Feed(c.data)
			for _, p := range payloads {
				f, ok := stream.Decode(p)
				if !ok {
					s.logger.Debug("Dropping undecodable frame", "payload", p)
					continue
				}
				deltas, finished := acc.Apply(f)
				s.forward(deltas)
				if finished {
					return acc, nil
				}
			}
			if done {
				return acc, nil
			}
		}
	}
}

func (s *Session) forward(deltas []stream.Delta) {
	for _, d := range deltas {
		switch d.Kind {
		case stream.DeltaThinking:
			if s.callbacks.OnThinkingDelta != nil {
				s.callbacks.OnThinkingDelta(d.Text)
			}
		case stream.DeltaAnswer:
			if s.callbacks.OnAnswerDelta != nil {
				s.callbacks.OnAnswerDelta(d.Text)
			}
		}
	}
}

// finalize ends the turn. A non-empty answer is kept even when readErr is
// set; usage reported before a read failure is dropped.
func (s *Session) finalize(acc *stream.Accumulator, readErr error) string {
	answer := acc.Answer()
	usage, hasUsage := acc.PendingUsage()
	if readErr != nil {
		hasUsage = false
	}

	s.mu.Lock()
	if answer != "" {
		s.history.AppendAssistant(answer)
	}
	if hasUsage {
		s.totals.Add(usage)
	}
	totals := s.totals
	s.mu.Unlock()

	s.logger.Debug("Turn finalized",
		"answer_length", len(answer),
		"thinking_length", len(acc.Thinking()),
		"usage_committed", hasUsage,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens)

	if readErr != nil {
		s.fail(readErr)
	} else {
		s.setStatus(StatusIdle)
	}
	if hasUsage && s.callbacks.OnUsageUpdate != nil {
		s.callbacks.OnUsageUpdate(totals)
	}
	if answer != "" && s.callbacks.OnTurnFinalized != nil {
		s.callbacks.OnTurnFinalized(answer)
	}
	return answer
}

// fail reports err once, passes through the error state and returns to idle.
func (s *Session) fail(err error) error {
	s.logger.Error("Chat request failed", "error", err)
	s.setStatus(StatusError)
	if s.callbacks.OnError != nil {
		s.callbacks.OnError(err.Error())
	}
	s.setStatus(StatusIdle)
	return err
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	s.notifyStatus(status)
}

func (s *Session) notifyStatus(status Status) {
	if s.callbacks.OnStatusChanged != nil {
		s.callbacks.OnStatusChanged(status)
	}
}

// Status returns the current send status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetSystemPrompt replaces the system message at the head of the history.
func (s *Session) SetSystemPrompt(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.SetSystem(text)
}

// SetSettings replaces the request settings used by later sends.
func (s *Session) SetSettings(settings config.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

// History returns a copy of the conversation, system message first.
func (s *Session) History() []chat.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Messages()
}

// LastAnswer returns the most recent assistant message, if any.
func (s *Session) LastAnswer() (string, bool) {
	msgs := s.History()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == chat.ChatRoleAgent {
			return msgs[i].Content, true
		}
	}
	return "", false
}

// Totals returns the running usage totals.
func (s *Session) Totals() chat.UsageTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}

// Reset clears history, usage totals and transient state. It fails with
// ErrBusy while a send is in flight.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusIdle {
		return ErrBusy
	}
	s.history.Clear()
	s.totals = chat.UsageTotals{}
	return nil
}

// Snapshot captures history and totals for persistence.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Messages: s.history.Messages(),
		Usage:    s.totals,
	}
}

// Restore replaces history and totals with a saved snapshot.
func (s *Session) Restore(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusIdle {
		return ErrBusy
	}
	s.history = chat.NewHistory(snap.Messages...)
	s.totals = snap.Usage
	return nil
}
