package stream

import (
	"strings"

	"github.com/jwebster45206/mission-console/pkg/chat"
)

// Accumulator turns decoded frames into deltas and keeps the full thinking
// and answer text of the current turn. Usage reported mid-stream is held as
// pending until the caller commits it.
type Accumulator struct {
	thinking strings.Builder
	answer   strings.Builder
	pending  *chat.Usage
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Apply interprets one frame. finished is true when the frame carries a
// finish_reason.
func (a *Accumulator) Apply(f *Frame) (deltas []Delta, finished bool) {
	if f == nil {
		return nil, false
	}

	// A frame without choices is dropped whole, usage included.
	if len(f.Choices) == 0 {
		return nil, false
	}

	choice := f.Choices[0]
	if rc := choice.Delta.ReasoningContent; rc != nil {
		a.thinking.WriteString(*rc)
		deltas = append(deltas, Thinking(*rc))
	}
	if c := choice.Delta.Content; c != nil {
		a.answer.WriteString(*c)
		deltas = append(deltas, Answer(*c))
	}
	if f.Usage != nil {
		u := *f.Usage
		a.pending = &u
		deltas = append(deltas, UsageDelta(u))
	}

	return deltas, choice.FinishReason != nil
}

// ApplyPayload decodes and applies a raw data payload. Undecodable
// payloads are ignored.
func (a *Accumulator) ApplyPayload(payload string) (deltas []Delta, finished bool) {
	f, ok := Decode(payload)
	if !ok {
		return nil, false
	}
	return a.Apply(f)
}

// Thinking returns the accumulated reasoning text.
func (a *Accumulator) Thinking() string {
	return a.thinking.String()
}

// Answer returns the accumulated answer text.
func (a *Accumulator) Answer() string {
	return a.answer.String()
}

// PendingUsage returns the most recent usage snapshot, if any.
func (a *Accumulator) PendingUsage() (chat.Usage, bool) {
	if a.pending == nil {
		return chat.Usage{}, false
	}
	return *a.pending, true
}

// Reset clears all per-turn state.
func (a *Accumulator) Reset() {
	a.thinking.Reset()
	a.answer.Reset()
	a.pending = nil
}
