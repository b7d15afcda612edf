package stream

import (
	"encoding/json"

	"github.com/jwebster45206/mission-console/pkg/chat"
)

// Frame is one decoded chat completions stream chunk. Pointer fields
// distinguish an absent or null value from an empty one.
type Frame struct {
	ID      string        `json:"id,omitempty"`
	Model   string        `json:"model,omitempty"`
	Choices []FrameChoice `json:"choices"`
	Usage   *chat.Usage   `json:"usage,omitempty"`
}

// FrameChoice is a single choice within a stream chunk.
type FrameChoice struct {
	Index        int        `json:"index"`
	Delta        FrameDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// FrameDelta carries the incremental text of a choice.
type FrameDelta struct {
	Role             string  `json:"role,omitempty"`
	ReasoningContent *string `json:"reasoning_content"`
	Content          *string `json:"content"`
}

// Decode parses a data payload. Malformed payloads return ok=false and
// must be dropped by the caller without aborting the stream.
func Decode(payload string) (*Frame, bool) {
	var f Frame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		return nil, false
	}
	return &f, true
}
