package stream

import "github.com/jwebster45206/mission-console/pkg/chat"

// DeltaKind tags a Delta.
type DeltaKind int

const (
	DeltaThinking DeltaKind = iota
	DeltaAnswer
	DeltaUsage
	DeltaDone
	DeltaError
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaThinking:
		return "thinking"
	case DeltaAnswer:
		return "answer"
	case DeltaUsage:
		return "usage"
	case DeltaDone:
		return "done"
	case DeltaError:
		return "error"
	default:
		return "unknown"
	}
}

// Delta is one incremental event produced while reading a stream.
// Text is set for Thinking, Answer and Error; Usage only for Usage.
type Delta struct {
	Kind  DeltaKind
	Text  string
	Usage chat.Usage
}

func Thinking(text string) Delta { return Delta{Kind: DeltaThinking, Text: text} }

func Answer(text string) Delta { return Delta{Kind: DeltaAnswer, Text: text} }

func UsageDelta(u chat.Usage) Delta { return Delta{Kind: DeltaUsage, Usage: u} }

func Done() Delta { return Delta{Kind: DeltaDone} }

func Error(message string) Delta { return Delta{Kind: DeltaError, Text: message} }
