package chat

const (
	ChatRoleUser   = "user"      // Player
	ChatRoleAgent  = "assistant" // Mission controller
	ChatRoleSystem = "system"    // Live mission state + rules
)

// ChatMessage represents a single chat message in the conversation.
// The shape matches the OpenAI-compatible chat completions API.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// History is an ordered conversation. Insertion order is the prompt order
// sent to the model. At most one system message exists and it is always
// at index 0.
type History struct {
	messages []ChatMessage
}

// NewHistory creates a history seeded with the given messages. A system
// message anywhere but index 0 is dropped.
func NewHistory(messages ...ChatMessage) *History {
	h := &History{}
	for i, msg := range messages {
		if msg.Role == ChatRoleSystem {
			if i == 0 {
				h.SetSystem(msg.Content)
			}
			continue
		}
		h.messages = append(h.messages, msg)
	}
	return h
}

// SetSystem replaces the system message, inserting it at index 0 if absent.
func (h *History) SetSystem(content string) {
	msg := ChatMessage{Role: ChatRoleSystem, Content: content}
	if len(h.messages) > 0 && h.messages[0].Role == ChatRoleSystem {
		h.messages[0] = msg
		return
	}
	h.messages = append([]ChatMessage{msg}, h.messages...)
}

// System returns the current system prompt, if any.
func (h *History) System() (string, bool) {
	if len(h.messages) > 0 && h.messages[0].Role == ChatRoleSystem {
		return h.messages[0].Content, true
	}
	return "", false
}

// AppendUser adds a user message to the end of the history.
func (h *History) AppendUser(content string) {
	h.messages = append(h.messages, ChatMessage{Role: ChatRoleUser, Content: content})
}

// AppendAssistant adds an assistant message to the end of the history.
func (h *History) AppendAssistant(content string) {
	h.messages = append(h.messages, ChatMessage{Role: ChatRoleAgent, Content: content})
}

// Messages returns a copy of the history in prompt order.
func (h *History) Messages() []ChatMessage {
	out := make([]ChatMessage, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of messages, including the system message.
func (h *History) Len() int {
	return len(h.messages)
}

// Clear removes every message.
func (h *History) Clear() {
	h.messages = nil
}
