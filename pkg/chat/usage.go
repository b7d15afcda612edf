package chat

// Usage is a token usage report for a single completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// UsageTotals accumulates usage across turns. Totals never decrease.
type UsageTotals struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Add commits one completed stream's usage. Negative counts are ignored.
func (t *UsageTotals) Add(u Usage) {
	if u.PromptTokens > 0 {
		t.PromptTokens += u.PromptTokens
	}
	if u.CompletionTokens > 0 {
		t.CompletionTokens += u.CompletionTokens
	}
}

// Total returns prompt plus completion tokens.
func (t UsageTotals) Total() int {
	return t.PromptTokens + t.CompletionTokens
}
