package payload

import (
	"encoding/json"
	"errors"
	"strings"
)

const (
	fenceOpen  = "```json"
	fenceClose = "```"
)

// ErrNoPayload means the answer held no decodable JSON object.
var ErrNoPayload = errors.New("no payload found in answer")

// Extract pulls the JSON object out of a model answer. A ```json fenced
// block is preferred; without one the whole trimmed answer is decoded.
// An unterminated fence runs to the end of the text.
func Extract(answer string) (*AIPayload, error) {
	source := Source(answer)
	if source == "" {
		return nil, ErrNoPayload
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(source), &raw); err != nil || raw == nil {
		return nil, ErrNoPayload
	}

	// A type mismatch on a known field (e.g. narrative as a number) leaves
	// that field zero; the rest still decodes.
	var p AIPayload
	_ = json.Unmarshal([]byte(source), &p)
	p.Raw = raw
	return &p, nil
}

// Source returns the JSON text Extract would decode.
func Source(answer string) string {
	if start := strings.Index(answer, fenceOpen); start >= 0 {
		body := answer[start+len(fenceOpen):]
		if end := strings.Index(body, fenceClose); end >= 0 {
			body = body[:end]
		}
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(answer)
}

// Narrative returns the payload's narrative, or the answer text outside the
// fenced block when the payload has none.
func Narrative(answer string, p *AIPayload) string {
	if p != nil && p.Narrative != "" {
		return p.Narrative
	}
	start := strings.Index(answer, fenceOpen)
	if start < 0 {
		if p != nil {
			return ""
		}
		return strings.TrimSpace(answer)
	}
	before := answer[:start]
	after := ""
	body := answer[start+len(fenceOpen):]
	if end := strings.Index(body, fenceClose); end >= 0 {
		after = body[end+len(fenceClose):]
	}
	return strings.TrimSpace(strings.TrimSpace(before) + "\n" + strings.TrimSpace(after))
}
