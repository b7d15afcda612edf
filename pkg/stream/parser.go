package stream

import (
	"strings"
)

const (
	dataPrefix  = "data: "
	doneMessage = "[DONE]"
)

// Parser splits a server-sent-events byte stream into data payloads.
// Chunks may split lines at any byte; the trailing partial line is held
// until the next Feed completes it.
type Parser struct {
	buf  strings.Builder
	done bool
}

// NewParser creates a parser with an empty buffer.
func NewParser() *Parser {
	return &Parser{}
}

// Feed appends chunk to the buffer and returns the payloads of every
// complete data line, in arrival order. Lines that are not data frames
// (comments, keep-alives, event names) are dropped. Once a [DONE] payload
// is seen the parser is finished: done is true and later calls yield nothing.
func (p *Parser) Feed(chunk []byte) (payloads []string, done bool) {
	if p.done {
		return nil, true
	}

	p.buf.Write(chunk)
	text := p.buf.String()
	lines := strings.Split(text, "\n")

	// Last element is the partial line (empty if text ended in \n).
	rest := lines[len(lines)-1]
	p.buf.Reset()
	p.buf.WriteString(rest)

	for _, line := range lines[:len(lines)-1] {
		payload, ok := dataPayload(line)
		if !ok {
			continue
		}
		if payload == doneMessage {
			p.done = true
			p.buf.Reset()
			return payloads, true
		}
		payloads = append(payloads, payload)
	}
	return payloads, false
}

// Done reports whether a [DONE] payload has been seen.
func (p *Parser) Done() bool {
	return p.done
}

// Pending returns the buffered partial line.
func (p *Parser) Pending() string {
	return p.buf.String()
}

// Reset clears the buffer and the done flag.
func (p *Parser) Reset() {
	p.buf.Reset()
	p.done = false
}

func dataPayload(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, dataPrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(trimmed, dataPrefix)), true
}
