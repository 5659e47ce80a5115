package stream

import "strings"

// DefaultEventType is the SSE event type assumed when the stream has not yet
// sent an event: line.
const DefaultEventType = "message"

// Parser reconstructs SSE records from raw stream chunks. A Parser is scoped
// to a single stream invocation: the pending event type is carried between
// data: lines of one stream and must never survive into another request.
type Parser struct {
	lines        LineBuffer
	pendingEvent string
}

func NewParser() *Parser {
	return &Parser{pendingEvent: DefaultEventType}
}

// ParseChunk processes raw bytes from the stream and returns the records
// completed by them. Partial lines spanning chunks are handled by the
// underlying LineBuffer.
func (p *Parser) ParseChunk(chunk []byte) []Record {
	var records []Record
	for _, line := range p.lines.Feed(chunk) {
		if rec, ok := p.parseLine(line); ok {
			records = append(records, rec)
		}
	}
	return records
}

// Flush processes the final unterminated line, if any, at end of stream.
func (p *Parser) Flush() []Record {
	line, ok := p.lines.Flush()
	if !ok {
		return nil
	}
	if rec, ok := p.parseLine(line); ok {
		return []Record{rec}
	}
	return nil
}

func (p *Parser) parseLine(line string) (Record, bool) {
	switch {
	case line == "" || strings.HasPrefix(line, ":"):
		// Blank lines and comments carry nothing; the pending event type
		// is left untouched.
		return Record{}, false

	case strings.HasPrefix(line, "event:"):
		p.pendingEvent = strings.TrimSpace(line[len("event:"):])
		return Record{}, false

	case strings.HasPrefix(line, "data:"):
		payload := strings.TrimSpace(line[len("data:"):])
		if payload == "" {
			// Protocol-level keep-alive ping.
			return Record{}, false
		}
		// The event type is not reset here: one event: line may precede
		// several data: lines upstream.
		return Record{EventType: p.pendingEvent, Data: payload}, true
	}

	// Unknown SSE fields (id:, retry:, ...) are ignored.
	return Record{}, false
}
