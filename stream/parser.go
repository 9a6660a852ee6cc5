package stream

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Frame is one parsed server-push frame. The wire format is
// text-event-stream-like: `event:`, `data:`, and `id:` prefixed lines,
// with a blank line terminating the frame.
type Frame struct {
	// Event is the frame's event name. Defaults to "message" when the
	// server sends data without an event line.
	Event string

	// Data is the payload when it parsed as JSON, nil otherwise.
	Data json.RawMessage

	// Raw is the payload text as received. Always set when the frame
	// carried data lines, even if Data is also set.
	Raw string

	// ID is the resume cursor carried by the frame, if any.
	ID string
}

// Parser incrementally assembles frames from arbitrarily-chunked input.
// Feed consumes only newly appended bytes; an incomplete trailing frame is
// held until later chunks complete it. A fresh Parser is used per
// connection attempt.
type Parser struct {
	tail      []byte
	event     string
	dataLines []string
	id        string
	seen      bool
}

// NewParser creates an empty parser.
func NewParser() *Parser {
	return &Parser{}
}

// Feed appends a chunk and returns every frame completed by it, in wire
// order.
func (p *Parser) Feed(chunk []byte) []Frame {
	p.tail = append(p.tail, chunk...)

	var frames []Frame
	for {
		i := bytes.IndexByte(p.tail, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(string(p.tail[:i]), "\r")
		p.tail = p.tail[i+1:]

		if line == "" {
			if f, ok := p.flush(); ok {
				frames = append(frames, f)
			}
			continue
		}
		p.consume(line)
	}
	return frames
}

// consume applies one non-blank line to the frame under construction.
// Unrecognized lines (including comment lines starting with ':') are
// ignored.
func (p *Parser) consume(line string) {
	switch {
	case strings.HasPrefix(line, "event:"):
		p.event = trimFieldValue(line[len("event:"):])
		p.seen = true
	case strings.HasPrefix(line, "data:"):
		p.dataLines = append(p.dataLines, trimFieldValue(line[len("data:"):]))
		p.seen = true
	case strings.HasPrefix(line, "id:"):
		p.id = trimFieldValue(line[len("id:"):])
		p.seen = true
	}
}

// flush completes the frame under construction. Blank lines between
// frames produce nothing.
func (p *Parser) flush() (Frame, bool) {
	if !p.seen {
		return Frame{}, false
	}

	f := Frame{
		Event: p.event,
		ID:    p.id,
	}
	if f.Event == "" {
		f.Event = "message"
	}
	if len(p.dataLines) > 0 {
		f.Raw = strings.Join(p.dataLines, "\n")
		// A payload that fails to parse as JSON is kept as raw text
		// rather than dropping the frame.
		if json.Valid([]byte(f.Raw)) {
			f.Data = json.RawMessage(f.Raw)
		}
	}

	p.event = ""
	p.dataLines = nil
	p.id = ""
	p.seen = false
	return f, true
}

// trimFieldValue strips the single optional space after the field colon.
func trimFieldValue(v string) string {
	return strings.TrimPrefix(v, " ")
}
