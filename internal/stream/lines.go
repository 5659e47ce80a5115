package stream

import (
	"bytes"
	"strings"
)

// LineBuffer reassembles arbitrary byte chunks into complete text lines.
// A trailing partial line is carried across chunk boundaries until its
// newline arrives or the stream ends.
type LineBuffer struct {
	buf []byte
}

// Feed appends a chunk and returns every line completed by it, trimmed, in
// arrival order. Empty chunks are a no-op.
func (b *LineBuffer) Feed(chunk []byte) []string {
	b.buf = append(b.buf, chunk...)

	var lines []string
	for {
		idx := bytes.IndexByte(b.buf, '\n')
		if idx == -1 {
			break
		}
		line := sanitizeLine(b.buf[:idx])
		b.buf = b.buf[idx+1:]
		lines = append(lines, line)
	}
	return lines
}

// Flush yields the retained unterminated segment at end of stream. The
// second return is false when nothing non-empty remains.
func (b *LineBuffer) Flush() (string, bool) {
	line := sanitizeLine(b.buf)
	b.buf = nil
	return line, line != ""
}

// sanitizeLine trims surrounding whitespace (including a \r from CRLF
// framing) and drops invalid UTF-8 sequences rather than failing on them.
func sanitizeLine(raw []byte) string {
	return strings.ToValidUTF8(strings.TrimSpace(string(raw)), "")
}
