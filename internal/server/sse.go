package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// writeDataFrame serializes v into a single SSE data: record and flushes it.
func writeDataFrame(w io.Writer, flusher http.Flusher, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("serialize result: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// writeErrorFrame terminates the stream with an explicit error event when
// the normal result frame itself could not be produced.
func writeErrorFrame(w io.Writer, flusher http.Flusher) {
	_, _ = io.WriteString(w, "event: error\ndata: Stream ended due to error\n\n")
	flusher.Flush()
}
