package stream

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Record is a single SSE record as framed on the wire: the SSE-level event
// type and the raw, not yet decoded data payload.
type Record struct {
	EventType string
	Data      string
}

// Envelope is the JSON object carried inside a record's data field. All
// fields are optional on the wire; absent ones decode to their zero value.
type Envelope struct {
	Event         string          `json:"event"`
	TaskID        string          `json:"task_id"`
	WorkflowRunID string          `json:"workflow_run_id"`
	Data          json.RawMessage `json:"data"`
}

// Event names emitted by the Dify workflow API.
const (
	EventWorkflowStarted  = "workflow_started"
	EventNodeStarted      = "node_started"
	EventNodeFinished     = "node_finished"
	EventWorkflowFinished = "workflow_finished"
	EventError            = "error"
)

// Kind classifies a record exactly once per record.
type Kind int

const (
	// KindUnrecognized covers undecodable payloads and envelopes with no
	// event field; both are discarded.
	KindUnrecognized Kind = iota
	// KindProgress covers intermediate events carrying no output.
	KindProgress
	// KindSuccess is the terminal workflow_finished envelope.
	KindSuccess
	// KindError is the terminal upstream error.
	KindError
)

// Classify decides whether a record is progress, terminal success, an error,
// or unrecognized. Success is decided by the envelope's inner event field
// only. Error is decided by either the inner field or the SSE-level tag,
// since the upstream sets the two independently and they may disagree.
// The envelope is nil when the payload does not decode.
func Classify(rec Record) (Kind, *Envelope) {
	var env Envelope
	decoded := json.Unmarshal([]byte(rec.Data), &env) == nil

	if rec.EventType == EventError || (decoded && env.Event == EventError) {
		if decoded {
			return KindError, &env
		}
		return KindError, nil
	}
	if !decoded {
		return KindUnrecognized, nil
	}

	switch env.Event {
	case EventWorkflowFinished:
		return KindSuccess, &env
	case "":
		return KindUnrecognized, &env
	default:
		return KindProgress, &env
	}
}

// ScrapeIdentifiers best-effort extracts the correlation identifiers from a
// record's payload without requiring a full envelope decode. Missing fields
// come back empty.
func (r Record) ScrapeIdentifiers() (workflowRunID, taskID string) {
	results := gjson.GetMany(r.Data, "workflow_run_id", "task_id")
	return results[0].String(), results[1].String()
}
