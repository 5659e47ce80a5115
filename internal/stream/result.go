package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// SimplifiedResult is the single success output of one stream invocation.
type SimplifiedResult struct {
	WorkflowRunID string `json:"workflow_run_id"`
	TaskID        string `json:"task_id"`
	Status        string `json:"status"`
	Result        any    `json:"result"`
	EventType     string `json:"event_type"`
}

// ErrorResult is the single failure output of one stream invocation.
type ErrorResult struct {
	WorkflowRunID string `json:"workflow_run_id"`
	TaskID        string `json:"task_id"`
	Status        string `json:"status"`
	Error         string `json:"error"`
	EventType     string `json:"event_type"`
}

// NewErrorResult builds an ErrorResult, substituting "unknown" for
// correlation identifiers that were never observed on the stream.
func NewErrorResult(msg, workflowRunID, taskID string) *ErrorResult {
	if workflowRunID == "" {
		workflowRunID = "unknown"
	}
	if taskID == "" {
		taskID = "unknown"
	}
	return &ErrorResult{
		WorkflowRunID: workflowRunID,
		TaskID:        taskID,
		Status:        "error",
		Error:         msg,
		EventType:     EventError,
	}
}

const defaultUpstreamError = "Unknown error from Dify API"

// ErrorMessage pulls the upstream-provided error text out of an error
// envelope, falling back to a generic message when the envelope is missing
// or carries none.
func ErrorMessage(env *Envelope) string {
	if env == nil || len(env.Data) == 0 {
		return defaultUpstreamError
	}
	if msg := gjson.GetBytes(env.Data, "error").String(); msg != "" {
		return msg
	}
	return defaultUpstreamError
}

// ExtractResult turns a workflow_finished envelope into the simplified
// result. The envelope's inner data must be a JSON object; anything else is
// an extraction error and the caller keeps consuming the stream.
func ExtractResult(env *Envelope) (*SimplifiedResult, error) {
	var inner struct {
		Status  string                     `json:"status"`
		Outputs map[string]json.RawMessage `json:"outputs"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &inner); err != nil {
			return nil, fmt.Errorf("decode workflow_finished data: %w", err)
		}
	}

	status := inner.Status
	if status == "" {
		status = "unknown"
	}

	return &SimplifiedResult{
		WorkflowRunID: env.WorkflowRunID,
		TaskID:        env.TaskID,
		Status:        status,
		Result:        parseOutputsResult(inner.Outputs["result"]),
		EventType:     EventWorkflowFinished,
	}, nil
}

// parseOutputsResult applies the double-decode rule: a string result is
// expected to itself be JSON, and when it is not, the raw text is kept under
// a "text" key rather than discarded. Non-string results pass through
// verbatim. Absent or blank results become nil.
func parseOutputsResult(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return nil
		}
		var nested any
		if err := json.Unmarshal([]byte(s), &nested); err == nil {
			return nested
		}
		return map[string]any{"text": s}
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
