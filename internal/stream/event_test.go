package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySuccessUsesInnerEventField(t *testing.T) {
	// The SSE-level tag and inner event field are set independently
	// upstream; only the inner field decides success.
	kind, env := Classify(Record{
		EventType: "message",
		Data:      `{"event":"workflow_finished","task_id":"t1"}`,
	})

	assert.Equal(t, KindSuccess, kind)
	require.NotNil(t, env)
	assert.Equal(t, "t1", env.TaskID)
}

func TestClassifySSELevelTagAloneIsNotSuccess(t *testing.T) {
	kind, _ := Classify(Record{
		EventType: EventWorkflowFinished,
		Data:      `{"event":"node_finished"}`,
	})
	assert.Equal(t, KindProgress, kind)
}

func TestClassifyErrorByInnerField(t *testing.T) {
	kind, env := Classify(Record{
		EventType: "message",
		Data:      `{"event":"error","data":{"error":"boom"}}`,
	})

	assert.Equal(t, KindError, kind)
	assert.Equal(t, "boom", ErrorMessage(env))
}

func TestClassifyErrorBySSETag(t *testing.T) {
	kind, env := Classify(Record{EventType: EventError, Data: "not json at all"})

	assert.Equal(t, KindError, kind)
	assert.Nil(t, env)
	assert.Equal(t, "Unknown error from Dify API", ErrorMessage(env))
}

func TestClassifyProgressEvents(t *testing.T) {
	for _, name := range []string{EventWorkflowStarted, EventNodeStarted, EventNodeFinished, "some_future_event"} {
		kind, _ := Classify(Record{EventType: "message", Data: `{"event":"` + name + `"}`})
		assert.Equal(t, KindProgress, kind, name)
	}
}

func TestClassifyUndecodablePayload(t *testing.T) {
	kind, env := Classify(Record{EventType: "message", Data: "{broken"})
	assert.Equal(t, KindUnrecognized, kind)
	assert.Nil(t, env)
}

func TestClassifyEnvelopeWithoutEventField(t *testing.T) {
	// Decodes fine but names no event: discarded rather than guessed at.
	kind, env := Classify(Record{EventType: "message", Data: `{"task_id":"t1"}`})
	assert.Equal(t, KindUnrecognized, kind)
	require.NotNil(t, env)
}

func TestScrapeIdentifiers(t *testing.T) {
	id, tid := Record{Data: `{"workflow_run_id":"w1","task_id":"t1","event":"node_started"}`}.ScrapeIdentifiers()
	assert.Equal(t, "w1", id)
	assert.Equal(t, "t1", tid)

	id, tid = Record{Data: "garbage"}.ScrapeIdentifiers()
	assert.Empty(t, id)
	assert.Empty(t, tid)
}

func TestErrorMessageDefaults(t *testing.T) {
	assert.Equal(t, "Unknown error from Dify API", ErrorMessage(nil))
	assert.Equal(t, "Unknown error from Dify API", ErrorMessage(&Envelope{}))
	assert.Equal(t, "Unknown error from Dify API",
		ErrorMessage(&Envelope{Data: []byte(`{"status":"failed"}`)}))
}
