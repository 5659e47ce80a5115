package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTranscript = "event: workflow_started\n" +
	"data: {\"event\":\"workflow_started\",\"task_id\":\"123\",\"workflow_run_id\":\"456\",\"data\":{}}\n" +
	"\n" +
	"event: node_started\n" +
	"data: {\"event\":\"node_started\",\"task_id\":\"123\",\"workflow_run_id\":\"456\",\"data\":{}}\n" +
	"\n" +
	"event: node_finished\n" +
	"data: {\"event\":\"node_finished\",\"task_id\":\"123\",\"workflow_run_id\":\"456\",\"data\":{}}\n" +
	"\n" +
	"event: workflow_finished\n" +
	"data: {\"event\":\"workflow_finished\",\"task_id\":\"123\",\"workflow_run_id\":\"456\",\"data\":{\"status\":\"succeeded\",\"outputs\":{\"result\":\"{\\\"a\\\":1}\"}}}\n" +
	"\n"

// scriptedReader yields one scripted chunk per Read call, then err (or EOF).
type scriptedReader struct {
	chunks [][]byte
	err    error
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func runOrchestrator(t *testing.T, body io.Reader) Outcome {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	return NewOrchestrator(time.Second, zerolog.Nop()).Run(ctx, body, nil)
}

func TestOrchestratorSuccess(t *testing.T) {
	outcome := runOrchestrator(t, strings.NewReader(sampleTranscript))

	require.True(t, outcome.OK())
	assert.Nil(t, outcome.Err)
	assert.Equal(t, "456", outcome.Result.WorkflowRunID)
	assert.Equal(t, "123", outcome.Result.TaskID)
	assert.Equal(t, "succeeded", outcome.Result.Status)
	assert.Equal(t, map[string]any{"a": float64(1)}, outcome.Result.Result)
	assert.Equal(t, 4, outcome.Records)
}

func TestOrchestratorStopsAtFirstTerminalRecord(t *testing.T) {
	transcript := sampleTranscript +
		"event: node_started\ndata: {\"event\":\"node_started\",\"task_id\":\"999\"}\n\n"

	outcome := runOrchestrator(t, strings.NewReader(transcript))

	require.True(t, outcome.OK())
	// Nothing after the terminal record is consumed.
	assert.Equal(t, 4, outcome.Records)
	assert.Equal(t, "123", outcome.Result.TaskID)
}

func TestOrchestratorExhaustionWithoutTerminal(t *testing.T) {
	transcript := "event: workflow_started\n" +
		"data: {\"event\":\"workflow_started\",\"task_id\":\"t9\",\"workflow_run_id\":\"w9\"}\n\n"

	outcome := runOrchestrator(t, strings.NewReader(transcript))

	require.False(t, outcome.OK())
	assert.Equal(t, "Stream ended without workflow completion", outcome.Err.Error)
	// Correlation identifiers scraped from the progress record survive.
	assert.Equal(t, "w9", outcome.Err.WorkflowRunID)
	assert.Equal(t, "t9", outcome.Err.TaskID)
}

func TestOrchestratorEmptyStream(t *testing.T) {
	outcome := runOrchestrator(t, strings.NewReader(""))

	require.False(t, outcome.OK())
	assert.Equal(t, "Stream ended without workflow completion", outcome.Err.Error)
	assert.Equal(t, "unknown", outcome.Err.WorkflowRunID)
	assert.Equal(t, "unknown", outcome.Err.TaskID)
}

func TestOrchestratorErrorEnvelopeStopsStream(t *testing.T) {
	transcript := "event: workflow_started\n" +
		"data: {\"event\":\"workflow_started\",\"task_id\":\"t1\",\"workflow_run_id\":\"w1\"}\n\n" +
		"event: message\n" +
		"data: {\"event\":\"error\",\"data\":{\"error\":\"quota exceeded\"}}\n\n" +
		sampleTranscript // a later success must not be reached

	outcome := runOrchestrator(t, strings.NewReader(transcript))

	require.False(t, outcome.OK())
	assert.Equal(t, "quota exceeded", outcome.Err.Error)
	assert.Equal(t, "w1", outcome.Err.WorkflowRunID)
	assert.Equal(t, "t1", outcome.Err.TaskID)
	assert.Equal(t, 2, outcome.Records)
}

func TestOrchestratorSSETagErrorWithOpaquePayload(t *testing.T) {
	outcome := runOrchestrator(t, strings.NewReader("event: error\ndata: total garbage\n\n"))

	require.False(t, outcome.OK())
	assert.Equal(t, "Unknown error from Dify API", outcome.Err.Error)
}

func TestOrchestratorTransportFailure(t *testing.T) {
	body := &scriptedReader{
		chunks: [][]byte{[]byte("event: workflow_started\ndata: {\"event\":\"workflow_started\",\"workflow_run_id\":\"w2\"}\n\n")},
		err:    errors.New("connection reset by peer"),
	}

	outcome := runOrchestrator(t, body)

	require.False(t, outcome.OK())
	assert.Equal(t, "Stream processing error: connection reset by peer", outcome.Err.Error)
	assert.Equal(t, "w2", outcome.Err.WorkflowRunID)
}

func TestOrchestratorMalformedTerminalRecordIsSkipped(t *testing.T) {
	// The first workflow_finished envelope has a non-object inner data and
	// must not terminate the stream; the second, valid one does.
	transcript := "event: workflow_finished\n" +
		"data: {\"event\":\"workflow_finished\",\"data\":\"not an object\"}\n\n" +
		sampleTranscript

	outcome := runOrchestrator(t, strings.NewReader(transcript))

	require.True(t, outcome.OK())
	assert.Equal(t, "succeeded", outcome.Result.Status)
	assert.Equal(t, 5, outcome.Records)
}

func TestOrchestratorRechunkingInvariance(t *testing.T) {
	whole := runOrchestrator(t, strings.NewReader(sampleTranscript))

	var oneByte [][]byte
	for i := 0; i < len(sampleTranscript); i++ {
		oneByte = append(oneByte, []byte{sampleTranscript[i]})
	}
	byBytes := runOrchestrator(t, &scriptedReader{chunks: oneByte})

	mid := runOrchestrator(t, &scriptedReader{chunks: [][]byte{
		[]byte(sampleTranscript[:97]),
		[]byte(sampleTranscript[97:]),
	}})

	wholeJSON, err := json.Marshal(whole.Payload())
	require.NoError(t, err)
	for _, other := range []Outcome{byBytes, mid} {
		otherJSON, err := json.Marshal(other.Payload())
		require.NoError(t, err)
		assert.JSONEq(t, string(wholeJSON), string(otherJSON))
	}
}

func TestOrchestratorUnterminatedFinalLine(t *testing.T) {
	// Terminal record arrives with no trailing newline before EOF.
	transcript := "event: workflow_finished\n" +
		"data: {\"event\":\"workflow_finished\",\"task_id\":\"9\",\"workflow_run_id\":\"8\",\"data\":{\"status\":\"succeeded\"}}"

	outcome := runOrchestrator(t, strings.NewReader(transcript))

	require.True(t, outcome.OK())
	assert.Equal(t, "9", outcome.Result.TaskID)
}

func TestOrchestratorHeartbeatFiresOncePerGap(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pr, pw := io.Pipe()
	var beats atomic.Int32

	done := make(chan Outcome, 1)
	go func() {
		orch := NewOrchestrator(20*time.Millisecond, zerolog.Nop())
		done <- orch.Run(ctx, pr, func() { beats.Add(1) })
	}()

	// Stay silent past several idle periods: the timer is not re-armed
	// after firing, so exactly one heartbeat precedes the next record.
	time.Sleep(80 * time.Millisecond)
	_, err := pw.Write([]byte(sampleTranscript))
	require.NoError(t, err)
	pw.Close()

	select {
	case outcome := <-done:
		require.True(t, outcome.OK())
		assert.Equal(t, int32(1), beats.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not terminate")
	}
}

func TestOrchestratorHeartbeatCancelledByRecord(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var beats atomic.Int32
	orch := NewOrchestrator(time.Hour, zerolog.Nop())
	outcome := orch.Run(ctx, strings.NewReader(sampleTranscript), func() { beats.Add(1) })

	require.True(t, outcome.OK())
	assert.Equal(t, int32(0), beats.Load())
}

func TestOrchestratorCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	pr, pw := io.Pipe()
	defer pw.Close()

	done := make(chan Outcome, 1)
	go func() {
		done <- NewOrchestrator(time.Hour, zerolog.Nop()).Run(ctx, pr, nil)
	}()

	cancel()

	select {
	case outcome := <-done:
		require.False(t, outcome.OK())
		assert.Contains(t, outcome.Err.Error, "context canceled")
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not observe cancellation")
	}
}
