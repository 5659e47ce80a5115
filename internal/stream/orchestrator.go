package stream

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Outcome is the single terminal output of one stream invocation. Exactly
// one of Result and Err is set.
type Outcome struct {
	Result *SimplifiedResult
	Err    *ErrorResult

	// Records counts how many SSE records were consumed before termination.
	Records int
}

// OK reports whether the invocation reached the terminal success envelope.
func (o Outcome) OK() bool { return o.Result != nil }

// Payload returns the value to serialize downstream.
func (o Outcome) Payload() any {
	if o.Result != nil {
		return o.Result
	}
	return o.Err
}

// Orchestrator drives one upstream SSE stream to its terminal record. It
// races record consumption against an idle timer: the timer is restarted
// after every record, and its firing only signals that a heartbeat is due.
type Orchestrator struct {
	idleTimeout time.Duration
	log         zerolog.Logger
}

func NewOrchestrator(idleTimeout time.Duration, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{idleTimeout: idleTimeout, log: log}
}

// streamItem is one unit produced by the reader goroutine: a record, or the
// error that ended the read loop.
type streamItem struct {
	rec Record
	err error
}

// Run consumes body until the first terminal record and returns exactly one
// outcome on every path: terminal success, upstream error envelope, transport
// failure, cancellation, or exhaustion without completion. heartbeat, when
// non-nil, is invoked from the calling goroutine each time no record has
// arrived within the idle bound; firing never terminates the stream, and at
// most one heartbeat is emitted between consecutive records.
func (o *Orchestrator) Run(ctx context.Context, body io.Reader, heartbeat func()) Outcome {
	items := make(chan streamItem)
	go o.readRecords(ctx, body, items)

	var workflowRunID, taskID string
	records := 0

	fail := func(msg string) Outcome {
		return Outcome{Err: NewErrorResult(msg, workflowRunID, taskID), Records: records}
	}

	idle := time.NewTimer(o.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return fail("Stream processing error: " + ctx.Err().Error())

		case <-idle.C:
			// Informational only; the timer is re-armed by the next record,
			// so a silent upstream yields exactly one heartbeat per gap.
			if heartbeat != nil {
				heartbeat()
			}

		case item, ok := <-items:
			if !ok {
				return fail("Stream ended without workflow completion")
			}
			if item.err != nil {
				return fail("Stream processing error: " + item.err.Error())
			}

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(o.idleTimeout)

			rec := item.rec
			records++

			// Correlation identifiers are scraped from every record so an
			// error arriving before the terminal one still reports them.
			id, tid := rec.ScrapeIdentifiers()
			if id != "" {
				workflowRunID = id
			}
			if tid != "" {
				taskID = tid
			}

			kind, env := Classify(rec)
			switch kind {
			case KindError:
				o.log.Warn().Str("workflow_run_id", workflowRunID).Msg("upstream reported workflow error")
				return fail(ErrorMessage(env))

			case KindSuccess:
				result, err := ExtractResult(env)
				if err != nil {
					// A single malformed terminal-looking record is not
					// fatal; only stream end triggers the fallback error.
					o.log.Warn().Err(err).Msg("failed to extract workflow result")
					continue
				}
				o.log.Info().
					Str("workflow_run_id", result.WorkflowRunID).
					Str("task_id", result.TaskID).
					Str("status", result.Status).
					Msg("workflow finished")
				return Outcome{Result: result, Records: records}

			default:
				o.log.Debug().Str("event", rec.EventType).Msg("discarding intermediate event")
			}
		}
	}
}

// readRecords pumps parsed records from body into items, flushing any final
// unterminated line at EOF. It owns the Parser, so framing state never
// outlives the invocation. Sends race ctx so cancellation cannot leak the
// goroutine.
func (o *Orchestrator) readRecords(ctx context.Context, body io.Reader, items chan<- streamItem) {
	defer close(items)

	parser := NewParser()
	buf := make([]byte, 32*1024)

	send := func(item streamItem) bool {
		select {
		case items <- item:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, rec := range parser.ParseChunk(buf[:n]) {
				if !send(streamItem{rec: rec}) {
					return
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				for _, rec := range parser.Flush() {
					if !send(streamItem{rec: rec}) {
						return
					}
				}
			} else {
				send(streamItem{err: err})
			}
			return
		}
	}
}
