package dify

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// timeoutBody wraps a streaming response body with a per-read watchdog: if no
// bytes arrive within the timeout, the in-flight request is canceled and the
// resulting read failure is reported as ErrReadTimeout so callers can tell it
// apart from an upstream disconnect.
type timeoutBody struct {
	body     io.ReadCloser
	cancel   context.CancelFunc
	timeout  time.Duration
	watchdog *time.Timer
	timedOut atomic.Bool
}

func newTimeoutBody(body io.ReadCloser, timeout time.Duration, cancel context.CancelFunc) *timeoutBody {
	t := &timeoutBody{body: body, cancel: cancel, timeout: timeout}
	t.watchdog = time.AfterFunc(timeout, func() {
		t.timedOut.Store(true)
		cancel()
	})
	return t
}

func (t *timeoutBody) Read(p []byte) (int, error) {
	n, err := t.body.Read(p)
	if err != nil {
		if t.timedOut.Load() {
			return n, fmt.Errorf("%w after %s", ErrReadTimeout, t.timeout)
		}
		return n, err
	}
	t.watchdog.Reset(t.timeout)
	return n, nil
}

// Close releases the watchdog, the request context and the underlying body.
// Safe on every exit path, including after a timeout already fired.
func (t *timeoutBody) Close() error {
	t.watchdog.Stop()
	t.cancel()
	return t.body.Close()
}
