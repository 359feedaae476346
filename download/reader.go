package download

import (
	"context"
	"io"
	"time"
)

// A context-aware io.Reader wrapper.
type readerContext struct {
	ctx context.Context
	r   io.Reader
}

func (r *readerContext) Read(p []byte) (n int, err error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// An idleTimer fires cancel if it is not reset within the timeout, bounding how long a stalled connection can hold an
// attempt open.
type idleTimer struct {
	timeout time.Duration
	timer   *time.Timer
}

func newIdleTimer(timeout time.Duration, cancel context.CancelFunc) *idleTimer {
	return &idleTimer{
		timeout: timeout,
		timer:   time.AfterFunc(timeout, cancel),
	}
}

func (t *idleTimer) Reset() {
	t.timer.Reset(t.timeout)
}

func (t *idleTimer) Stop() {
	t.timer.Stop()
}
