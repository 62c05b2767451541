package skypack

import (
	"context"
	"fmt"
)

// Handle tracks a request running in the background.
type Handle struct {
	done   chan struct{}
	cancel context.CancelFunc
	resp   *Response
	err    error
}

func (h *Handle) run(task func() (*Response, error)) {
	defer h.cancel()
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			h.resp, h.err = nil, fmt.Errorf("%w: request task panicked: %v", ErrInternal, r)
		}
	}()
	h.resp, h.err = task()
}

// Done is closed when the request has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// IsFinished reports, without blocking, whether the request has finished.
func (h *Handle) IsFinished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the request finishes and returns its outcome. If ctx
// ends first Wait returns ctx.Err() and the request keeps running.
func (h *Handle) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-h.done:
		return h.resp, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel asks the request to stop. It returns immediately; the request
// notices before its next send or while waiting, and Wait then reports an
// error matching both ErrInternal and context.Canceled. Cancelling a finished
// request has no effect.
func (h *Handle) Cancel() {
	h.cancel()
}
