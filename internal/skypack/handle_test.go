package skypack

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/skypack/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle_WaitAndIsFinished(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	conn := newMockConn()
	c := newTestClient(t, conn, clientOpts{attempts: 2, timeout: time.Second, clock: clock, seed: seed(3)})

	h := c.Dispatch(context.Background(), KindTelemetry, nil)
	clock.AwaitTimers(1)
	assert.False(t, h.IsFinished())

	conn.deliver(t, &Response{Kind: KindTelemetry, ID: 3, Data: "snapshot"})
	resp, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "snapshot", resp.Data)
	assert.True(t, h.IsFinished())

	select {
	case <-h.Done():
	default:
		t.Fatal("Done should be closed after Wait returns")
	}

	// waiting again returns the same outcome
	again, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, resp, again)
}

func TestHandle_WaitContextExpires(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	conn := newMockConn()
	c := newTestClient(t, conn, clientOpts{attempts: 1, timeout: time.Second, clock: clock, seed: seed(8)})

	h := c.Dispatch(context.Background(), KindTelemetry, nil)
	clock.AwaitTimers(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := h.Wait(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, h.IsFinished(), "an abandoned wait leaves the request running")

	conn.deliver(t, &Response{Kind: KindTelemetry, ID: 8})
	resp, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.OK())
}

func TestHandle_Cancel(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	conn := newMockConn()
	c := newTestClient(t, conn, clientOpts{attempts: 3, timeout: time.Second, clock: clock})

	h := c.Dispatch(context.Background(), KindTelemetry, nil)
	clock.AwaitTimers(1)
	h.Cancel()

	_, err := h.Wait(context.Background())
	assert.True(t, errors.Is(err, ErrInternal), "got %v", err)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Equal(t, 1, conn.writeCount())

	h.Cancel() // no effect once finished
	assert.True(t, h.IsFinished())
}

func TestHandle_UnreferencedRunsToCompletion(t *testing.T) {
	conn := newMockConn()
	conn.setOnWrite(answer(0))
	c := newTestClient(t, conn, clientOpts{})

	c.Dispatch(context.Background(), KindSetTargetState, "zone")
	assert.Eventually(t, func() bool { return c.Stats().Completed == 1 }, time.Second, 5*time.Millisecond)
}

// TestHandle_PanicBecomesInternalError checks a panicking task resolves the
// handle instead of crashing the process.
func TestHandle_PanicBecomesInternalError(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	h := &Handle{done: make(chan struct{}), cancel: cancel}
	go h.run(func() (*Response, error) {
		panic("boom")
	})

	resp, err := h.Wait(context.Background())
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInternal))
	assert.Contains(t, err.Error(), "boom")
}
