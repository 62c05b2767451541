package skypack

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/skypack/internal/monitoring"
	"github.com/banshee-data/skypack/internal/timeutil"
)

// Protocol defaults.
const (
	DefaultAttempts       = 3
	DefaultAttemptTimeout = time.Second
	DefaultBindAddr       = "0.0.0.0:0"
)

// Config contains the options for Dial.
type Config struct {
	// TargetAddr is the device's UDP address, host:port. Required.
	TargetAddr string
	// BindAddr is the local address. Defaults to an ephemeral port.
	BindAddr string
	// Attempts bounds the sends per request. Defaults to 3.
	Attempts int
	// AttemptTimeout is how long each attempt waits. Defaults to 1s.
	AttemptTimeout time.Duration
	// Clock drives attempt deadlines. Defaults to the real clock.
	Clock timeutil.Clock
	// Conn replaces the socket Dial would bind. Dial takes ownership.
	Conn PacketConn
	// IDSeed fixes the first correlation id. Random when nil.
	IDSeed *uint64
}

// Client multiplexes requests to one device over one socket. It is safe for
// concurrent use.
type Client struct {
	conn           PacketConn
	target         net.Addr
	attempts       int
	attemptTimeout time.Duration
	clock          timeutil.Clock

	pending *pendingTable
	nextID  atomic.Uint64
	stats   stats

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	recvDone  chan struct{}
}

// Dial binds the socket and starts the background receiver. The receiver
// runs until Close.
func Dial(cfg Config) (*Client, error) {
	if cfg.TargetAddr == "" {
		return nil, fmt.Errorf("skypack: target address is required")
	}
	target, err := net.ResolveUDPAddr("udp", cfg.TargetAddr)
	if err != nil {
		return nil, fmt.Errorf("skypack: resolve target %q: %w", cfg.TargetAddr, err)
	}

	conn := cfg.Conn
	if conn == nil {
		bind := cfg.BindAddr
		if bind == "" {
			bind = DefaultBindAddr
		}
		pc, err := net.ListenPacket("udp", bind)
		if err != nil {
			return nil, fmt.Errorf("%w: bind %s: %w", ErrIO, bind, err)
		}
		conn = pc
	}

	c := &Client{
		conn:           conn,
		target:         target,
		attempts:       cfg.Attempts,
		attemptTimeout: cfg.AttemptTimeout,
		clock:          cfg.Clock,
		pending:        newPendingTable(),
		recvDone:       make(chan struct{}),
	}
	if c.attempts <= 0 {
		c.attempts = DefaultAttempts
	}
	if c.attemptTimeout <= 0 {
		c.attemptTimeout = DefaultAttemptTimeout
	}
	if c.clock == nil {
		c.clock = timeutil.RealClock{}
	}
	if cfg.IDSeed != nil {
		c.nextID.Store(*cfg.IDSeed)
	} else {
		c.nextID.Store(rand.Uint64())
	}

	r := &receiver{conn: conn, pending: c.pending, stats: &c.stats, clock: c.clock}
	go func() {
		defer close(c.recvDone)
		r.run()
	}()

	monitoring.Logf("skypack: client %v -> %v (attempts=%d, attempt timeout=%v)",
		conn.LocalAddr(), target, c.attempts, c.attemptTimeout)
	return c, nil
}

// LocalAddr returns the bound local address.
func (c *Client) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// Target returns the device address.
func (c *Client) Target() net.Addr { return c.target }

// Close closes the socket and waits for the receiver to exit. Requests still
// waiting fail with ErrInternal; later requests fail with ErrClosed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.conn.Close()
		<-c.recvDone
	})
	return c.closeErr
}

// Perform sends one request and waits for its response, resending up to the
// attempt bound. Send failures are returned at once and never retried.
// Cancelling ctx stops the exchange before the next send or while waiting.
func (c *Client) Perform(ctx context.Context, kind uint32, payload any) (*Response, error) {
	resp, err := c.perform(ctx, kind, payload)
	if err != nil {
		c.stats.failed.Add(1)
		return nil, err
	}
	c.stats.completed.Add(1)
	return resp, nil
}

func (c *Client) perform(ctx context.Context, kind uint32, payload any) (*Response, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	id := c.nextID.Add(1) - 1
	req := &Request{Kind: kind, ID: id, Data: payload}
	key := req.Key()

	buf, err := EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	// Register before the first send so a fast response cannot beat us.
	w := newWaiter()
	if c.pending.Insert(key, w) {
		monitoring.Logf("skypack: correlation key %s reused, previous request dropped", key)
	}
	defer c.pending.Remove(key, w)

	start := c.clock.Now()
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: request %s canceled: %w", ErrInternal, key, err)
		}
		if attempt > 1 {
			c.stats.retries.Add(1)
		}

		if _, err := c.conn.WriteTo(buf, c.target); err != nil {
			return nil, fmt.Errorf("%w: send request %s: %w", ErrIO, key, err)
		}
		c.stats.sent.Add(1)

		timer := c.clock.NewTimer(c.attemptTimeout)
		select {
		case <-w.done:
			timer.Stop()
			resp := w.response()
			if resp == nil {
				return nil, fmt.Errorf("%w: request %s", ErrInternal, key)
			}
			resp.Attempts = attempt
			resp.RTT = c.clock.Since(start)
			return resp, nil
		case <-timer.C():
			monitoring.Debugf("skypack: request %s attempt %d/%d timed out", key, attempt, c.attempts)
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: request %s canceled: %w", ErrInternal, key, ctx.Err())
		}
	}

	c.stats.timeouts.Add(1)
	return nil, fmt.Errorf("%w: request %s after %d attempts", ErrTimeout, key, c.attempts)
}

// Dispatch starts Perform on its own goroutine and returns a Handle for it.
// The request runs to completion whether or not anyone waits on the handle;
// Handle.Cancel stops it early.
func (c *Client) Dispatch(ctx context.Context, kind uint32, payload any) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{done: make(chan struct{}), cancel: cancel}
	go h.run(func() (*Response, error) {
		return c.Perform(ctx, kind, payload)
	})
	return h
}

// PerformSync runs a request through Dispatch and blocks the calling
// goroutine until it finishes. It is safe to call from any goroutine: the
// caller only parks, so it cannot starve the receiver.
func (c *Client) PerformSync(kind uint32, payload any) (*Response, error) {
	return c.Dispatch(context.Background(), kind, payload).Wait(context.Background())
}
