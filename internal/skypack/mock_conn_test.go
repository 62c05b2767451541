package skypack

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/skypack/internal/timeutil"
	"github.com/stretchr/testify/require"
)

var (
	mockLocalAddr  = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
	mockDeviceAddr = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}
)

type readResult struct {
	b   []byte
	err error
}

// mockConn is an in-memory PacketConn. Writes are recorded and passed to
// onWrite; datagrams queued with deliver are returned by ReadFrom.
type mockConn struct {
	mu       sync.Mutex
	writes   [][]byte
	writeErr error
	onWrite  func(c *mockConn, req *Request, n int)

	inbox     chan readResult
	closed    chan struct{}
	closeOnce sync.Once
}

func newMockConn() *mockConn {
	return &mockConn{
		inbox:  make(chan readResult, 256),
		closed: make(chan struct{}),
	}
}

func (m *mockConn) ReadFrom(p []byte) (int, net.Addr, error) {
	select {
	case r := <-m.inbox:
		if r.err != nil {
			return 0, nil, r.err
		}
		return copy(p, r.b), mockDeviceAddr, nil
	case <-m.closed:
		return 0, nil, net.ErrClosed
	}
}

func (m *mockConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	m.mu.Lock()
	m.writes = append(m.writes, append([]byte(nil), p...))
	n := len(m.writes)
	err := m.writeErr
	hook := m.onWrite
	m.mu.Unlock()

	if err != nil {
		return 0, err
	}
	if hook != nil {
		req, derr := DecodeRequest(p)
		if derr == nil {
			hook(m, req, n)
		}
	}
	return len(p), nil
}

func (m *mockConn) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func (m *mockConn) LocalAddr() net.Addr { return mockLocalAddr }

func (m *mockConn) setWriteErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

func (m *mockConn) setOnWrite(f func(c *mockConn, req *Request, n int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onWrite = f
}

// requests decodes every datagram written so far.
func (m *mockConn) requests(t *testing.T) []*Request {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Request, 0, len(m.writes))
	for _, b := range m.writes {
		req, err := DecodeRequest(b)
		require.NoError(t, err)
		out = append(out, req)
	}
	return out
}

func (m *mockConn) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

func (m *mockConn) deliver(t *testing.T, resp *Response) {
	t.Helper()
	b, err := EncodeResponse(resp)
	require.NoError(t, err)
	m.inbox <- readResult{b: b}
}

func (m *mockConn) deliverRaw(b []byte) {
	m.inbox <- readResult{b: b}
}

func (m *mockConn) failRead(err error) {
	m.inbox <- readResult{err: err}
}

// answer replies to every write with the given status, echoing the data.
func answer(status int32) func(c *mockConn, req *Request, n int) {
	return func(c *mockConn, req *Request, n int) {
		b, _ := EncodeResponse(&Response{Kind: req.Kind, ID: req.ID, Status: status, Data: req.Data})
		c.deliverRaw(b)
	}
}

type clientOpts struct {
	attempts int
	timeout  time.Duration
	clock    timeutil.Clock
	seed     *uint64
}

func newTestClient(t *testing.T, conn *mockConn, o clientOpts) *Client {
	t.Helper()
	c, err := Dial(Config{
		TargetAddr:     mockDeviceAddr.String(),
		Attempts:       o.attempts,
		AttemptTimeout: o.timeout,
		Clock:          o.clock,
		Conn:           conn,
		IDSeed:         o.seed,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func seed(v uint64) *uint64 { return &v }
