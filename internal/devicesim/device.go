// Package devicesim simulates a SKYPACK device on a UDP socket. It decodes
// requests, hands them to a Handler and sends back whatever the handler
// returns, so tests and the skymate-sim binary can exercise the client
// against real datagrams.
package devicesim

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/banshee-data/skypack/internal/monitoring"
	"github.com/banshee-data/skypack/internal/skypack"
)

// Handler answers one request. attempt counts the datagrams seen for the
// request's key, starting at 1. A nil response sends nothing.
type Handler func(req *skypack.Request, attempt int) *skypack.Response

// Device is a simulated device bound to a UDP socket.
type Device struct {
	conn    *net.UDPConn
	handler Handler

	mu       sync.Mutex
	requests []skypack.Request
	attempts map[skypack.Key]int
	lastPeer net.Addr

	wg   sync.WaitGroup
	done chan struct{}
}

// Listen binds addr (use "127.0.0.1:0" in tests) and starts serving.
func Listen(addr string, h Handler) (*Device, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("devicesim: resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("devicesim: listen %s: %w", addr, err)
	}

	d := &Device{
		conn:     conn,
		handler:  h,
		attempts: make(map[skypack.Key]int),
		done:     make(chan struct{}),
	}
	go d.serve()
	return d, nil
}

// Addr returns the address clients should target.
func (d *Device) Addr() string {
	return d.conn.LocalAddr().String()
}

func (d *Device) serve() {
	defer close(d.done)
	buf := make([]byte, 65536)
	for {
		n, from, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			monitoring.Logf("devicesim: read error: %v", err)
			continue
		}

		req, err := skypack.DecodeRequest(buf[:n])
		if err != nil {
			monitoring.Logf("devicesim: dropping bad request from %v: %v", from, err)
			continue
		}

		d.mu.Lock()
		d.requests = append(d.requests, *req)
		d.attempts[req.Key()]++
		attempt := d.attempts[req.Key()]
		d.lastPeer = from
		d.mu.Unlock()

		// handlers may sleep to simulate latency
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if resp := d.handler(req, attempt); resp != nil {
				if err := d.Inject(resp, from); err != nil && !errors.Is(err, net.ErrClosed) {
					monitoring.Logf("devicesim: reply to %v: %v", from, err)
				}
			}
		}()
	}
}

// Inject sends resp to addr whether or not it answers anything, for
// simulating late, duplicate and unsolicited responses.
func (d *Device) Inject(resp *skypack.Response, addr net.Addr) error {
	b, err := skypack.EncodeResponse(resp)
	if err != nil {
		return err
	}
	return d.InjectRaw(b, addr)
}

// InjectRaw sends arbitrary bytes to addr.
func (d *Device) InjectRaw(b []byte, addr net.Addr) error {
	_, err := d.conn.WriteTo(b, addr)
	return err
}

// Requests returns a copy of every request received so far, in arrival
// order, retries included.
func (d *Device) Requests() []skypack.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]skypack.Request, len(d.requests))
	copy(out, d.requests)
	return out
}

// Attempts returns how many datagrams arrived for k.
func (d *Device) Attempts(k skypack.Key) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts[k]
}

// LastPeer returns the source address of the latest request, or nil.
func (d *Device) LastPeer() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastPeer
}

// Close stops serving and waits for in-progress handlers.
func (d *Device) Close() error {
	err := d.conn.Close()
	<-d.done
	d.wg.Wait()
	return err
}

// Reply builds the response to req with the given status and payload.
func Reply(req *skypack.Request, status int32, data any) *skypack.Response {
	return &skypack.Response{Kind: req.Kind, ID: req.ID, Status: status, Data: data}
}

// Echo answers every request with status 0 and the request's own payload.
func Echo() Handler {
	return func(req *skypack.Request, attempt int) *skypack.Response {
		return Reply(req, 0, req.Data)
	}
}

// Silent never answers.
func Silent() Handler {
	return func(req *skypack.Request, attempt int) *skypack.Response {
		return nil
	}
}

// DropFirst ignores the first n attempts of every request and passes later
// attempts to h.
func DropFirst(n int, h Handler) Handler {
	return func(req *skypack.Request, attempt int) *skypack.Response {
		if attempt <= n {
			return nil
		}
		return h(req, attempt)
	}
}
