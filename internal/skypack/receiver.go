package skypack

import (
	"errors"
	"net"
	"time"

	"github.com/banshee-data/skypack/internal/monitoring"
	"github.com/banshee-data/skypack/internal/timeutil"
)

// readErrorPause keeps a persistently failing socket from spinning the loop.
const readErrorPause = 10 * time.Millisecond

// receiver owns the read side of the socket for the life of a Client.
type receiver struct {
	conn    PacketConn
	pending *pendingTable
	stats   *stats
	clock   timeutil.Clock
}

// run reads datagrams until the socket is closed. Undecodable datagrams and
// transient read errors are logged and skipped. On exit every waiter still
// registered is dropped.
func (r *receiver) run() {
	defer r.pending.Close()

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				monitoring.Debugf("skypack: receiver stopping: %v", err)
				return
			}
			r.stats.readErrors.Add(1)
			monitoring.Logf("skypack: UDP receive error: %v", err)
			r.clock.Sleep(readErrorPause)
			continue
		}
		r.handleDatagram(buf[:n], from)
	}
}

func (r *receiver) handleDatagram(b []byte, from net.Addr) {
	resp, err := DecodeResponse(b)
	if err != nil {
		r.stats.decodeErrors.Add(1)
		monitoring.Logf("skypack: dropping %d byte datagram from %v: %v", len(b), from, err)
		return
	}

	w, ok := r.pending.Take(resp.Key())
	if !ok {
		// late, duplicate or unsolicited
		r.stats.unmatched.Add(1)
		monitoring.Debugf("skypack: no waiter for response %s from %v", resp.Key(), from)
		return
	}
	w.fulfill(resp)
}
