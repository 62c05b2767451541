package skypack

import (
	"net/http"
	"sync/atomic"

	"github.com/banshee-data/skypack/internal/httputil"
	"github.com/banshee-data/skypack/internal/monitoring"
	"tailscale.com/tsweb"
)

type stats struct {
	sent         atomic.Uint64
	retries      atomic.Uint64
	completed    atomic.Uint64
	timeouts     atomic.Uint64
	failed       atomic.Uint64
	unmatched    atomic.Uint64
	decodeErrors atomic.Uint64
	readErrors   atomic.Uint64
}

// Stats is a point-in-time copy of the client counters.
type Stats struct {
	Sent         uint64 `json:"sent"`          // datagrams written, retries included
	Retries      uint64 `json:"retries"`       // attempts after the first
	Completed    uint64 `json:"completed"`     // requests answered by the device
	Timeouts     uint64 `json:"timeouts"`      // requests that ran out of attempts
	Failed       uint64 `json:"failed"`        // requests failed for any other reason
	Unmatched    uint64 `json:"unmatched"`     // responses with no waiter
	DecodeErrors uint64 `json:"decode_errors"` // datagrams that were not responses
	ReadErrors   uint64 `json:"read_errors"`
	Pending      int    `json:"pending"`
}

// Stats returns the current counters.
func (c *Client) Stats() Stats {
	return Stats{
		Sent:         c.stats.sent.Load(),
		Retries:      c.stats.retries.Load(),
		Completed:    c.stats.completed.Load(),
		Timeouts:     c.stats.timeouts.Load(),
		Failed:       c.stats.failed.Load(),
		Unmatched:    c.stats.unmatched.Load(),
		DecodeErrors: c.stats.decodeErrors.Load(),
		ReadErrors:   c.stats.readErrors.Load(),
		Pending:      c.pending.Len(),
	}
}

// LogStats writes the counters to the monitoring logger.
func (c *Client) LogStats() {
	s := c.Stats()
	monitoring.Logf("skypack: sent=%d retries=%d completed=%d timeouts=%d failed=%d unmatched=%d decode_errors=%d read_errors=%d pending=%d",
		s.Sent, s.Retries, s.Completed, s.Timeouts, s.Failed, s.Unmatched, s.DecodeErrors, s.ReadErrors, s.Pending)
}

func (c *Client) serveStats(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c.Stats())
}

// AttachAdminRoutes mounts client debugging endpoints under /debug/. These
// are reachable only over localhost/Tailscale.
func (c *Client) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.KV("skypack target", c.target.String())
	debug.KVFunc("skypack pending requests", func() any { return c.pending.Len() })
	debug.KVFunc("skypack timeouts", func() any { return c.stats.timeouts.Load() })
	debug.HandleFunc("skypack", "SKYPACK client counters (JSON)", c.serveStats)
}
