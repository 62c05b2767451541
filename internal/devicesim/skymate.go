package devicesim

import (
	"sync"

	"github.com/banshee-data/skypack/internal/geo"
	"github.com/banshee-data/skypack/internal/monitoring"
	"github.com/banshee-data/skypack/internal/skypack"
	"github.com/banshee-data/skypack/internal/timeutil"
	"github.com/vmihailenco/msgpack/v5"
)

// Status codes returned by Skymate.
const (
	StatusOK             int32 = 0
	StatusBadPayload     int32 = -1
	StatusUnknownRequest int32 = -2
)

// Skymate answers telemetry and target state requests like a navigation
// unit parked at a fixed position.
type Skymate struct {
	clock timeutil.Clock

	mu           sync.Mutex
	ref          geo.LLA
	hasRef       bool
	nav          geo.LLA
	gnssLocked   bool
	gnssUTC      bool
	telemetryErr int32
	zones        []skypack.TargetState
}

// NewSkymate returns a simulator whose reference and navigation position are
// both pos, with a locked UTC GNSS clock reading clock.Now().
func NewSkymate(pos geo.LLA, clock timeutil.Clock) *Skymate {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Skymate{
		clock:      clock,
		ref:        pos,
		hasRef:     true,
		nav:        pos,
		gnssLocked: true,
		gnssUTC:    true,
	}
}

// SetReference sets the reference position, or clears it when ok is false.
func (s *Skymate) SetReference(pos geo.LLA, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ref, s.hasRef = pos, ok
}

// SetNav sets the navigation solution.
func (s *Skymate) SetNav(pos geo.LLA) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nav = pos
}

// SetGNSS sets whether the GNSS clock is locked and on the UTC scale.
func (s *Skymate) SetGNSS(locked, utc bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gnssLocked, s.gnssUTC = locked, utc
}

// SetTelemetryStatus makes telemetry requests fail with status. Zero
// restores normal answers.
func (s *Skymate) SetTelemetryStatus(status int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.telemetryErr = status
}

// LandingZones returns every landing zone received, oldest first.
func (s *Skymate) LandingZones() []skypack.TargetState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]skypack.TargetState, len(s.zones))
	copy(out, s.zones)
	return out
}

// Handle implements Handler.
func (s *Skymate) Handle(req *skypack.Request, attempt int) *skypack.Response {
	switch req.Kind {
	case skypack.KindTelemetry:
		return s.telemetry(req)
	case skypack.KindSetTargetState:
		return s.setTargetState(req)
	default:
		monitoring.Debugf("skymate: unknown request kind %d", req.Kind)
		return Reply(req, StatusUnknownRequest, nil)
	}
}

func (s *Skymate) telemetry(req *skypack.Request) *skypack.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.telemetryErr != 0 {
		return Reply(req, s.telemetryErr, nil)
	}

	scale, state := 0, 1
	if s.gnssUTC {
		scale = 1
	}
	if s.gnssLocked {
		state = 2
	}
	now := float64(s.clock.Now().UnixNano()) / 1e9

	t := map[string]any{
		"nav": map[string]any{
			"lla": []float64{s.nav.Latitude, s.nav.Longitude, s.nav.Altitude},
		},
		"time": map[string]any{
			"clocks": []any{
				map[string]any{"name": "sys", "scale": 0, "state": 2, "time": now},
				map[string]any{"name": "gnss", "scale": scale, "state": state, "time": now},
			},
		},
	}
	if s.hasRef {
		t["ref"] = []float64{s.ref.LatitudeDegrees(), s.ref.LongitudeDegrees(), s.ref.Altitude}
	}
	return Reply(req, StatusOK, t)
}

func (s *Skymate) setTargetState(req *skypack.Request) *skypack.Response {
	// Re-encode the loosely decoded payload into the typed record.
	b, err := msgpack.Marshal(req.Data)
	if err != nil {
		return Reply(req, StatusBadPayload, nil)
	}
	var update skypack.TargetStateUpdate
	if err := msgpack.Unmarshal(b, &update); err != nil || len(update.Items) == 0 {
		monitoring.Debugf("skymate: bad target state payload: %v", err)
		return Reply(req, StatusBadPayload, nil)
	}

	s.mu.Lock()
	s.zones = append(s.zones, update.Items...)
	s.mu.Unlock()
	return Reply(req, StatusOK, nil)
}
