package skypack

import (
	"context"

	"github.com/banshee-data/skypack/internal/geo"
	"gonum.org/v1/gonum/spatial/r3"
)

// Request kinds understood by the device.
const (
	KindTelemetry      uint32 = 9
	KindSetTargetState uint32 = 46
)

// TargetStateUpdate is the payload of a KindSetTargetState request.
type TargetStateUpdate struct {
	Items []TargetState `msgpack:"items"`
}

// TargetState describes one target. Pos is latitude and longitude in degrees
// and altitude in meters when Frame is "lla". Vel is north, east, down in
// m/s. TS is the device UTC time, in seconds, the state refers to.
type TargetState struct {
	ID    int        `msgpack:"id"`
	Frame string     `msgpack:"frame"`
	Pos   [3]float64 `msgpack:"pos"`
	Vel   [3]float64 `msgpack:"vel"`
	RPY   [3]float64 `msgpack:"rpy"`
	TS    float64    `msgpack:"ts"`
}

// precisionLandingZoneID is the target slot used for the landing zone.
const precisionLandingZoneID = 1

// NewLandingZoneUpdate builds the payload for SetPrecisionLandingZone.
func NewLandingZoneUpdate(pos geo.LLA, velNED r3.Vec, ts float64) *TargetStateUpdate {
	return &TargetStateUpdate{Items: []TargetState{{
		ID:    precisionLandingZoneID,
		Frame: "lla",
		Pos:   [3]float64{pos.LatitudeDegrees(), pos.LongitudeDegrees(), pos.Altitude},
		Vel:   [3]float64{velNED.X, velNED.Y, velNED.Z},
		RPY:   [3]float64{0, 0, 0},
		TS:    ts,
	}}}
}

// GetTelemetry requests a telemetry snapshot in the background.
func (c *Client) GetTelemetry(ctx context.Context) *Handle {
	return c.Dispatch(ctx, KindTelemetry, nil)
}

// GetTelemetrySync requests a telemetry snapshot and blocks until it
// arrives or the request fails.
func (c *Client) GetTelemetrySync() (*Response, error) {
	return c.PerformSync(KindTelemetry, nil)
}

// SetPrecisionLandingZone sends the landing zone position and velocity in
// the background.
func (c *Client) SetPrecisionLandingZone(ctx context.Context, pos geo.LLA, velNED r3.Vec, ts float64) *Handle {
	return c.Dispatch(ctx, KindSetTargetState, NewLandingZoneUpdate(pos, velNED, ts))
}
