package skypack

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/skypack/internal/geo"
)

// GNSS clock states reported in telemetry.
const (
	clockScaleUTC    = 1
	clockStateLocked = 2
	gnssClockName    = "gnss"
)

// Errors returned by the telemetry accessors.
var (
	ErrNoTelemetry   = errors.New("failed to fetch telemetry")
	ErrNoNavPosition = errors.New("telemetry has no nav position")
	ErrNoClocks      = errors.New("telemetry has no clocks")
	ErrNoGNSSClock   = errors.New("telemetry has no GNSS clock")
	ErrGNSSNotUTC    = errors.New("GNSS clock is not UTC")
	ErrGNSSNotSynced = errors.New("GNSS clock is not synchronized")
	ErrNoGNSSTime    = errors.New("GNSS clock has no time")
)

// Telemetry is the structured payload of a telemetry response.
type Telemetry map[string]any

// TelemetryFrom extracts the telemetry payload from a response. A non-zero
// status or a missing payload fails with ErrNoTelemetry.
func TelemetryFrom(r *Response) (Telemetry, error) {
	if r == nil {
		return nil, ErrNoTelemetry
	}
	if !r.OK() {
		return nil, fmt.Errorf("%w: device status %d", ErrNoTelemetry, r.Status)
	}
	m, ok := asMap(r.Data)
	if !ok {
		return nil, ErrNoTelemetry
	}
	return Telemetry(m), nil
}

// NavLLA returns the navigation solution. nav.lla is latitude and longitude
// in radians and altitude in meters.
func (t Telemetry) NavLLA() (geo.LLA, error) {
	nav, ok := asMap(t["nav"])
	if !ok {
		return geo.LLA{}, ErrNoNavPosition
	}
	v, ok := floats(nav["lla"], 3)
	if !ok {
		return geo.LLA{}, ErrNoNavPosition
	}
	return geo.FromRadians(v[0], v[1], v[2]), nil
}

// Reference returns the device's reference position. ref is latitude and
// longitude in degrees and altitude in meters.
func (t Telemetry) Reference() (geo.LLA, bool) {
	v, ok := floats(t["ref"], 3)
	if !ok {
		return geo.LLA{}, false
	}
	return geo.FromDegrees(v[0], v[1], v[2]), true
}

// LockedGNSSTime returns the GNSS clock time in UTC seconds, provided the
// clock is on the UTC scale and synchronized.
func (t Telemetry) LockedGNSSTime() (float64, error) {
	timeInfo, _ := asMap(t["time"])
	clocks, ok := timeInfo["clocks"].([]any)
	if !ok {
		return 0, ErrNoClocks
	}

	var gnss map[string]any
	for _, c := range clocks {
		m, ok := asMap(c)
		if !ok {
			continue
		}
		if name, _ := m["name"].(string); name == gnssClockName {
			gnss = m
			break
		}
	}
	if gnss == nil {
		return 0, ErrNoGNSSClock
	}
	if scale, ok := toInt(gnss["scale"]); !ok || scale != clockScaleUTC {
		return 0, ErrGNSSNotUTC
	}
	if state, ok := toInt(gnss["state"]); !ok || state != clockStateLocked {
		return 0, ErrGNSSNotSynced
	}
	ts, ok := toFloat(gnss["time"])
	if !ok {
		return 0, ErrNoGNSSTime
	}
	return ts, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Telemetry:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			s, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[s] = val
		}
		return out, true
	}
	return nil, false
}

// floats reads the first n numbers of an array value.
func floats(v any, n int) ([]float64, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) < n {
		return nil, false
	}
	out := make([]float64, n)
	for i := range n {
		f, ok := toFloat(arr[i])
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	}
	return 0, false
}
