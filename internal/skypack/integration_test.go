package skypack_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/skypack/internal/devicesim"
	"github.com/banshee-data/skypack/internal/geo"
	"github.com/banshee-data/skypack/internal/skypack"
	"github.com/banshee-data/skypack/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func startDevice(t *testing.T, h devicesim.Handler) *devicesim.Device {
	t.Helper()
	d, err := devicesim.Listen("127.0.0.1:0", h)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func dial(t *testing.T, d *devicesim.Device, attempts int, timeout time.Duration) *skypack.Client {
	t.Helper()
	c, err := skypack.Dial(skypack.Config{
		TargetAddr:     d.Addr(),
		BindAddr:       "127.0.0.1:0",
		Attempts:       attempts,
		AttemptTimeout: timeout,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestUDP_ImmediateResponse(t *testing.T) {
	d := startDevice(t, devicesim.Echo())
	c := dial(t, d, 3, time.Second)

	resp, err := c.Perform(context.Background(), skypack.KindTelemetry, "hello")
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "hello", resp.Data)
	assert.Equal(t, 1, resp.Attempts)
	assert.Equal(t, 1, d.Attempts(resp.Key()))
	assert.Equal(t, c.LocalAddr().String(), d.LastPeer().String())
}

func TestUDP_RetryThenSuccess(t *testing.T) {
	d := startDevice(t, devicesim.DropFirst(1, devicesim.Echo()))
	c := dial(t, d, 3, 50*time.Millisecond)

	resp, err := c.Perform(context.Background(), skypack.KindTelemetry, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Attempts)
	assert.GreaterOrEqual(t, resp.RTT, 50*time.Millisecond)
	assert.Equal(t, 2, d.Attempts(resp.Key()))
}

func TestUDP_Timeout(t *testing.T) {
	d := startDevice(t, devicesim.Silent())
	c := dial(t, d, 3, 20*time.Millisecond)

	_, err := c.Perform(context.Background(), skypack.KindTelemetry, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, skypack.ErrTimeout))

	reqs := d.Requests()
	require.Len(t, reqs, 3)
	for _, r := range reqs[1:] {
		assert.Equal(t, reqs[0].Key(), r.Key())
	}
}

func TestUDP_DeviceFailure(t *testing.T) {
	d := startDevice(t, func(req *skypack.Request, attempt int) *skypack.Response {
		return devicesim.Reply(req, -7, nil)
	})
	c := dial(t, d, 3, time.Second)

	resp, err := c.Perform(context.Background(), skypack.KindSetTargetState, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(-7), resp.Status)
	assert.Len(t, d.Requests(), 1)
}

// TestUDP_NoCrossTalk answers requests out of order with random latency and
// checks every caller gets its own response.
func TestUDP_NoCrossTalk(t *testing.T) {
	d := startDevice(t, func(req *skypack.Request, attempt int) *skypack.Response {
		n, _ := req.Data.(int64)
		time.Sleep(time.Duration(n%7) * time.Millisecond)
		return devicesim.Reply(req, 0, fmt.Sprintf("answer-%d", n))
	})
	c := dial(t, d, 3, time.Second)

	const n = 100
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kind := skypack.KindTelemetry
			if i%2 == 1 {
				kind = skypack.KindSetTargetState
			}
			resp, err := c.Perform(context.Background(), kind, int64(i))
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, kind, resp.Kind)
			assert.Equal(t, fmt.Sprintf("answer-%d", i), resp.Data)
		}()
	}
	wg.Wait()
	assert.Zero(t, c.Stats().Pending)
}

func TestUDP_UnsolicitedResponses(t *testing.T) {
	d := startDevice(t, devicesim.Echo())
	c := dial(t, d, 3, time.Second)

	_, err := c.Perform(context.Background(), skypack.KindTelemetry, nil)
	require.NoError(t, err)

	require.NoError(t, d.Inject(&skypack.Response{Kind: 77, ID: 1}, c.LocalAddr()))
	require.NoError(t, d.InjectRaw([]byte("not msgpack at all"), c.LocalAddr()))
	assert.Eventually(t, func() bool {
		s := c.Stats()
		return s.Unmatched == 1 && s.DecodeErrors == 1
	}, time.Second, 5*time.Millisecond)

	_, err = c.Perform(context.Background(), skypack.KindTelemetry, nil)
	assert.NoError(t, err)
}

func TestUDP_PerformSyncFromManyGoroutines(t *testing.T) {
	d := startDevice(t, devicesim.Echo())
	c := dial(t, d, 3, time.Second)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := c.PerformSync(skypack.KindTelemetry, int64(i))
			if assert.NoError(t, err) {
				assert.Equal(t, int64(i), resp.Data)
			}
		}()
	}
	wg.Wait()
}

// TestUDP_Skymate drives the typed operations against the simulated
// navigation unit.
func TestUDP_Skymate(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1718000000, 0))
	home := geo.FromDegrees(47.4, 8.55, 430)
	sim := devicesim.NewSkymate(home, clock)
	d := startDevice(t, sim.Handle)
	c := dial(t, d, 3, time.Second)

	resp, err := c.GetTelemetrySync()
	require.NoError(t, err)
	tel, err := skypack.TelemetryFrom(resp)
	require.NoError(t, err)

	ref, ok := tel.Reference()
	require.True(t, ok)
	assert.InDelta(t, 47.4, ref.LatitudeDegrees(), 1e-9)

	nav, err := tel.NavLLA()
	require.NoError(t, err)
	assert.InDelta(t, home.Longitude, nav.Longitude, 1e-12)

	ts, err := tel.LockedGNSSTime()
	require.NoError(t, err)
	assert.Equal(t, 1718000000.0, ts)

	h := c.GetTelemetry(context.Background())
	resp, err = h.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.OK())

	zone := geo.FromDegrees(47.41, 8.56, 431)
	h = c.SetPrecisionLandingZone(context.Background(), zone, r3.Vec{X: 1, Y: 2, Z: 3}, ts)
	resp, err = h.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.OK())

	zones := sim.LandingZones()
	require.Len(t, zones, 1)
	assert.Equal(t, "lla", zones[0].Frame)
	assert.InDelta(t, 47.41, zones[0].Pos[0], 1e-9)
	assert.Equal(t, [3]float64{1, 2, 3}, zones[0].Vel)
	assert.Equal(t, ts, zones[0].TS)

	resp, err = c.Perform(context.Background(), 1234, nil)
	require.NoError(t, err)
	assert.Equal(t, devicesim.StatusUnknownRequest, resp.Status)
}
