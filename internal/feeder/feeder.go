// Package feeder streams a moving precision landing zone to a SKYPACK
// device. It anchors a local tangent frame at the device's reference
// position, then on every tick places the zone at velocity * elapsed device
// time, plus optional noise.
package feeder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/banshee-data/skypack/internal/db"
	"github.com/banshee-data/skypack/internal/geo"
	"github.com/banshee-data/skypack/internal/monitoring"
	"github.com/banshee-data/skypack/internal/skypack"
	"github.com/banshee-data/skypack/internal/timeutil"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultAcquireRetry is the pause between failed acquisition attempts.
const DefaultAcquireRetry = 100 * time.Millisecond

// Device is the part of *skypack.Client the feeder drives.
type Device interface {
	GetTelemetrySync() (*skypack.Response, error)
	SetPrecisionLandingZone(ctx context.Context, pos geo.LLA, velNED r3.Vec, ts float64) *skypack.Handle
}

// Journal records sessions and updates. *db.DB implements it.
type Journal interface {
	StartSession(s db.Session) error
	RecordUpdate(u db.Update) error
}

// Config holds the feeder's motion parameters and collaborators.
type Config struct {
	HNoise     float64 // horizontal noise, peak-peak (m)
	VNoise     float64 // vertical noise, peak-peak (m)
	Rate       float64 // updates per second; defaults to 1
	Vel        float64 // speed (m/s)
	Delay      float64 // seconds of device time before the zone moves
	VelDegrees float64 // heading, degrees clockwise from north

	// Target is recorded in the journal.
	Target string

	Clock        timeutil.Clock
	Rand         *rand.Rand
	Journal      Journal
	AcquireRetry time.Duration
}

// Feeder runs the landing-zone loop for one device.
type Feeder struct {
	dev   Device
	cfg   Config
	clock timeutil.Clock
	rng   *rand.Rand

	velNED   r3.Vec
	interval time.Duration

	session   uuid.UUID
	reference geo.Reference
	initUTC   float64
	acquired  bool
	seq       int64
}

// Sent describes a landing zone the device accepted.
type Sent struct {
	Position  geo.LLA
	DeviceUTC float64
	Response  *skypack.Response
}

// VelocityNED turns a speed and a heading in degrees into a level NED
// velocity.
func VelocityNED(speed, headingDegrees float64) r3.Vec {
	sin, cos := math.Sincos(headingDegrees * math.Pi / 180)
	return r3.Vec{X: cos * speed, Y: sin * speed, Z: 0}
}

// New returns a feeder for dev. It does not contact the device.
func New(dev Device, cfg Config) *Feeder {
	f := &Feeder{
		dev:     dev,
		cfg:     cfg,
		clock:   cfg.Clock,
		rng:     cfg.Rand,
		velNED:  VelocityNED(cfg.Vel, cfg.VelDegrees),
		session: uuid.New(),
	}
	if f.clock == nil {
		f.clock = timeutil.RealClock{}
	}
	if f.rng == nil {
		f.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if f.cfg.AcquireRetry <= 0 {
		f.cfg.AcquireRetry = DefaultAcquireRetry
	}
	rate := cfg.Rate
	if rate <= 0 {
		rate = 1
	}
	f.interval = time.Duration(float64(time.Second) / rate)
	return f
}

// Session returns the id recorded in the journal for this run.
func (f *Feeder) Session() uuid.UUID { return f.session }

// Interval returns the time between updates.
func (f *Feeder) Interval() time.Duration { return f.interval }

// Reference returns the tangent frame origin. Valid after Acquire.
func (f *Feeder) Reference() geo.Reference { return f.reference }

// InitUTC returns the device time the motion is measured from. Valid after
// Acquire.
func (f *Feeder) InitUTC() float64 { return f.initUTC }

// telemetry fetches one snapshot, failing on transport errors and on a
// non-zero device status.
func (f *Feeder) telemetry() (skypack.Telemetry, error) {
	resp, err := f.dev.GetTelemetrySync()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", skypack.ErrNoTelemetry, err)
	}
	return skypack.TelemetryFrom(resp)
}

// retry calls try until it succeeds or ctx ends, pausing between attempts.
func retry[T any](ctx context.Context, f *Feeder, what string, try func() (T, error)) (T, error) {
	var lastErr error
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			var zero T
			if lastErr != nil {
				return zero, fmt.Errorf("acquire %s: %w (last error: %v)", what, err, lastErr)
			}
			return zero, fmt.Errorf("acquire %s: %w", what, err)
		}
		v, err := try()
		if err == nil {
			return v, nil
		}
		if lastErr == nil || err.Error() != lastErr.Error() {
			monitoring.Logf("feeder: acquiring %s (attempt %d): %v", what, n, err)
		}
		lastErr = err
		f.sleep(ctx, f.cfg.AcquireRetry)
	}
}

var errNoReference = errors.New("telemetry has no reference")

// AcquireReference polls telemetry until it carries the device reference.
func (f *Feeder) AcquireReference(ctx context.Context) (geo.LLA, error) {
	return retry(ctx, f, "reference", func() (geo.LLA, error) {
		t, err := f.telemetry()
		if err != nil {
			return geo.LLA{}, err
		}
		ref, ok := t.Reference()
		if !ok {
			return geo.LLA{}, errNoReference
		}
		return ref, nil
	})
}

// AcquireUTC polls telemetry until the device's GNSS clock is locked to UTC.
func (f *Feeder) AcquireUTC(ctx context.Context) (float64, error) {
	return retry(ctx, f, "UTC time", func() (float64, error) {
		t, err := f.telemetry()
		if err != nil {
			return 0, err
		}
		return t.LockedGNSSTime()
	})
}

// Acquire anchors the feeder: it reads the reference, then the initial device
// UTC time, and opens a journal session.
func (f *Feeder) Acquire(ctx context.Context) error {
	log := monitoring.Logf

	log("Acquiring SKYMATE Reference...")
	ref, err := f.AcquireReference(ctx)
	if err != nil {
		return err
	}
	f.reference = geo.NewReference(ref)
	log("SKYMATE Reference: %v, %v, %v", ref.LatitudeDegrees(), ref.LongitudeDegrees(), ref.Altitude)

	log("Acquiring SKYMATE UTC Time...")
	initUTC, err := f.AcquireUTC(ctx)
	if err != nil {
		return err
	}
	f.initUTC = initUTC
	f.acquired = true

	hostUTC := float64(f.clock.Now().UnixNano()) / 1e9
	if initUTC > hostUTC {
		log("SKYMATE UTC Time: %v (%v secs in the future)", initUTC, initUTC-hostUTC)
	} else {
		log("SKYMATE UTC Time: %v (%v secs in the past)", initUTC, hostUTC-initUTC)
	}

	if f.cfg.Journal != nil {
		err := f.cfg.Journal.StartSession(db.Session{
			ID:        f.session,
			Target:    f.cfg.Target,
			RefLatDeg: ref.LatitudeDegrees(),
			RefLonDeg: ref.LongitudeDegrees(),
			RefAltM:   ref.Altitude,
			InitUTC:   initUTC,
			VelN:      f.velNED.X,
			VelE:      f.velNED.Y,
			Delay:     f.cfg.Delay,
			StartedAt: f.clock.Now(),
		})
		if err != nil {
			monitoring.Logf("feeder: journal disabled: %v", err)
			f.cfg.Journal = nil
		}
	}
	return nil
}

// noise returns a uniform offset within ±h/2 on each horizontal axis and
// ±v/2 vertically.
func (f *Feeder) noise() r3.Vec {
	return r3.Vec{
		X: (f.rng.Float64()*2 - 1) * f.cfg.HNoise / 2,
		Y: (f.rng.Float64()*2 - 1) * f.cfg.HNoise / 2,
		Z: (f.rng.Float64()*2 - 1) * f.cfg.VNoise / 2,
	}
}

// Offset returns the tangent-frame position of the zone at device time utc,
// without noise.
func (f *Feeder) Offset(utc float64) r3.Vec {
	elapsed := utc - f.initUTC - f.cfg.Delay
	return r3.Scale(elapsed, f.velNED)
}

// Iteration computes and sends one landing zone.
func (f *Feeder) Iteration(ctx context.Context) (*Sent, error) {
	if !f.acquired {
		return nil, errors.New("feeder: Acquire has not completed")
	}
	f.seq++
	u := db.Update{SessionID: f.session, Seq: f.seq, VelN: f.velNED.X, VelE: f.velNED.Y, VelD: f.velNED.Z}
	sent, err := f.iteration(ctx, &u)
	if err != nil {
		u.Err = err.Error()
	}
	f.record(u)
	return sent, err
}

func (f *Feeder) iteration(ctx context.Context, u *db.Update) (*Sent, error) {
	t, err := f.telemetry()
	if err != nil {
		return nil, err
	}
	utc, err := t.LockedGNSSTime()
	if err != nil {
		return nil, err
	}
	u.DeviceUTC = utc

	pos := f.reference.TangentToLLA(r3.Add(f.Offset(utc), f.noise()))
	u.LatDeg, u.LonDeg, u.AltM = pos.LatitudeDegrees(), pos.LongitudeDegrees(), pos.Altitude

	resp, err := f.dev.SetPrecisionLandingZone(ctx, pos, f.velNED, utc).Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("set landing zone: %w", err)
	}
	u.Status, u.Attempts, u.RTT = resp.Status, resp.Attempts, resp.RTT
	if !resp.OK() {
		return nil, fmt.Errorf("set landing zone: device status %d", resp.Status)
	}

	monitoring.Logf("Sent %v, %v, %v", pos.LatitudeDegrees(), pos.LongitudeDegrees(), pos.Altitude)
	return &Sent{Position: pos, DeviceUTC: utc, Response: resp}, nil
}

func (f *Feeder) record(u db.Update) {
	if f.cfg.Journal == nil {
		return
	}
	u.RecordedAt = f.clock.Now()
	if err := f.cfg.Journal.RecordUpdate(u); err != nil {
		monitoring.Logf("feeder: %v", err)
	}
}

// Run acquires the device and then sends a landing zone every interval
// until ctx ends. Failed iterations are logged and the loop continues.
func (f *Feeder) Run(ctx context.Context) error {
	if err := f.Acquire(ctx); err != nil {
		return err
	}
	for {
		start := f.clock.Now()
		if _, err := f.Iteration(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			monitoring.Logf("Iteration failed: %v", err)
		}
		if ctx.Err() != nil {
			return nil
		}
		if work := f.clock.Since(start); work < f.interval {
			f.sleep(ctx, f.interval-work)
		}
	}
}

// sleep waits for d or until ctx ends.
func (f *Feeder) sleep(ctx context.Context, d time.Duration) {
	t := f.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C():
	case <-ctx.Done():
	}
}
