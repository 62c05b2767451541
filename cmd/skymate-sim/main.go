// Command skymate-sim answers SKYPACK telemetry and target-state requests
// on UDP, for running landing-zone without hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/skypack/internal/devicesim"
	"github.com/banshee-data/skypack/internal/geo"
	"github.com/banshee-data/skypack/internal/monitoring"
	"github.com/banshee-data/skypack/internal/skypack"
	"github.com/banshee-data/skypack/internal/version"
)

var (
	listen      = flag.String("listen", "127.0.0.1:41263", "UDP address to serve on")
	lat         = flag.Float64("lat", 47.3977, "Reference latitude (degrees)")
	lon         = flag.Float64("lon", 8.5456, "Reference longitude (degrees)")
	alt         = flag.Float64("alt", 488, "Reference altitude (meters)")
	noRefFor    = flag.Duration("no-ref-for", 0, "Withhold the reference for this long after start")
	unlockedFor = flag.Duration("unlocked-for", 0, "Report an unsynchronized GNSS clock for this long after start")
	dropRate    = flag.Float64("drop", 0, "Fraction of requests to ignore, 0..1")
	verbose     = flag.Bool("verbose", false, "Log every request")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// lossy drops a fraction of requests to exercise client retries.
func lossy(h devicesim.Handler, fraction float64, rng *rand.Rand) devicesim.Handler {
	if fraction <= 0 {
		return h
	}
	return func(req *skypack.Request, attempt int) *skypack.Response {
		if rng.Float64() < fraction {
			monitoring.Debugf("skymate-sim: dropping %s (attempt %d)", req.Key(), attempt)
			return nil
		}
		return h(req, attempt)
	}
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("skymate-sim"))
		return
	}
	if *dropRate < 0 || *dropRate >= 1 {
		log.Fatalf("-drop must be in [0, 1), got %v", *dropRate)
	}
	monitoring.SetVerbose(*verbose)

	ref := geo.FromDegrees(*lat, *lon, *alt)
	sim := devicesim.NewSkymate(ref, nil)
	if *noRefFor > 0 {
		sim.SetReference(ref, false)
		time.AfterFunc(*noRefFor, func() {
			log.Printf("reference available")
			sim.SetReference(ref, true)
		})
	}
	if *unlockedFor > 0 {
		sim.SetGNSS(false, true)
		time.AfterFunc(*unlockedFor, func() {
			log.Printf("GNSS locked")
			sim.SetGNSS(true, true)
		})
	}

	// handlers run concurrently; guard the shared generator
	rng := rand.New(&lockedSource{src: rand.NewPCG(rand.Uint64(), rand.Uint64())})
	dev, err := devicesim.Listen(*listen, lossy(sim.Handle, *dropRate, rng))
	if err != nil {
		log.Fatalf("Failed to start simulator: %v", err)
	}
	log.Printf("skymate-sim serving on %s, reference %v", dev.Addr(), ref)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	if err := dev.Close(); err != nil {
		log.Printf("close: %v", err)
	}
	zones := sim.LandingZones()
	log.Printf("received %d landing zone updates", len(zones))
	if n := len(zones); n > 0 {
		last := zones[n-1]
		log.Printf("last landing zone: %.8f, %.8f, %.3f at %.3f", last.Pos[0], last.Pos[1], last.Pos[2], last.TS)
	}
}
