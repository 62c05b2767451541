// Command landing-zone streams a moving precision landing zone to a SKYMATE
// over the SKYPACK UDP protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/skypack/internal/config"
	"github.com/banshee-data/skypack/internal/db"
	"github.com/banshee-data/skypack/internal/feeder"
	"github.com/banshee-data/skypack/internal/monitoring"
	"github.com/banshee-data/skypack/internal/skypack"
	"github.com/banshee-data/skypack/internal/version"
)

var (
	hNoise     = flag.Float64("h-noise", 0, "Horizontal noise, peak-peak (meters)")
	vNoise     = flag.Float64("v-noise", 0, "Vertical noise, peak-peak (meters)")
	rate       = flag.Float64("rate", config.DefaultRate, "Rate (Hz)")
	vel        = flag.Float64("vel", 0, "Velocity (m/s)")
	delay      = flag.Float64("delay", 0, "Delay (secs)")
	velDegrees = flag.Float64("vel-degrees", 0, "Velocity direction in degrees")
	ip         = flag.String("ip", config.DefaultIP, "IP address")
	port       = flag.Int("port", config.DefaultPort, "Port")

	bind           = flag.String("bind", config.DefaultBindAddr, "Local UDP address")
	attempts       = flag.Int("attempts", config.DefaultAttempts, "Sends per request before giving up")
	attemptTimeout = flag.Duration("attempt-timeout", config.DefaultAttemptTimeout, "Wait per attempt")
	configFile     = flag.String("config", "", "Path to a JSON feeder config; flags set on the command line override it")
	journalPath    = flag.String("journal", "", "Record sessions and updates to this sqlite file")
	debugListen    = flag.String("debug-listen", "", "Serve /debug/ pages on this address (localhost/Tailscale only)")
	statsInterval  = flag.Duration("stats-interval", 30*time.Second, "How often to log client counters (0 disables)")
	verbose        = flag.Bool("verbose", false, "Log every retry and unmatched datagram")
	showVersion    = flag.Bool("version", false, "Print version and exit")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: landing-zone [flags]
       landing-zone -journal <path> migrate <up|down|status|force N>

`)
	flag.PrintDefaults()
}

// applyFlags copies the flags named in set onto cfg.
func applyFlags(cfg *config.FeederConfig, set map[string]bool) {
	if set["h-noise"] {
		cfg.HNoise = hNoise
	}
	if set["v-noise"] {
		cfg.VNoise = vNoise
	}
	if set["rate"] {
		cfg.Rate = rate
	}
	if set["vel"] {
		cfg.Vel = vel
	}
	if set["delay"] {
		cfg.Delay = delay
	}
	if set["vel-degrees"] {
		cfg.VelDegrees = velDegrees
	}
	if set["ip"] {
		cfg.IP = ip
	}
	if set["port"] {
		cfg.Port = port
	}
	if set["bind"] {
		cfg.Bind = bind
	}
	if set["attempts"] {
		cfg.Attempts = attempts
	}
	if set["attempt-timeout"] {
		s := attemptTimeout.String()
		cfg.AttemptTimeout = &s
	}
	if set["journal"] {
		cfg.Journal = journalPath
	}
	if set["debug-listen"] {
		cfg.DebugListen = debugListen
	}
}

// loadConfig merges the optional config file with the flags. Without a file
// every flag applies, defaults included.
func loadConfig() (*config.FeederConfig, error) {
	set := map[string]bool{}
	if *configFile == "" {
		flag.VisitAll(func(f *flag.Flag) { set[f.Name] = true })
		cfg := config.EmptyFeederConfig()
		applyFlags(cfg, set)
		return cfg, cfg.Validate()
	}

	cfg, err := config.LoadFeederConfig(*configFile)
	if err != nil {
		return nil, err
	}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	applyFlags(cfg, set)
	return cfg, cfg.Validate()
}

func feederConfig(cfg *config.FeederConfig) feeder.Config {
	return feeder.Config{
		HNoise:     cfg.GetHNoise(),
		VNoise:     cfg.GetVNoise(),
		Rate:       cfg.GetRate(),
		Vel:        cfg.GetVel(),
		Delay:      cfg.GetDelay(),
		VelDegrees: cfg.GetVelDegrees(),
		Target:     cfg.GetTargetAddr(),
	}
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("landing-zone"))
		return
	}
	monitoring.SetVerbose(*verbose)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if flag.Arg(0) == "migrate" {
		if cfg.GetJournal() == "" {
			log.Fatal("migrate needs -journal")
		}
		if err := db.RunMigrateCommand(os.Stdout, flag.Args()[1:], cfg.GetJournal()); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	client, err := skypack.Dial(skypack.Config{
		TargetAddr:     cfg.GetTargetAddr(),
		BindAddr:       cfg.GetBind(),
		Attempts:       cfg.GetAttempts(),
		AttemptTimeout: cfg.GetAttemptTimeout(),
	})
	if err != nil {
		log.Fatalf("Failed to open SKYPACK client: %v", err)
	}
	defer client.Close()

	fcfg := feederConfig(cfg)
	var journal *db.DB
	if path := cfg.GetJournal(); path != "" {
		journal, err = db.NewDB(path)
		if err != nil {
			log.Fatalf("Failed to open journal: %v", err)
		}
		defer journal.Close()
		fcfg.Journal = journal
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if addr := cfg.GetDebugListen(); addr != "" {
		mux := http.NewServeMux()
		client.AttachAdminRoutes(mux)
		if journal != nil {
			if err := journal.AttachAdminRoutes(mux); err != nil {
				log.Fatalf("Failed to attach journal routes: %v", err)
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveDebug(ctx, addr, mux)
		}()
	}

	if *statsInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(*statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					client.LogStats()
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	f := feeder.New(client, fcfg)
	log.Printf("landing-zone session %s -> %s (interval %v)", f.Session(), cfg.GetTargetAddr(), f.Interval())
	if err := f.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Feeder stopped: %v", err)
	}

	stop()
	wg.Wait()
	client.LogStats()
	log.Printf("Graceful shutdown complete")
}

func serveDebug(ctx context.Context, addr string, mux *http.ServeMux) {
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Debug server failed: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Debug server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("Debug server force close error: %v", err)
		}
	}
}
