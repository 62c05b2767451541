// Package config loads the landing-zone feeder configuration from JSON.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Defaults used when a field is absent from the file.
const (
	DefaultRate           = 1.0
	DefaultIP             = "127.0.0.1"
	DefaultPort           = 41263
	DefaultBindAddr       = "0.0.0.0:0"
	DefaultAttempts       = 3
	DefaultAttemptTimeout = time.Second
)

// maxFileSize bounds the config file (1MB).
const maxFileSize = 1 * 1024 * 1024

// FeederConfig is the feeder's file configuration. Every field is optional;
// the Get* methods supply defaults. Field names match the CLI flags.
type FeederConfig struct {
	// Landing zone motion
	HNoise     *float64 `json:"h_noise,omitempty"`     // horizontal noise, peak-peak (m)
	VNoise     *float64 `json:"v_noise,omitempty"`     // vertical noise, peak-peak (m)
	Rate       *float64 `json:"rate,omitempty"`        // updates per second
	Vel        *float64 `json:"vel,omitempty"`         // speed (m/s)
	Delay      *float64 `json:"delay,omitempty"`       // seconds before the zone starts to move
	VelDegrees *float64 `json:"vel_degrees,omitempty"` // heading, degrees from north

	// Device link
	IP             *string `json:"ip,omitempty"`
	Port           *int    `json:"port,omitempty"`
	Bind           *string `json:"bind,omitempty"`
	Attempts       *int    `json:"attempts,omitempty"`
	AttemptTimeout *string `json:"attempt_timeout,omitempty"` // duration string like "1s"

	// Ops
	Journal     *string `json:"journal,omitempty"`      // sqlite path; empty disables
	DebugListen *string `json:"debug_listen,omitempty"` // debug HTTP address; empty disables
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyFeederConfig returns a FeederConfig with all fields set to nil.
func EmptyFeederConfig() *FeederConfig {
	return &FeederConfig{}
}

// DefaultFeederConfig returns a FeederConfig with every field set to its
// default.
func DefaultFeederConfig() *FeederConfig {
	return &FeederConfig{
		HNoise:         ptrFloat64(0),
		VNoise:         ptrFloat64(0),
		Rate:           ptrFloat64(DefaultRate),
		Vel:            ptrFloat64(0),
		Delay:          ptrFloat64(0),
		VelDegrees:     ptrFloat64(0),
		IP:             ptrString(DefaultIP),
		Port:           ptrInt(DefaultPort),
		Bind:           ptrString(DefaultBindAddr),
		Attempts:       ptrInt(DefaultAttempts),
		AttemptTimeout: ptrString(DefaultAttemptTimeout.String()),
		Journal:        ptrString(""),
		DebugListen:    ptrString(""),
	}
}

// LoadFeederConfig loads a FeederConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file keep their defaults, so partial configs are safe.
func LoadFeederConfig(path string) (*FeederConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyFeederConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *FeederConfig) Validate() error {
	nonNegative := []struct {
		name string
		v    *float64
	}{
		{"h_noise", c.HNoise},
		{"v_noise", c.VNoise},
		{"delay", c.Delay},
	}
	for _, f := range nonNegative {
		if f.v != nil && (*f.v < 0 || math.IsNaN(*f.v)) {
			return fmt.Errorf("%s must be non-negative, got %f", f.name, *f.v)
		}
	}

	if c.Rate != nil {
		if *c.Rate <= 0 || math.IsNaN(*c.Rate) || math.IsInf(*c.Rate, 0) {
			return fmt.Errorf("rate must be positive, got %f", *c.Rate)
		}
	}

	if c.Vel != nil && (math.IsNaN(*c.Vel) || math.IsInf(*c.Vel, 0)) {
		return fmt.Errorf("vel must be finite, got %f", *c.Vel)
	}

	if c.Port != nil {
		if *c.Port < 1 || *c.Port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got %d", *c.Port)
		}
	}

	if c.Bind != nil && *c.Bind != "" {
		if _, _, err := net.SplitHostPort(*c.Bind); err != nil {
			return fmt.Errorf("invalid bind address '%s': %w", *c.Bind, err)
		}
	}

	if c.Attempts != nil && *c.Attempts < 1 {
		return fmt.Errorf("attempts must be at least 1, got %d", *c.Attempts)
	}

	if c.AttemptTimeout != nil && *c.AttemptTimeout != "" {
		d, err := time.ParseDuration(*c.AttemptTimeout)
		if err != nil {
			return fmt.Errorf("invalid attempt_timeout '%s': %w", *c.AttemptTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("attempt_timeout must be positive, got %s", d)
		}
	}

	return nil
}

// GetHNoise returns the h_noise value or the default.
func (c *FeederConfig) GetHNoise() float64 {
	if c.HNoise == nil {
		return 0
	}
	return *c.HNoise
}

// GetVNoise returns the v_noise value or the default.
func (c *FeederConfig) GetVNoise() float64 {
	if c.VNoise == nil {
		return 0
	}
	return *c.VNoise
}

// GetRate returns the rate value or the default.
func (c *FeederConfig) GetRate() float64 {
	if c.Rate == nil || *c.Rate <= 0 {
		return DefaultRate
	}
	return *c.Rate
}

// GetInterval returns the time between updates, 1/rate.
func (c *FeederConfig) GetInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.GetRate())
}

// GetVel returns the vel value or the default.
func (c *FeederConfig) GetVel() float64 {
	if c.Vel == nil {
		return 0
	}
	return *c.Vel
}

// GetDelay returns the delay value or the default.
func (c *FeederConfig) GetDelay() float64 {
	if c.Delay == nil {
		return 0
	}
	return *c.Delay
}

// GetVelDegrees returns the vel_degrees value or the default.
func (c *FeederConfig) GetVelDegrees() float64 {
	if c.VelDegrees == nil {
		return 0
	}
	return *c.VelDegrees
}

// GetIP returns the ip value or the default.
func (c *FeederConfig) GetIP() string {
	if c.IP == nil || *c.IP == "" {
		return DefaultIP
	}
	return *c.IP
}

// GetPort returns the port value or the default.
func (c *FeederConfig) GetPort() int {
	if c.Port == nil {
		return DefaultPort
	}
	return *c.Port
}

// GetTargetAddr joins ip and port into a host:port address.
func (c *FeederConfig) GetTargetAddr() string {
	return net.JoinHostPort(c.GetIP(), fmt.Sprint(c.GetPort()))
}

// GetBind returns the bind value or the default.
func (c *FeederConfig) GetBind() string {
	if c.Bind == nil || *c.Bind == "" {
		return DefaultBindAddr
	}
	return *c.Bind
}

// GetAttempts returns the attempts value or the default.
func (c *FeederConfig) GetAttempts() int {
	if c.Attempts == nil {
		return DefaultAttempts
	}
	return *c.Attempts
}

// GetAttemptTimeout parses and returns the AttemptTimeout as a time.Duration.
func (c *FeederConfig) GetAttemptTimeout() time.Duration {
	if c.AttemptTimeout == nil || *c.AttemptTimeout == "" {
		return DefaultAttemptTimeout
	}
	d, err := time.ParseDuration(*c.AttemptTimeout)
	if err != nil {
		return DefaultAttemptTimeout // default on parse error
	}
	return d
}

// GetJournal returns the journal path, empty when journaling is off.
func (c *FeederConfig) GetJournal() string {
	if c.Journal == nil {
		return ""
	}
	return *c.Journal
}

// GetDebugListen returns the debug listen address, empty when disabled.
func (c *FeederConfig) GetDebugListen() string {
	if c.DebugListen == nil {
		return ""
	}
	return *c.DebugListen
}
