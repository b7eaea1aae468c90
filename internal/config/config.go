// Package config loads the run configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cxd309/junction-walk/internal/geo"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the top-level run configuration.
type Config struct {
	Mobility   MobilityConfig   `json:"mobility" yaml:"mobility"`
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Server     ServerConfig     `json:"server" yaml:"server"`
}

// MobilityConfig is the per-walker parameter set.
type MobilityConfig struct {
	TraceFile string  `json:"trace_file" yaml:"trace_file"`
	Speed     float64 `json:"speed" yaml:"speed"` // m/s
	Model     string  `json:"model,omitempty" yaml:"model,omitempty"`
	// Both reference coordinates set projects the trace to local metres.
	// Both unset moves walkers in the raw (lon, lat) plane.
	ReferenceLatitude  *float64 `json:"reference_latitude,omitempty" yaml:"reference_latitude,omitempty"`
	ReferenceLongitude *float64 `json:"reference_longitude,omitempty" yaml:"reference_longitude,omitempty"`
	WatchTrace         bool     `json:"watch_trace,omitempty" yaml:"watch_trace,omitempty"`
}

// Reference returns the projection reference, or nil when unset.
func (m MobilityConfig) Reference() *geo.Reference {
	if m.ReferenceLatitude == nil || m.ReferenceLongitude == nil {
		return nil
	}
	return &geo.Reference{Lat: *m.ReferenceLatitude, Lon: *m.ReferenceLongitude}
}

// SimulationConfig drives the fixed-step harness.
type SimulationConfig struct {
	Agents   int           `json:"agents" yaml:"agents"`
	RunTime  time.Duration `json:"run_time" yaml:"run_time"`
	TimeStep time.Duration `json:"time_step" yaml:"time_step"`
	Seed     uint64        `json:"seed" yaml:"seed"`
}

// LoggingConfig selects the log level and format.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text or json
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
	// TraceDir is the directory trace_file names resolve against. When
	// empty the API only accepts inline trace_data.
	TraceDir string `json:"trace_dir,omitempty" yaml:"trace_dir,omitempty"`
	// CORSOrigins enables CORS for the listed origins; "*" allows all.
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Mobility: MobilityConfig{
			Speed: 1.4,
			Model: "constant",
		},
		Simulation: SimulationConfig{
			Agents:   1,
			RunTime:  10 * time.Minute,
			TimeStep: time.Second,
			Seed:     1,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Server:  ServerConfig{Addr: ":8080"},
	}
}

// Load reads path over the defaults. Durations use Go syntax ("250ms", "10m").
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for a run.
func (c Config) Validate() error {
	if err := c.Mobility.Validate(); err != nil {
		return err
	}

	s := c.Simulation
	if s.Agents < 1 {
		return fmt.Errorf("%w: simulation.agents must be >= 1", ErrInvalid)
	}
	if s.TimeStep <= 0 {
		return fmt.Errorf("%w: simulation.time_step must be > 0", ErrInvalid)
	}
	if s.RunTime < 0 {
		return fmt.Errorf("%w: simulation.run_time must be >= 0", ErrInvalid)
	}
	return nil
}

// Validate checks the walker parameters.
func (m MobilityConfig) Validate() error {
	if m.TraceFile == "" {
		return fmt.Errorf("%w: mobility.trace_file is required", ErrInvalid)
	}
	if m.Speed < 0 || math.IsNaN(m.Speed) || math.IsInf(m.Speed, 0) {
		return fmt.Errorf("%w: mobility.speed must be a finite value >= 0, got %v", ErrInvalid, m.Speed)
	}
	if (m.ReferenceLatitude == nil) != (m.ReferenceLongitude == nil) {
		return fmt.Errorf("%w: mobility.reference_latitude and reference_longitude must be set together", ErrInvalid)
	}
	if ref := m.Reference(); ref != nil {
		if math.Abs(ref.Lat) > 90 || math.Abs(ref.Lon) > 180 {
			return fmt.Errorf("%w: reference point %v out of range", ErrInvalid, *ref)
		}
	}
	return nil
}
