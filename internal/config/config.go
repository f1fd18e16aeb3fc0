package config

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/banshee-data/proximity.report/internal/fsutil"
	"github.com/banshee-data/proximity.report/internal/sim"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/proximity.defaults.json"

// Config is the root configuration for the simulator and its collaborators.
// Every field is optional; the Get* methods fall back to built-in defaults
// so partial files are safe.
type Config struct {
	// Clock
	TickInterval *string `json:"tick_interval,omitempty"` // duration string like "1s"

	// Engine params
	MaxDistance        *float64 `json:"max_distance,omitempty"`
	CollisionThreshold *float64 `json:"collision_threshold,omitempty"`
	InitialDistance    *float64 `json:"initial_distance,omitempty"`
	InitialSpeed       *float64 `json:"initial_speed,omitempty"`
	BaseStep           *float64 `json:"base_step,omitempty"`
	LateralJitter      *float64 `json:"lateral_jitter,omitempty"`
	Seed               *uint64  `json:"seed,omitempty"`

	// Collaborators
	LogCapacity     *int `json:"log_capacity,omitempty"`
	HistoryCapacity *int `json:"history_capacity,omitempty"`
	AlertThreshold  *int `json:"alert_threshold,omitempty"`
	AlertWindow     *int `json:"alert_window,omitempty"` // ticks

	// Fake link shown on the dashboard
	Broker *string `json:"broker,omitempty"`
	Topic  *string `json:"topic,omitempty"`

	// Logging
	LogLevel *string `json:"log_level,omitempty"`
	LogJSON  *bool   `json:"log_json,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// Empty returns a Config with all fields unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file on disk. The file must have a .json
// extension and be under 1MB.
func Load(path string) (*Config, error) {
	return LoadFS(fsutil.OSFileSystem{}, path)
}

// LoadFS is Load reading through fsys.
func LoadFS(fsys fsutil.FileSystem, path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set. Engine parameters are validated
// together through sim.Params.
func (c *Config) Validate() error {
	if c.TickInterval != nil && *c.TickInterval != "" {
		d, err := time.ParseDuration(*c.TickInterval)
		if err != nil {
			return fmt.Errorf("invalid tick_interval '%s': %w", *c.TickInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("tick_interval must be positive, got %s", d)
		}
	}

	for _, f := range []struct {
		name string
		v    *int
	}{
		{"log_capacity", c.LogCapacity},
		{"history_capacity", c.HistoryCapacity},
		{"alert_window", c.AlertWindow},
	} {
		if f.v != nil && *f.v < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", f.name, *f.v)
		}
	}
	if c.AlertThreshold != nil && *c.AlertThreshold < 0 {
		return fmt.Errorf("alert_threshold must be non-negative, got %d", *c.AlertThreshold)
	}

	if err := c.SimParams().Validate(); err != nil {
		return fmt.Errorf("invalid simulation parameters: %w", err)
	}
	return nil
}

// SimParams merges the engine fields over sim.DefaultParams.
func (c *Config) SimParams() sim.Params {
	p := sim.DefaultParams()
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.MaxDistance, c.MaxDistance)
	set(&p.CollisionThreshold, c.CollisionThreshold)
	set(&p.InitialDistance, c.InitialDistance)
	set(&p.InitialSpeed, c.InitialSpeed)
	set(&p.BaseStep, c.BaseStep)
	set(&p.LateralJitter, c.LateralJitter)
	if c.Seed != nil {
		p.Seed = *c.Seed
	}
	return p
}

// GetTickInterval parses and returns the TickInterval as a time.Duration.
func (c *Config) GetTickInterval() time.Duration {
	if c.TickInterval == nil || *c.TickInterval == "" {
		return time.Second // default
	}
	d, err := time.ParseDuration(*c.TickInterval)
	if err != nil || d <= 0 {
		return time.Second // default on parse error
	}
	return d
}

// GetLogCapacity returns the number of console entries kept.
func (c *Config) GetLogCapacity() int {
	if c.LogCapacity == nil {
		return 50
	}
	return *c.LogCapacity
}

// GetHistoryCapacity returns the number of snapshots kept for charts.
func (c *Config) GetHistoryCapacity() int {
	if c.HistoryCapacity == nil {
		return 120
	}
	return *c.HistoryCapacity
}

// GetAlertThreshold returns the collision count above which the rate alert fires.
func (c *Config) GetAlertThreshold() int {
	if c.AlertThreshold == nil {
		return 10
	}
	return *c.AlertThreshold
}

// GetAlertWindow returns the alert window in ticks.
func (c *Config) GetAlertWindow() int {
	if c.AlertWindow == nil {
		return 60
	}
	return *c.AlertWindow
}

// GetBroker returns the broker address shown for the fake link.
func (c *Config) GetBroker() string {
	if c.Broker == nil {
		return "localhost:1883"
	}
	return *c.Broker
}

// GetTopic returns the topic shown for the fake link.
func (c *Config) GetTopic() string {
	if c.Topic == nil {
		return "proximity/collision"
	}
	return *c.Topic
}

// GetLogLevel returns the logrus level name.
func (c *Config) GetLogLevel() string {
	if c.LogLevel == nil {
		return "info"
	}
	return *c.LogLevel
}

// GetLogJSON reports whether logs are written as JSON.
func (c *Config) GetLogJSON() bool {
	if c.LogJSON == nil {
		return false
	}
	return *c.LogJSON
}

// Defaults returns a Config with every field set to its built-in default.
// It is what config/proximity.defaults.json contains.
func Defaults() *Config {
	p := sim.DefaultParams()
	e := Empty()
	return &Config{
		TickInterval:       ptrString(e.GetTickInterval().String()),
		MaxDistance:        ptrFloat64(p.MaxDistance),
		CollisionThreshold: ptrFloat64(p.CollisionThreshold),
		InitialDistance:    ptrFloat64(p.InitialDistance),
		InitialSpeed:       ptrFloat64(p.InitialSpeed),
		BaseStep:           ptrFloat64(p.BaseStep),
		LateralJitter:      ptrFloat64(p.LateralJitter),
		Seed:               ptrUint64(p.Seed),
		LogCapacity:        ptrInt(e.GetLogCapacity()),
		HistoryCapacity:    ptrInt(e.GetHistoryCapacity()),
		AlertThreshold:     ptrInt(e.GetAlertThreshold()),
		AlertWindow:        ptrInt(e.GetAlertWindow()),
		Broker:             ptrString(e.GetBroker()),
		Topic:              ptrString(e.GetTopic()),
		LogLevel:           ptrString(e.GetLogLevel()),
		LogJSON:            ptrBool(e.GetLogJSON()),
	}
}

// isFinite is used by callers that accept float overrides from flags.
func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// WithSeed returns a copy of c with the seed replaced.
func (c *Config) WithSeed(seed uint64) *Config {
	out := *c
	out.Seed = ptrUint64(seed)
	return &out
}

// WithInitialSpeed returns a copy of c with the initial speed replaced. It
// rejects non-finite or negative values.
func (c *Config) WithInitialSpeed(v float64) (*Config, error) {
	if !isFinite(v) || v < 0 {
		return nil, fmt.Errorf("initial speed must be a non-negative number, got %v", v)
	}
	out := *c
	out.InitialSpeed = ptrFloat64(v)
	return &out, nil
}
