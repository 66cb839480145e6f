package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults mirror the daemon's historical compiled-in constants.
const (
	DefaultIterationsBeforeSwitch = 30
	DefaultPerformanceStateHigh   = 16
	DefaultPerformanceStateLow    = 8
	DefaultSleepInterval          = "100ms"
	DefaultTemperatureThreshold   = 80
	DefaultListen                 = ":19090"
)

type Config struct {
	// GPUs lists the device indices to manage. Empty means all.
	GPUs []int `yaml:"gpus"`

	// IterationsBeforeSwitch is the number of consecutive idle ticks a GPU
	// may sit in the high-performance state before dropping to low.
	IterationsBeforeSwitch uint32 `yaml:"iterations_before_switch"`

	// PerformanceStateHigh and PerformanceStateLow are the vendor pstate
	// ids commanded for the two operating points.
	PerformanceStateHigh uint32 `yaml:"performance_state_high"`
	PerformanceStateLow  uint32 `yaml:"performance_state_low"`

	// SleepInterval is the pause between control-loop passes, as a Go
	// duration string.
	SleepInterval string `yaml:"sleep_interval"`

	// TemperatureThreshold in °C; above it the GPU is forced low
	// regardless of utilization.
	TemperatureThreshold uint32 `yaml:"temperature_threshold"`

	Fallback Fallback `yaml:"fallback"`

	SelfTelemetry struct {
		Listen string `yaml:"listen"`
		NS     string `yaml:"prometheus_namespace"`
	} `yaml:"selfTelemetry"`
}

// Fallback tunes the clock-control path used when pstate forcing is not
// available on a GPU.
type Fallback struct {
	// Disabled turns the fallback off entirely; a pstate failure is then
	// fatal.
	Disabled bool `yaml:"disabled"`

	// Clock frequencies in MHz. Zero means "automatic" for the high pair
	// and "lowest supported" for the low pair.
	ClockMemHigh uint32 `yaml:"clock_mem_high"`
	ClockGPUHigh uint32 `yaml:"clock_gpu_high"`
	ClockMemLow  uint32 `yaml:"clock_mem_low"`
	ClockGPULow  uint32 `yaml:"clock_gpu_low"`
}

// TickInterval returns the parsed SleepInterval. Load validates it, so
// after a successful Load this never falls back.
func (c *Config) TickInterval() time.Duration {
	d, err := time.ParseDuration(c.SleepInterval)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultSleepInterval)
	}
	return d
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads and validates a yaml configuration file. Keys left unset keep
// their defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.IterationsBeforeSwitch == 0 {
		c.IterationsBeforeSwitch = DefaultIterationsBeforeSwitch
	}
	if c.PerformanceStateHigh == 0 {
		c.PerformanceStateHigh = DefaultPerformanceStateHigh
	}
	if c.PerformanceStateLow == 0 {
		c.PerformanceStateLow = DefaultPerformanceStateLow
	}
	if c.SleepInterval == "" {
		c.SleepInterval = DefaultSleepInterval
	}
	if c.TemperatureThreshold == 0 {
		c.TemperatureThreshold = DefaultTemperatureThreshold
	}
	if c.SelfTelemetry.Listen == "" {
		c.SelfTelemetry.Listen = DefaultListen
	}
	if c.SelfTelemetry.NS == "" {
		c.SelfTelemetry.NS = "pstated"
	}
}

func (c *Config) validate() error {
	d, err := time.ParseDuration(c.SleepInterval)
	if err != nil {
		return fmt.Errorf("sleep_interval %q: %w", c.SleepInterval, err)
	}
	if d <= 0 {
		return fmt.Errorf("sleep_interval %q: must be positive", c.SleepInterval)
	}
	if c.PerformanceStateHigh == c.PerformanceStateLow {
		return fmt.Errorf("performance_state_high and performance_state_low are both %d", c.PerformanceStateHigh)
	}
	for _, id := range c.GPUs {
		if id < 0 {
			return fmt.Errorf("gpus: negative device index %d", id)
		}
	}
	return nil
}
