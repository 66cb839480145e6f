package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultMatchesHistoricalConstants(t *testing.T) {
	c := Default()
	if c.IterationsBeforeSwitch != 30 {
		t.Errorf("IterationsBeforeSwitch = %d, want 30", c.IterationsBeforeSwitch)
	}
	if c.PerformanceStateHigh != 16 || c.PerformanceStateLow != 8 {
		t.Errorf("pstates = %d/%d, want 16/8", c.PerformanceStateHigh, c.PerformanceStateLow)
	}
	if c.TemperatureThreshold != 80 {
		t.Errorf("TemperatureThreshold = %d, want 80", c.TemperatureThreshold)
	}
	if got := c.TickInterval(); got != 100*time.Millisecond {
		t.Errorf("TickInterval = %v, want 100ms", got)
	}
	if c.Fallback.Disabled {
		t.Error("fallback disabled by default, want enabled")
	}
	if len(c.GPUs) != 0 {
		t.Errorf("GPUs = %v, want empty (all)", c.GPUs)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
gpus: [0, 2]
temperature_threshold: 75
fallback:
  clock_mem_low: 405
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := c.GPUs; len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("GPUs = %v, want [0 2]", got)
	}
	if c.TemperatureThreshold != 75 {
		t.Errorf("TemperatureThreshold = %d, want 75", c.TemperatureThreshold)
	}
	if c.Fallback.ClockMemLow != 405 {
		t.Errorf("ClockMemLow = %d, want 405", c.Fallback.ClockMemLow)
	}
	// Untouched keys keep defaults.
	if c.IterationsBeforeSwitch != 30 || c.PerformanceStateHigh != 16 {
		t.Errorf("defaults lost: ibs=%d psh=%d", c.IterationsBeforeSwitch, c.PerformanceStateHigh)
	}
	if c.SelfTelemetry.Listen != ":19090" {
		t.Errorf("Listen = %q, want :19090", c.SelfTelemetry.Listen)
	}
}

func TestLoadRejectsBadInterval(t *testing.T) {
	path := writeConfig(t, "sleep_interval: soon\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted unparseable sleep_interval")
	}
	path = writeConfig(t, "sleep_interval: -5s\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted negative sleep_interval")
	}
}

func TestLoadRejectsEqualPstates(t *testing.T) {
	path := writeConfig(t, "performance_state_high: 8\nperformance_state_low: 8\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted high == low pstate")
	}
}

func TestLoadRejectsNegativeGPUIndex(t *testing.T) {
	path := writeConfig(t, "gpus: [-1]\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted negative gpu index")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load succeeded on missing file")
	}
}
