package engine

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/platformbuilds/pstated/internal/backend"
	"github.com/platformbuilds/pstated/internal/config"
)

// fakeTelemetryDevice scripts temperature and utilization reads: values are
// consumed one per call and the last value repeats.
type fakeTelemetryDevice struct {
	bus  uint32
	name string

	temps []uint32
	utils []uint32

	memClocks []uint32
	gpuClocks []uint32

	tempErr  error
	utilErr  error
	memErr   error
	gpuErr   error
	setErr   error
	resetErr error

	tempReads  int
	utilReads  int
	memReads   int
	gpuReads   int
	probedAt   []uint32
	setCalls   [][2]uint32
	resetCalls int
}

func scripted(vals []uint32, cursor int) uint32 {
	if len(vals) == 0 {
		return 0
	}
	if cursor >= len(vals) {
		cursor = len(vals) - 1
	}
	return vals[cursor]
}

func (f *fakeTelemetryDevice) BusID() (uint32, error) { return f.bus, nil }

func (f *fakeTelemetryDevice) Name() (string, error) {
	if f.name == "" {
		return "Fake GPU", nil
	}
	return f.name, nil
}

func (f *fakeTelemetryDevice) Temperature() (uint32, error) {
	if f.tempErr != nil {
		return 0, f.tempErr
	}
	v := scripted(f.temps, f.tempReads)
	f.tempReads++
	return v, nil
}

func (f *fakeTelemetryDevice) Utilization() (uint32, error) {
	if f.utilErr != nil {
		return 0, f.utilErr
	}
	v := scripted(f.utils, f.utilReads)
	f.utilReads++
	return v, nil
}

func (f *fakeTelemetryDevice) SupportedMemoryClocks() ([]uint32, error) {
	f.memReads++
	if f.memErr != nil {
		return nil, f.memErr
	}
	return f.memClocks, nil
}

func (f *fakeTelemetryDevice) SupportedGraphicsClocks(memClockMHz uint32) ([]uint32, error) {
	f.gpuReads++
	f.probedAt = append(f.probedAt, memClockMHz)
	if f.gpuErr != nil {
		return nil, f.gpuErr
	}
	return f.gpuClocks, nil
}

func (f *fakeTelemetryDevice) SetApplicationClocks(memClockMHz, gpuClockMHz uint32) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.setCalls = append(f.setCalls, [2]uint32{memClockMHz, gpuClockMHz})
	return nil
}

func (f *fakeTelemetryDevice) ResetApplicationClocks() error {
	if f.resetErr != nil {
		return f.resetErr
	}
	f.resetCalls++
	return nil
}

// fakePowerDevice records every forced pstate. forceFailures fails that
// many calls before succeeding; forceErr fails every call.
type fakePowerDevice struct {
	bus uint32

	forceErr      error
	forceFailures int

	attempts []uint32
	forced   []uint32
}

func (f *fakePowerDevice) BusID() (uint32, error) { return f.bus, nil }

func (f *fakePowerDevice) ForcePerformanceState(pstateID uint32) error {
	f.attempts = append(f.attempts, pstateID)
	if f.forceErr != nil {
		return f.forceErr
	}
	if f.forceFailures > 0 {
		f.forceFailures--
		return errors.New("pstate rejected")
	}
	f.forced = append(f.forced, pstateID)
	return nil
}

type fakeTelemetry struct {
	devs      []backend.TelemetryDevice
	initErr   error
	shutdowns int
}

func (f *fakeTelemetry) Init() error { return f.initErr }

func (f *fakeTelemetry) Devices() ([]backend.TelemetryDevice, error) { return f.devs, nil }

func (f *fakeTelemetry) Shutdown() error {
	f.shutdowns++
	return nil
}

type fakePower struct {
	devs    []backend.PowerDevice
	initErr error
	unloads int
}

func (f *fakePower) Init() error { return f.initErr }

func (f *fakePower) Devices() ([]backend.PowerDevice, error) { return f.devs, nil }

func (f *fakePower) Unload() error {
	f.unloads++
	return nil
}

func quietClocks(f *fakeTelemetryDevice) *fakeTelemetryDevice {
	if f.memClocks == nil {
		f.memClocks = []uint32{405, 810, 5001}
	}
	if f.gpuClocks == nil {
		f.gpuClocks = []uint32{300, 1500, 2100}
	}
	return f
}

func newTestEngine(t *testing.T, cfg *config.Config, tel backend.Telemetry, pow backend.PowerControl) *Engine {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	m := NewMetrics("test", prometheus.NewRegistry())
	return New(cfg, tel, pow, m)
}

// newLoopEngine builds an engine with pre-reconciled devices, bypassing
// Start, so loop and state-machine behavior can be driven tick by tick.
func newLoopEngine(t *testing.T, cfg *config.Config, devs ...*device) *Engine {
	t.Helper()
	e := newTestEngine(t, cfg, &fakeTelemetry{}, &fakePower{})
	e.devices = devs
	return e
}
