package engine

import (
	"errors"
	"testing"
)

func TestProbePicksLowestClocks(t *testing.T) {
	d := &fakeTelemetryDevice{
		memClocks: []uint32{5001, 405, 810},
		gpuClocks: []uint32{2100, 300, 1500},
	}
	floor, err := probeClockFloor(d)
	if err != nil {
		t.Fatalf("probeClockFloor: %v", err)
	}
	if floor.memMHz != 405 || floor.gpuMHz != 300 {
		t.Errorf("floor = %d/%d MHz, want 405/300", floor.memMHz, floor.gpuMHz)
	}
	// The graphics query must be conditioned on the minimum memory clock.
	if len(d.probedAt) != 1 || d.probedAt[0] != 405 {
		t.Errorf("graphics clocks probed at %v, want [405]", d.probedAt)
	}
}

func TestProbeEmptyMemoryClockSet(t *testing.T) {
	d := &fakeTelemetryDevice{memClocks: []uint32{}}
	_, err := probeClockFloor(d)
	if !errors.Is(err, ErrNoSupportedClocks) {
		t.Fatalf("err = %v, want ErrNoSupportedClocks", err)
	}
}

func TestProbeEmptyGraphicsClockSet(t *testing.T) {
	d := &fakeTelemetryDevice{memClocks: []uint32{405}, gpuClocks: []uint32{}}
	_, err := probeClockFloor(d)
	if !errors.Is(err, ErrNoSupportedClocks) {
		t.Fatalf("err = %v, want ErrNoSupportedClocks", err)
	}
}

func TestProbeBackendErrorIsNotNoSupportedClocks(t *testing.T) {
	readErr := errors.New("nvml fell over")
	d := &fakeTelemetryDevice{memErr: readErr}
	_, err := probeClockFloor(d)
	if err == nil {
		t.Fatal("probeClockFloor succeeded with failing backend")
	}
	if errors.Is(err, ErrNoSupportedClocks) {
		t.Errorf("backend failure classified as ErrNoSupportedClocks: %v", err)
	}
	if !errors.Is(err, readErr) {
		t.Errorf("err = %v, want wrapped backend error", err)
	}
}
