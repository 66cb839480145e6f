// Copyright The Pstated Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"

	"github.com/platformbuilds/pstated/internal/backend"
)

// probeClockFloor discovers the lowest supported memory clock and, at that
// memory clock, the lowest supported graphics clock. The graphics clock set
// depends on the chosen memory clock, so the queries cannot be swapped.
// Idempotent; callers cache the result per device.
func probeClockFloor(d backend.TelemetryDevice) (*clockFloor, error) {
	memClocks, err := d.SupportedMemoryClocks()
	if err != nil {
		return nil, fmt.Errorf("supported memory clocks: %w", err)
	}
	if len(memClocks) == 0 {
		return nil, fmt.Errorf("%w: empty memory clock set", ErrNoSupportedClocks)
	}
	minMem := memClocks[0]
	for _, c := range memClocks[1:] {
		if c < minMem {
			minMem = c
		}
	}

	gpuClocks, err := d.SupportedGraphicsClocks(minMem)
	if err != nil {
		return nil, fmt.Errorf("supported graphics clocks at %d MHz: %w", minMem, err)
	}
	if len(gpuClocks) == 0 {
		return nil, fmt.Errorf("%w: empty graphics clock set at %d MHz", ErrNoSupportedClocks, minMem)
	}
	minGPU := gpuClocks[0]
	for _, c := range gpuClocks[1:] {
		if c < minGPU {
			minGPU = c
		}
	}

	return &clockFloor{memMHz: minMem, gpuMHz: minGPU}, nil
}
