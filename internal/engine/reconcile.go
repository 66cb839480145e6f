// Copyright The Pstated Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"log/slog"

	"github.com/platformbuilds/pstated/internal/backend"
)

// reconcile matches the two backend enumerations of the same physical GPUs
// by PCI bus id and produces the canonical device list, ordered by the
// telemetry enumeration. Neither backend guarantees an ordering, and the
// orderings are not comparable across backends.
//
// A telemetry device without a power-control counterpart is fatal. A
// duplicate bus id on either side is fatal too: binding an arbitrary match
// could force a pstate on the wrong physical GPU. Power-control devices
// with no telemetry counterpart are logged and ignored.
func reconcile(telDevs []backend.TelemetryDevice, powDevs []backend.PowerDevice, log *slog.Logger) ([]*device, error) {
	byBus := make(map[uint32]backend.PowerDevice, len(powDevs))
	for i, p := range powDevs {
		bus, err := p.BusID()
		if err != nil {
			return nil, fmt.Errorf("power-control bus id for device %d: %w", i, err)
		}
		if _, dup := byBus[bus]; dup {
			return nil, fmt.Errorf("%w: power-control backend reports bus id %d twice", ErrDeviceMismatch, bus)
		}
		byBus[bus] = p
	}

	seen := make(map[uint32]int, len(telDevs))
	devices := make([]*device, 0, len(telDevs))
	for i, t := range telDevs {
		bus, err := t.BusID()
		if err != nil {
			return nil, fmt.Errorf("telemetry bus id for device %d: %w", i, err)
		}
		if prev, dup := seen[bus]; dup {
			return nil, fmt.Errorf("%w: telemetry backend reports bus id %d for both device %d and %d", ErrDeviceMismatch, bus, prev, i)
		}
		seen[bus] = i
		p, ok := byBus[bus]
		if !ok {
			return nil, fmt.Errorf("%w: no power-control device for bus id %d (gpu %d)", ErrDeviceMismatch, bus, i)
		}
		delete(byBus, bus)
		devices = append(devices, &device{index: i, tel: t, pow: p})
	}

	for bus := range byBus {
		log.Warn("power-control device has no telemetry counterpart, ignoring", "bus", bus)
	}
	return devices, nil
}
