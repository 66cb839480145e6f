// Copyright The Pstated Authors
// SPDX-License-Identifier: Apache-2.0

// Package backend defines the two hardware-control surfaces pstated drives:
// the telemetry side (NVML) and the performance-state side (NVAPI). The
// engine only ever talks to these interfaces; the vendor-library adapters
// live in internal/nvml and internal/nvapi.
package backend

import "errors"

// ErrUnavailable reports that a vendor library could not be loaded or
// initialized. It aborts startup; pstated never runs half-blind.
var ErrUnavailable = errors.New("backend unavailable")

// TelemetryDevice is one physical GPU as enumerated by the telemetry
// backend. All calls are blocking and may fail per-call.
type TelemetryDevice interface {
	// BusID returns the PCI bus number, the identity shared with the
	// power-control backend.
	BusID() (uint32, error)

	// Name returns the marketing name of the GPU.
	Name() (string, error)

	// Temperature returns the current GPU core temperature in °C.
	Temperature() (uint32, error)

	// Utilization returns the current GPU utilization in percent.
	Utilization() (uint32, error)

	// SupportedMemoryClocks returns every memory clock the device
	// supports, in MHz, in no particular order.
	SupportedMemoryClocks() ([]uint32, error)

	// SupportedGraphicsClocks returns every graphics clock supported at
	// the given memory clock, in MHz.
	SupportedGraphicsClocks(memClockMHz uint32) ([]uint32, error)

	// SetApplicationClocks pins the application memory and graphics
	// clocks to the given frequencies.
	SetApplicationClocks(memClockMHz, gpuClockMHz uint32) error

	// ResetApplicationClocks returns clock selection to the driver.
	ResetApplicationClocks() error
}

// Telemetry enumerates GPUs and hands out per-device telemetry handles.
type Telemetry interface {
	Init() error
	Devices() ([]TelemetryDevice, error)
	Shutdown() error
}

// PowerDevice is one physical GPU as enumerated by the power-control
// backend. Its ordering has no relation to the telemetry ordering; the
// engine reconciles the two by bus id.
type PowerDevice interface {
	// BusID returns the PCI bus number.
	BusID() (uint32, error)

	// ForcePerformanceState forces the GPU into the given pstate id.
	ForcePerformanceState(pstateID uint32) error
}

// PowerControl enumerates GPUs and hands out per-device pstate handles.
type PowerControl interface {
	Init() error
	Devices() ([]PowerDevice, error)
	Unload() error
}
