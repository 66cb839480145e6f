// Copyright The Pstated Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine decides, every tick, which performance state each managed
// GPU should be in. It reconciles the telemetry and power-control device
// enumerations into one index space, runs a hysteresis state machine per
// GPU, and degrades from pstate forcing to direct clock control when the
// driver refuses the former.
package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/platformbuilds/pstated/internal/backend"
	"github.com/platformbuilds/pstated/internal/config"
)

var (
	// ErrDeviceMismatch means the two backends could not be reconciled
	// into one device list. Controlling a GPU whose power handle is
	// uncertain is never attempted.
	ErrDeviceMismatch = errors.New("device reconciliation failed")

	// ErrNoSupportedClocks means a clock capability probe returned an
	// empty set, so the clock-control fallback cannot work.
	ErrNoSupportedClocks = errors.New("no supported clocks")

	// ErrPowerControlFailed means a pstate or clock command failed with
	// no remaining fallback.
	ErrPowerControlFailed = errors.New("power control failed")

	// ErrTelemetryReadFailed means a mid-loop temperature or utilization
	// read failed. The loop stops rather than guessing.
	ErrTelemetryReadFailed = errors.New("telemetry read failed")
)

// perfTarget is the logical operating point commanded for a GPU. The
// concrete pstate id or clock pair comes from configuration.
type perfTarget int

const (
	targetUnknown perfTarget = iota
	targetHigh
	targetLow
)

func (t perfTarget) String() string {
	switch t {
	case targetHigh:
		return "high"
	case targetLow:
		return "low"
	}
	return "unknown"
}

// clockFloor is the lowest supported memory/graphics clock pair of a GPU,
// discovered by the capability probe.
type clockFloor struct {
	memMHz uint32
	gpuMHz uint32
}

// device pairs the two backend handles for one physical GPU under its
// canonical index. Handles never change after reconciliation.
type device struct {
	index   int
	tel     backend.TelemetryDevice
	pow     backend.PowerDevice
	managed bool

	state deviceState
}

// deviceState is owned by the state machine; nothing outside this package
// mutates it.
type deviceState struct {
	// target is the last commanded operating point. targetUnknown until
	// the startup transition runs.
	target perfTarget

	// idleTicks counts consecutive idle observations while the GPU is
	// still high. Reset on every transition and on busy observations.
	idleTicks uint32

	// floor caches the probe result so the probe runs at most once.
	floor *clockFloor

	// fallback is non-nil once pstate control has failed for this GPU.
	// It holds the clock floor in use and never reverts to nil.
	fallback *clockFloor

	// Last commanded application clocks; zero means automatic.
	curMemMHz uint32
	curGPUMHz uint32
}

type Engine struct {
	cfg     *config.Config
	tel     backend.Telemetry
	pow     backend.PowerControl
	metrics *Metrics
	log     *slog.Logger

	devices []*device

	telReady bool
	powReady bool
}

func New(cfg *config.Config, tel backend.Telemetry, pow backend.PowerControl, metrics *Metrics) *Engine {
	return &Engine{
		cfg:     cfg,
		tel:     tel,
		pow:     pow,
		metrics: metrics,
		log:     slog.Default().With("component", "engine"),
	}
}

// Start initializes both backends, reconciles their device enumerations,
// marks the managed set, probes clock floors, and forces every managed GPU
// into the low-performance state. Any error here aborts the run.
func (e *Engine) Start() error {
	if err := e.pow.Init(); err != nil {
		return err
	}
	e.powReady = true
	if err := e.tel.Init(); err != nil {
		return err
	}
	e.telReady = true

	telDevs, err := e.tel.Devices()
	if err != nil {
		return err
	}
	powDevs, err := e.pow.Devices()
	if err != nil {
		return err
	}

	devices, err := reconcile(telDevs, powDevs, e.log)
	if err != nil {
		return err
	}
	e.devices = devices

	if err := e.selectManaged(); err != nil {
		return err
	}

	if !e.cfg.Fallback.Disabled {
		e.probeFloors()
	}

	// Establish a defined starting point: everything managed goes low.
	for _, d := range e.devices {
		if err := e.transition(d, targetLow); err != nil {
			return err
		}
	}
	return nil
}

// selectManaged applies the configured id list; an empty list manages all.
func (e *Engine) selectManaged() error {
	if len(e.cfg.GPUs) == 0 {
		for _, d := range e.devices {
			d.managed = true
		}
	} else {
		for _, id := range e.cfg.GPUs {
			if id < 0 || id >= len(e.devices) {
				e.log.Warn("ignoring invalid GPU id", "gpu", id, "devices", len(e.devices))
				continue
			}
			e.devices[id].managed = true
		}
	}

	managed := 0
	for _, d := range e.devices {
		if !d.managed {
			continue
		}
		name, err := d.tel.Name()
		if err != nil {
			return fmt.Errorf("%w: gpu %d: name: %v", ErrTelemetryReadFailed, d.index, err)
		}
		e.log.Info("managing GPU", "gpu", d.index, "name", name)
		managed++
	}
	if managed == 0 {
		return errors.New("no GPUs to manage")
	}
	e.log.Info("engine ready", "managed", managed, "devices", len(e.devices))
	return nil
}

// probeFloors eagerly discovers clock floors for every managed GPU so a
// later fallback does not have to probe mid-loop. Failure here is only a
// warning; the lazy probe in the state machine remains, and a failure
// there is fatal.
func (e *Engine) probeFloors() {
	for _, d := range e.devices {
		if !d.managed || d.state.floor != nil {
			continue
		}
		floor, err := probeClockFloor(d.tel)
		if err != nil {
			e.log.Warn("clock probe failed, fallback mode may not work", "gpu", d.index, "error", err)
			continue
		}
		d.state.floor = floor
		e.log.Info("lowest supported clocks", "gpu", d.index, "mem_mhz", floor.memMHz, "gpu_mhz", floor.gpuMHz)
	}
}

// Close releases both backends. Safe to call after a failed Start.
func (e *Engine) Close() error {
	var errs []error
	if e.powReady {
		e.powReady = false
		if err := e.pow.Unload(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.telReady {
		e.telReady = false
		if err := e.tel.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
