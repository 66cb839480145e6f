// Copyright The Pstated Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"strconv"
)

// transition drives one device toward the target operating point. This is
// the only way device state changes.
//
// Unmanaged devices are a no-op success, so callers never special-case
// them. Devices already in clock-fallback mode skip pstate control
// entirely. Otherwise the pstate command is attempted; on failure the
// device switches to clock control permanently (if fallback is enabled) and
// the same call finishes through the clock path.
func (e *Engine) transition(d *device, target perfTarget) error {
	if !d.managed {
		return nil
	}
	s := &d.state

	if s.fallback != nil {
		return e.applyClocks(d, target)
	}

	pstate := e.pstateID(target)
	if err := d.pow.ForcePerformanceState(pstate); err != nil {
		if e.cfg.Fallback.Disabled {
			return fmt.Errorf("%w: gpu %d: force pstate %d: %v", ErrPowerControlFailed, d.index, pstate, err)
		}
		e.log.Warn("pstate control failed, switching to clock control", "gpu", d.index, "error", err)

		floor := s.floor
		if floor == nil {
			f, perr := probeClockFloor(d.tel)
			if perr != nil {
				return fmt.Errorf("gpu %d: cannot enter clock fallback: %w", d.index, perr)
			}
			s.floor = f
			floor = f
		}
		s.fallback = floor
		e.metrics.FallbackActive.WithLabelValues(strconv.Itoa(d.index)).Set(1)
		return e.applyClocks(d, target)
	}

	s.target = target
	s.idleTicks = 0
	e.metrics.Transitions.WithLabelValues(strconv.Itoa(d.index), target.String()).Inc()
	e.log.Info("entered performance state", "gpu", d.index, "pstate", pstate)
	return nil
}

func (e *Engine) pstateID(target perfTarget) uint32 {
	if target == targetHigh {
		return e.cfg.PerformanceStateHigh
	}
	return e.cfg.PerformanceStateLow
}

// applyClocks commands explicit application clocks for a device in
// fallback mode. High with both override frequencies at zero means "hand
// clock selection back to the driver", which is a reset call, not a
// set-to-zero. Low with a zero override substitutes the probed floor.
func (e *Engine) applyClocks(d *device, target perfTarget) error {
	s := &d.state
	fb := e.cfg.Fallback

	if target == targetHigh && fb.ClockMemHigh == 0 && fb.ClockGPUHigh == 0 {
		if err := d.tel.ResetApplicationClocks(); err != nil {
			return fmt.Errorf("%w: gpu %d: reset clocks: %v", ErrPowerControlFailed, d.index, err)
		}
		s.curMemMHz, s.curGPUMHz = 0, 0
		e.log.Info("clocks reset to automatic", "gpu", d.index)
	} else {
		var memMHz, gpuMHz uint32
		if target == targetHigh {
			memMHz, gpuMHz = fb.ClockMemHigh, fb.ClockGPUHigh
		} else {
			memMHz, gpuMHz = fb.ClockMemLow, fb.ClockGPULow
			if memMHz == 0 {
				memMHz = s.fallback.memMHz
			}
			if gpuMHz == 0 {
				gpuMHz = s.fallback.gpuMHz
			}
		}
		if err := d.tel.SetApplicationClocks(memMHz, gpuMHz); err != nil {
			return fmt.Errorf("%w: gpu %d: set clocks mem %d MHz gpu %d MHz: %v", ErrPowerControlFailed, d.index, memMHz, gpuMHz, err)
		}
		s.curMemMHz, s.curGPUMHz = memMHz, gpuMHz
		e.log.Info("clocks set", "gpu", d.index, "mem_mhz", memMHz, "gpu_mhz", gpuMHz)
	}

	s.target = target
	s.idleTicks = 0
	e.metrics.Transitions.WithLabelValues(strconv.Itoa(d.index), target.String()).Inc()
	return nil
}
