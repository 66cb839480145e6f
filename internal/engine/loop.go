// Copyright The Pstated Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Run executes the control loop until the context is cancelled or a fatal
// error occurs, then restores every managed GPU to automatic control.
// Cancellation is only observed between ticks; an in-flight transition
// always completes.
//
// On cancellation, restoration failures are logged and Run returns nil. On
// a fatal error, restoration still runs and its failures are folded into
// the returned error.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.TickInterval())
	defer ticker.Stop()

	var runErr error
loop:
	for {
		if ctx.Err() != nil {
			break
		}
		if err := e.tick(); err != nil {
			runErr = err
			break
		}
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}
	}

	restoreErr := e.restore()
	if runErr != nil {
		return errors.Join(runErr, restoreErr)
	}
	if restoreErr != nil {
		e.log.Warn("device restoration incomplete", "error", restoreErr)
	}
	return nil
}

// tick runs one sequential pass over all devices. Thermal safety is
// evaluated first and unconditionally: an overheating GPU goes low and its
// utilization is not even read that tick.
func (e *Engine) tick() error {
	start := time.Now()
	defer func() {
		e.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	for _, d := range e.devices {
		gpu := strconv.Itoa(d.index)

		temp, err := d.tel.Temperature()
		if err != nil {
			e.metrics.TelemetryErrors.Inc()
			return fmt.Errorf("%w: gpu %d: temperature: %v", ErrTelemetryReadFailed, d.index, err)
		}
		e.metrics.Temperature.WithLabelValues(gpu).Set(float64(temp))

		if temp > e.cfg.TemperatureThreshold {
			if d.state.target != targetLow {
				if err := e.transition(d, targetLow); err != nil {
					return err
				}
			}
			continue
		}

		util, err := d.tel.Utilization()
		if err != nil {
			e.metrics.TelemetryErrors.Inc()
			return fmt.Errorf("%w: gpu %d: utilization: %v", ErrTelemetryReadFailed, d.index, err)
		}
		e.metrics.Utilization.WithLabelValues(gpu).Set(float64(util))

		s := &d.state
		switch {
		case util != 0:
			if s.target != targetHigh {
				if err := e.transition(d, targetHigh); err != nil {
					return err
				}
			} else {
				// Busy while already high refreshes the idle timer.
				s.idleTicks = 0
			}
		case s.target != targetLow:
			s.idleTicks++
			if s.idleTicks > e.cfg.IterationsBeforeSwitch {
				if err := e.transition(d, targetLow); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
