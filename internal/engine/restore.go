// Copyright The Pstated Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"errors"
	"fmt"
)

// autoPerformanceState is the vendor's "driver decides" pstate id. Restore
// always uses this literal, not the configured high state: the point is to
// hand control back, not to force maximum clocks.
const autoPerformanceState = 16

// restore returns every managed GPU to an automatic clock regime: a reset
// of application clocks for devices that ended up in fallback mode, one
// final coarse transition otherwise. Best-effort; all failures are
// collected rather than stopping at the first.
func (e *Engine) restore() error {
	var errs []error
	for _, d := range e.devices {
		if !d.managed {
			continue
		}
		if d.state.fallback != nil {
			if err := d.tel.ResetApplicationClocks(); err != nil {
				errs = append(errs, fmt.Errorf("gpu %d: reset clocks: %w", d.index, err))
				continue
			}
			e.log.Info("clocks restored to automatic", "gpu", d.index)
		} else {
			if err := d.pow.ForcePerformanceState(autoPerformanceState); err != nil {
				errs = append(errs, fmt.Errorf("%w: gpu %d: restore pstate %d: %v", ErrPowerControlFailed, d.index, autoPerformanceState, err))
				continue
			}
			e.log.Info("performance state restored to automatic", "gpu", d.index, "pstate", autoPerformanceState)
		}
	}
	return errors.Join(errs...)
}
