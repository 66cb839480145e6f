// Copyright The Pstated Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !with_nvml

// Package nvml adapts the NVIDIA Management Library to the telemetry
// backend interface. This stub is compiled when the with_nvml build tag is
// absent; it fails initialization instead of pretending to see GPUs.
package nvml

import (
	"fmt"

	"github.com/platformbuilds/pstated/internal/backend"
)

type Backend struct{}

func New() *Backend { return &Backend{} }

func (m *Backend) Init() error {
	return fmt.Errorf("%w: pstated built without NVML support (build with -tags with_nvml)", backend.ErrUnavailable)
}

func (m *Backend) Shutdown() error { return nil }

func (m *Backend) Devices() ([]backend.TelemetryDevice, error) {
	return nil, fmt.Errorf("%w: pstated built without NVML support", backend.ErrUnavailable)
}
