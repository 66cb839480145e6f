// Copyright The Pstated Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

// Stub for platforms where pstated does not load NVAPI dynamically.
package nvapi

import (
	"fmt"

	"github.com/platformbuilds/pstated/internal/backend"
)

type Backend struct{}

func New() *Backend { return &Backend{} }

func (b *Backend) Init() error {
	return fmt.Errorf("%w: nvapi loading not supported on this platform", backend.ErrUnavailable)
}

func (b *Backend) Unload() error { return nil }

func (b *Backend) Devices() ([]backend.PowerDevice, error) {
	return nil, fmt.Errorf("%w: nvapi loading not supported on this platform", backend.ErrUnavailable)
}
