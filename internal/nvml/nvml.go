// Copyright The Pstated Authors
// SPDX-License-Identifier: Apache-2.0

//go:build with_nvml

// Package nvml adapts the NVIDIA Management Library to the telemetry
// backend interface. Build with -tags with_nvml on a machine with the CUDA
// headers; the default build ships a stub that refuses to initialize.
package nvml

/*
#cgo LDFLAGS: -lnvidia-ml
#include <nvml.h>
*/
import "C"
import (
	"fmt"

	"github.com/platformbuilds/pstated/internal/backend"
)

// Buffer sizes for the supported-clock queries. NVML wants a caller-supplied
// buffer even when only counting, so these follow the driver's worst case.
const (
	maxMemoryClocks   = 256
	maxGraphicsClocks = 512
)

type Backend struct{}

func New() *Backend { return &Backend{} }

func errString(ret C.nvmlReturn_t) string {
	return C.GoString(C.nvmlErrorString(ret))
}

func (m *Backend) Init() error {
	if ret := C.nvmlInit(); ret != C.NVML_SUCCESS {
		return fmt.Errorf("%w: nvml init: %s", backend.ErrUnavailable, errString(ret))
	}
	return nil
}

func (m *Backend) Shutdown() error {
	if ret := C.nvmlShutdown(); ret != C.NVML_SUCCESS {
		return fmt.Errorf("nvml shutdown: %s", errString(ret))
	}
	return nil
}

func (m *Backend) Devices() ([]backend.TelemetryDevice, error) {
	var count C.uint
	if ret := C.nvmlDeviceGetCount(&count); ret != C.NVML_SUCCESS {
		return nil, fmt.Errorf("nvml device count: %s", errString(ret))
	}
	devices := make([]backend.TelemetryDevice, 0, int(count))
	for i := 0; i < int(count); i++ {
		var handle C.nvmlDevice_t
		if ret := C.nvmlDeviceGetHandleByIndex(C.uint(i), &handle); ret != C.NVML_SUCCESS {
			return nil, fmt.Errorf("nvml device handle %d: %s", i, errString(ret))
		}
		devices = append(devices, &device{handle: handle, index: i})
	}
	return devices, nil
}

type device struct {
	handle C.nvmlDevice_t
	index  int
}

func (d *device) BusID() (uint32, error) {
	var pci C.nvmlPciInfo_t
	if ret := C.nvmlDeviceGetPciInfo(d.handle, &pci); ret != C.NVML_SUCCESS {
		return 0, fmt.Errorf("nvml pci info for device %d: %s", d.index, errString(ret))
	}
	return uint32(pci.bus), nil
}

func (d *device) Name() (string, error) {
	var name [C.NVML_DEVICE_NAME_BUFFER_SIZE]C.char
	if ret := C.nvmlDeviceGetName(d.handle, &name[0], C.NVML_DEVICE_NAME_BUFFER_SIZE); ret != C.NVML_SUCCESS {
		return "", fmt.Errorf("nvml name for device %d: %s", d.index, errString(ret))
	}
	return C.GoString(&name[0]), nil
}

func (d *device) Temperature() (uint32, error) {
	var temp C.uint
	if ret := C.nvmlDeviceGetTemperature(d.handle, C.NVML_TEMPERATURE_GPU, &temp); ret != C.NVML_SUCCESS {
		return 0, fmt.Errorf("nvml temperature for device %d: %s", d.index, errString(ret))
	}
	return uint32(temp), nil
}

func (d *device) Utilization() (uint32, error) {
	var util C.nvmlUtilization_t
	if ret := C.nvmlDeviceGetUtilizationRates(d.handle, &util); ret != C.NVML_SUCCESS {
		return 0, fmt.Errorf("nvml utilization for device %d: %s", d.index, errString(ret))
	}
	return uint32(util.gpu), nil
}

func (d *device) SupportedMemoryClocks() ([]uint32, error) {
	clocks := make([]C.uint, maxMemoryClocks)
	count := C.uint(maxMemoryClocks)
	if ret := C.nvmlDeviceGetSupportedMemoryClocks(d.handle, &count, &clocks[0]); ret != C.NVML_SUCCESS {
		return nil, fmt.Errorf("nvml supported memory clocks for device %d: %s", d.index, errString(ret))
	}
	out := make([]uint32, int(count))
	for i := range out {
		out[i] = uint32(clocks[i])
	}
	return out, nil
}

func (d *device) SupportedGraphicsClocks(memClockMHz uint32) ([]uint32, error) {
	clocks := make([]C.uint, maxGraphicsClocks)
	count := C.uint(maxGraphicsClocks)
	if ret := C.nvmlDeviceGetSupportedGraphicsClocks(d.handle, C.uint(memClockMHz), &count, &clocks[0]); ret != C.NVML_SUCCESS {
		return nil, fmt.Errorf("nvml supported graphics clocks for device %d at %d MHz: %s", d.index, memClockMHz, errString(ret))
	}
	out := make([]uint32, int(count))
	for i := range out {
		out[i] = uint32(clocks[i])
	}
	return out, nil
}

func (d *device) SetApplicationClocks(memClockMHz, gpuClockMHz uint32) error {
	if ret := C.nvmlDeviceSetApplicationsClocks(d.handle, C.uint(memClockMHz), C.uint(gpuClockMHz)); ret != C.NVML_SUCCESS {
		return fmt.Errorf("nvml set clocks for device %d to mem %d MHz, gpu %d MHz: %s", d.index, memClockMHz, gpuClockMHz, errString(ret))
	}
	return nil
}

func (d *device) ResetApplicationClocks() error {
	if ret := C.nvmlDeviceResetApplicationsClocks(d.handle); ret != C.NVML_SUCCESS {
		return fmt.Errorf("nvml reset clocks for device %d: %s", d.index, errString(ret))
	}
	return nil
}
