// Copyright The Pstated Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

// Package nvapi adapts the NVIDIA driver's NVAPI surface to the
// power-control backend interface. NVAPI exports a single symbol,
// nvapi_QueryInterface; every entry point is resolved from it by a fixed
// interface id. Only the handful of calls pstated needs are bound.
package nvapi

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/platformbuilds/pstated/internal/backend"
)

// Interface ids understood by nvapi_QueryInterface.
const (
	idInitialize       = 0x0150E828
	idUnload           = 0xD22BDD7E
	idEnumPhysicalGPUs = 0xE5AC921F
	idGPUGetBusID      = 0x1BE0B8E5
	idGPUSetForcePstat = 0x025BFB10
	idGetErrorMessage  = 0x6C2D048C
)

const (
	statusOK = 0

	// NVAPI_MAX_PHYSICAL_GPUS
	maxPhysicalGPUs = 64

	// NVAPI_SHORT_STRING_MAX
	shortStringMax = 64
)

type Backend struct {
	lib uintptr

	fnInitialize uintptr
	fnUnload     uintptr
	fnEnum       uintptr
	fnGetBusID   uintptr
	fnForce      uintptr
	fnErrMsg     uintptr
}

func New() *Backend { return &Backend{} }

func (b *Backend) Init() error {
	lib, err := purego.Dlopen("libnvidia-api.so.1", purego.RTLD_LAZY|purego.RTLD_LOCAL)
	if err != nil {
		lib, err = purego.Dlopen("libnvidia-api.so", purego.RTLD_LAZY|purego.RTLD_LOCAL)
	}
	if err != nil {
		return fmt.Errorf("%w: load nvapi library: %v", backend.ErrUnavailable, err)
	}
	b.lib = lib

	query, err := purego.Dlsym(lib, "nvapi_QueryInterface")
	if err != nil {
		return fmt.Errorf("%w: resolve nvapi_QueryInterface: %v", backend.ErrUnavailable, err)
	}
	resolve := func(id uintptr) uintptr {
		addr, _, _ := purego.SyscallN(query, id)
		return addr
	}
	b.fnInitialize = resolve(idInitialize)
	b.fnUnload = resolve(idUnload)
	b.fnEnum = resolve(idEnumPhysicalGPUs)
	b.fnGetBusID = resolve(idGPUGetBusID)
	b.fnForce = resolve(idGPUSetForcePstat)
	b.fnErrMsg = resolve(idGetErrorMessage)
	if b.fnInitialize == 0 {
		return fmt.Errorf("%w: NvAPI_Initialize not exported by driver", backend.ErrUnavailable)
	}

	if st := b.call(b.fnInitialize); st != statusOK {
		return fmt.Errorf("%w: NvAPI_Initialize: %s", backend.ErrUnavailable, b.statusString(st))
	}
	return nil
}

func (b *Backend) Unload() error {
	if b.fnUnload == 0 {
		return nil
	}
	if st := b.call(b.fnUnload); st != statusOK {
		return fmt.Errorf("NvAPI_Unload: %s", b.statusString(st))
	}
	return nil
}

func (b *Backend) Devices() ([]backend.PowerDevice, error) {
	if b.fnEnum == 0 {
		return nil, fmt.Errorf("NvAPI_EnumPhysicalGPUs not exported by driver")
	}
	var handles [maxPhysicalGPUs]uintptr
	var count uint32
	st := b.call(b.fnEnum,
		uintptr(unsafe.Pointer(&handles[0])),
		uintptr(unsafe.Pointer(&count)))
	if st != statusOK {
		return nil, fmt.Errorf("NvAPI_EnumPhysicalGPUs: %s", b.statusString(st))
	}
	devices := make([]backend.PowerDevice, 0, count)
	for i := 0; i < int(count); i++ {
		devices = append(devices, &device{b: b, handle: handles[i]})
	}
	return devices, nil
}

// call invokes a resolved NVAPI entry point and returns its NvAPI_Status.
func (b *Backend) call(fn uintptr, args ...uintptr) int32 {
	r1, _, _ := purego.SyscallN(fn, args...)
	return int32(uint32(r1))
}

// statusString asks the driver for a human-readable message for a status.
func (b *Backend) statusString(status int32) string {
	if b.fnErrMsg != 0 {
		var buf [shortStringMax]byte
		st := b.call(b.fnErrMsg, uintptr(status), uintptr(unsafe.Pointer(&buf[0])))
		if st == statusOK {
			n := 0
			for n < len(buf) && buf[n] != 0 {
				n++
			}
			if n > 0 {
				return string(buf[:n])
			}
		}
	}
	return fmt.Sprintf("nvapi status %d", status)
}

type device struct {
	b      *Backend
	handle uintptr
}

func (d *device) BusID() (uint32, error) {
	if d.b.fnGetBusID == 0 {
		return 0, fmt.Errorf("NvAPI_GPU_GetBusId not exported by driver")
	}
	var bus uint32
	st := d.b.call(d.b.fnGetBusID, d.handle, uintptr(unsafe.Pointer(&bus)))
	if st != statusOK {
		return 0, fmt.Errorf("NvAPI_GPU_GetBusId: %s", d.b.statusString(st))
	}
	return bus, nil
}

func (d *device) ForcePerformanceState(pstateID uint32) error {
	if d.b.fnForce == 0 {
		return fmt.Errorf("NvAPI_GPU_SetForcePstate not exported by driver")
	}
	st := d.b.call(d.b.fnForce, d.handle, uintptr(pstateID), 0)
	if st != statusOK {
		return fmt.Errorf("NvAPI_GPU_SetForcePstate(%d): %s", pstateID, d.b.statusString(st))
	}
	return nil
}
