// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

//go:build opencl

package opencl

/*
#cgo CFLAGS: -DCL_TARGET_OPENCL_VERSION=120 -DCL_USE_DEPRECATED_OPENCL_1_2_APIS -Wno-deprecated-declarations
#cgo linux LDFLAGS: -lOpenCL
#cgo windows LDFLAGS: -lOpenCL
#cgo darwin LDFLAGS: -framework OpenCL

#ifdef __APPLE__
#include <OpenCL/opencl.h>
#else
#include <CL/cl.h>
#endif

#ifndef CL_PLATFORM_NOT_FOUND_KHR
#define CL_PLATFORM_NOT_FOUND_KHR -1001
#endif
*/
import "C"

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/mathaccel/mathaccel/backends"
	"github.com/pkg/errors"
)

var errorNames = map[C.cl_int]string{
	C.CL_DEVICE_NOT_FOUND:              "CL_DEVICE_NOT_FOUND",
	C.CL_DEVICE_NOT_AVAILABLE:          "CL_DEVICE_NOT_AVAILABLE",
	C.CL_COMPILER_NOT_AVAILABLE:        "CL_COMPILER_NOT_AVAILABLE",
	C.CL_MEM_OBJECT_ALLOCATION_FAILURE: "CL_MEM_OBJECT_ALLOCATION_FAILURE",
	C.CL_OUT_OF_RESOURCES:              "CL_OUT_OF_RESOURCES",
	C.CL_OUT_OF_HOST_MEMORY:            "CL_OUT_OF_HOST_MEMORY",
	C.CL_BUILD_PROGRAM_FAILURE:         "CL_BUILD_PROGRAM_FAILURE",
	C.CL_INVALID_VALUE:                 "CL_INVALID_VALUE",
	C.CL_INVALID_DEVICE_TYPE:           "CL_INVALID_DEVICE_TYPE",
	C.CL_INVALID_PLATFORM:              "CL_INVALID_PLATFORM",
	C.CL_INVALID_DEVICE:                "CL_INVALID_DEVICE",
	C.CL_INVALID_CONTEXT:               "CL_INVALID_CONTEXT",
	C.CL_INVALID_QUEUE_PROPERTIES:      "CL_INVALID_QUEUE_PROPERTIES",
	C.CL_INVALID_COMMAND_QUEUE:         "CL_INVALID_COMMAND_QUEUE",
	C.CL_INVALID_HOST_PTR:              "CL_INVALID_HOST_PTR",
	C.CL_INVALID_MEM_OBJECT:            "CL_INVALID_MEM_OBJECT",
	C.CL_INVALID_BUFFER_SIZE:           "CL_INVALID_BUFFER_SIZE",
	C.CL_INVALID_BINARY:                "CL_INVALID_BINARY",
	C.CL_INVALID_BUILD_OPTIONS:         "CL_INVALID_BUILD_OPTIONS",
	C.CL_INVALID_PROGRAM:               "CL_INVALID_PROGRAM",
	C.CL_INVALID_PROGRAM_EXECUTABLE:    "CL_INVALID_PROGRAM_EXECUTABLE",
	C.CL_INVALID_KERNEL_NAME:           "CL_INVALID_KERNEL_NAME",
	C.CL_INVALID_KERNEL_DEFINITION:     "CL_INVALID_KERNEL_DEFINITION",
	C.CL_INVALID_KERNEL:                "CL_INVALID_KERNEL",
	C.CL_INVALID_ARG_INDEX:             "CL_INVALID_ARG_INDEX",
	C.CL_INVALID_ARG_VALUE:             "CL_INVALID_ARG_VALUE",
	C.CL_INVALID_ARG_SIZE:              "CL_INVALID_ARG_SIZE",
	C.CL_INVALID_KERNEL_ARGS:           "CL_INVALID_KERNEL_ARGS",
	C.CL_INVALID_WORK_DIMENSION:        "CL_INVALID_WORK_DIMENSION",
	C.CL_INVALID_WORK_GROUP_SIZE:       "CL_INVALID_WORK_GROUP_SIZE",
	C.CL_INVALID_WORK_ITEM_SIZE:        "CL_INVALID_WORK_ITEM_SIZE",
	C.CL_INVALID_GLOBAL_OFFSET:         "CL_INVALID_GLOBAL_OFFSET",
	C.CL_INVALID_EVENT_WAIT_LIST:       "CL_INVALID_EVENT_WAIT_LIST",
	C.CL_INVALID_OPERATION:             "CL_INVALID_OPERATION",
	C.CL_INVALID_GLOBAL_WORK_SIZE:      "CL_INVALID_GLOBAL_WORK_SIZE",
}

// clError converts an OpenCL status code to an error wrapping kind, or nil for CL_SUCCESS.
func clError(status C.cl_int, kind error, format string, args ...any) error {
	if status == C.CL_SUCCESS {
		return nil
	}
	name, found := errorNames[status]
	if !found {
		name = fmt.Sprintf("CL error %d", int(status))
	}
	return errors.Wrapf(kind, "%s: %s", fmt.Sprintf(format, args...), name)
}

// deviceInfoString queries a string property of the device.
func deviceInfoString(device C.cl_device_id, param C.cl_device_info) string {
	var size C.size_t
	if C.clGetDeviceInfo(device, param, 0, nil, &size) != C.CL_SUCCESS || size == 0 {
		return ""
	}
	buf := make([]byte, int(size))
	if C.clGetDeviceInfo(device, param, size, unsafe.Pointer(&buf[0]), nil) != C.CL_SUCCESS {
		return ""
	}
	return strings.TrimRight(string(buf), "\x00 ")
}

func deviceInfoUlong(device C.cl_device_id, param C.cl_device_info) uint64 {
	var value C.cl_ulong
	if C.clGetDeviceInfo(device, param, C.size_t(unsafe.Sizeof(value)), unsafe.Pointer(&value), nil) != C.CL_SUCCESS {
		return 0
	}
	return uint64(value)
}

func deviceInfoUint(device C.cl_device_id, param C.cl_device_info) uint32 {
	var value C.cl_uint
	if C.clGetDeviceInfo(device, param, C.size_t(unsafe.Sizeof(value)), unsafe.Pointer(&value), nil) != C.CL_SUCCESS {
		return 0
	}
	return uint32(value)
}

// deviceTypeName of a CL_DEVICE_TYPE bitfield.
func deviceTypeName(device C.cl_device_id) string {
	var value C.cl_device_type
	if C.clGetDeviceInfo(device, C.CL_DEVICE_TYPE, C.size_t(unsafe.Sizeof(value)), unsafe.Pointer(&value), nil) != C.CL_SUCCESS {
		return "unknown"
	}
	switch {
	case value&C.CL_DEVICE_TYPE_GPU != 0:
		return "gpu"
	case value&C.CL_DEVICE_TYPE_CPU != 0:
		return "cpu"
	case value&C.CL_DEVICE_TYPE_ACCELERATOR != 0:
		return "accelerator"
	}
	return "other"
}

// parseDeviceType converts the "type" backend option.
func parseDeviceType(name string) (C.cl_device_type, error) {
	switch strings.ToLower(name) {
	case "", "all":
		return C.CL_DEVICE_TYPE_ALL, nil
	case "gpu":
		return C.CL_DEVICE_TYPE_GPU, nil
	case "cpu":
		return C.CL_DEVICE_TYPE_CPU, nil
	case "accelerator":
		return C.CL_DEVICE_TYPE_ACCELERATOR, nil
	}
	return 0, errors.Errorf("invalid device type %q, valid values are all, gpu, cpu or accelerator", name)
}

// clDevice is one enumerated device.
type clDevice struct {
	platform C.cl_platform_id
	id       C.cl_device_id
	info     backends.DeviceInfo
	fp64     bool
}

// enumerateDevices of all platforms, restricted to deviceType.
func enumerateDevices(deviceType C.cl_device_type) ([]clDevice, error) {
	var numPlatforms C.cl_uint
	status := C.clGetPlatformIDs(0, nil, &numPlatforms)
	if status == C.CL_PLATFORM_NOT_FOUND_KHR || numPlatforms == 0 {
		return nil, nil
	}
	if err := clError(status, backends.ErrBackendInit, "clGetPlatformIDs"); err != nil {
		return nil, err
	}
	platforms := make([]C.cl_platform_id, int(numPlatforms))
	if err := clError(C.clGetPlatformIDs(numPlatforms, &platforms[0], nil), backends.ErrBackendInit, "clGetPlatformIDs"); err != nil {
		return nil, err
	}

	var devices []clDevice
	for _, platform := range platforms {
		var numDevices C.cl_uint
		status = C.clGetDeviceIDs(platform, deviceType, 0, nil, &numDevices)
		if status == C.CL_DEVICE_NOT_FOUND || numDevices == 0 {
			continue
		}
		if err := clError(status, backends.ErrBackendInit, "clGetDeviceIDs"); err != nil {
			return nil, err
		}
		ids := make([]C.cl_device_id, int(numDevices))
		if err := clError(C.clGetDeviceIDs(platform, deviceType, numDevices, &ids[0], nil), backends.ErrBackendInit, "clGetDeviceIDs"); err != nil {
			return nil, err
		}
		for _, id := range ids {
			extensions := deviceInfoString(id, C.CL_DEVICE_EXTENSIONS)
			devices = append(devices, clDevice{
				platform: platform,
				id:       id,
				fp64:     strings.Contains(extensions, "cl_khr_fp64"),
				info: backends.DeviceInfo{
					Num:          backends.DeviceNum(len(devices)),
					Name:         deviceInfoString(id, C.CL_DEVICE_NAME),
					Vendor:       deviceInfoString(id, C.CL_DEVICE_VENDOR),
					Type:         deviceTypeName(id),
					GlobalMemory: deviceInfoUlong(id, C.CL_DEVICE_GLOBAL_MEM_SIZE),
					ComputeUnits: int(deviceInfoUint(id, C.CL_DEVICE_MAX_COMPUTE_UNITS)),
				},
			})
		}
	}
	return devices, nil
}
