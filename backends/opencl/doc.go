// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package opencl implements a backend over the OpenCL C API, using cgo.
//
// It is only built with the `opencl` build tag, and it requires the OpenCL headers and an ICD loader
// (libOpenCL) at build time:
//
//	go build -tags opencl ./...
//
// Devices of all platforms are enumerated in platform order, then in each platform's device order.
// Each session creates one OpenCL context with a single device, one in-order command queue, and
// builds the program source for that device.
//
// Options (see backends.ParseOptions):
//
//   - type=all|gpu|cpu|accelerator: restrict the enumerated devices to a device type. Default is all.
//   - build_options=<flags>: compiler flags passed to clBuildProgram, e.g. "-cl-fast-relaxed-math".
package opencl

// BackendName to be used in MATHACCEL_BACKEND to specify this backend.
const BackendName = "opencl"
