// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package kernels holds the OpenCL C source of the library kernels, and their naming convention.
//
// The source is the contract with the backend compiler: kernel names, parameter names and parameter order
// must match what the accelerator package binds.
package kernels

import (
	_ "embed"

	"github.com/gomlx/gopjrt/dtypes"
)

// Source of the library kernels, compiled by default by every accelerator.
//
//go:embed kernels.cl
var Source string

// AddName returns the name of the elementwise addition kernel for the dtype:
// "kernel_add" for Int32, and "kernel_add_<dtype>" for the others ("kernel_add_float32", ...).
//
// It returns "" for dtypes without an addition kernel.
func AddName(dtype dtypes.DType) string {
	if dtype == dtypes.Int32 {
		return "kernel_add"
	}
	suffix := Suffix(dtype)
	if suffix == "" {
		return ""
	}
	return "kernel_add_" + suffix
}

// Parameter names of the addition kernels.
const (
	AddInput1 = "input_1"
	AddInput2 = "input_2"
	AddOutput = "output"
)

// Suffix used in kernel names for the dtype, or "" if the library has no kernels for it.
func Suffix(dtype dtypes.DType) string {
	switch dtype {
	case dtypes.Int8:
		return "int8"
	case dtypes.Uint8:
		return "uint8"
	case dtypes.Int16:
		return "int16"
	case dtypes.Uint16:
		return "uint16"
	case dtypes.Int32:
		return "int32"
	case dtypes.Uint32:
		return "uint32"
	case dtypes.Int64:
		return "int64"
	case dtypes.Uint64:
		return "uint64"
	case dtypes.Float32:
		return "float32"
	case dtypes.Float64:
		return "float64"
	}
	return ""
}
