// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"sync"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/mathaccel/mathaccel/pkg/accelerator/kernels"
)

// Value of one kernel argument as seen by a KernelFunc.
type Value struct {
	// Flat is a slice of the parameter element type for buffer parameters, nil otherwise.
	Flat any

	// Len is the allocated number of elements of the buffer.
	Len int

	// Scalar is the value of by-value parameters, nil for buffers.
	Scalar any
}

// Launch holds the arguments of one kernel enqueue.
type Launch struct {
	WorkSize []uint64
	Args     []Value
}

// GlobalID converts a linear work item index to its per-axis ids (the values of get_global_id(axis)),
// where axis 0 varies the fastest.
func (l *Launch) GlobalID(linear int) (ids [3]int) {
	for axis, dim := range l.WorkSize {
		ids[axis] = linear % int(dim)
		linear /= int(dim)
	}
	return
}

// KernelFunc is the Go implementation of a kernel: it must process the work items with linear index in
// [start, end). It may be called concurrently for disjoint ranges.
//
// Linear indices enumerate work items with axis 0 varying the fastest, see Launch.GlobalID.
type KernelFunc func(launch *Launch, start, end int)

var (
	kernelsMu       sync.RWMutex
	registeredFuncs = make(map[string]KernelFunc)
)

// RegisterKernel registers the Go implementation of the kernel with the given name.
// This overwrites any previous setting for the same name.
//
// Programs compiled afterwards can bind kernels with that name. The signature is taken from the program source,
// and arguments are checked against it before calling fn.
func RegisterKernel(name string, fn KernelFunc) {
	kernelsMu.Lock()
	defer kernelsMu.Unlock()
	registeredFuncs[name] = fn
}

func lookupKernel(name string) (KernelFunc, bool) {
	kernelsMu.RLock()
	defer kernelsMu.RUnlock()
	fn, found := registeredFuncs[name]
	return fn, found
}

// PODNumericConstraints are used for generics for the Go pod (plain-old-data) types.
type PODNumericConstraints interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64
}

// addKernel implements "output[i] = input_1[i] + input_2[i]" over the linear work item index.
func addKernel[T PODNumericConstraints](launch *Launch, start, end int) {
	input1 := launch.Args[0].Flat.([]T)
	input2 := launch.Args[1].Flat.([]T)
	output := launch.Args[2].Flat.([]T)
	for i := start; i < end; i++ {
		output[i] = input1[i] + input2[i]
	}
}

func init() {
	RegisterKernel(kernels.AddName(dtypes.Int8), addKernel[int8])
	RegisterKernel(kernels.AddName(dtypes.Uint8), addKernel[uint8])
	RegisterKernel(kernels.AddName(dtypes.Int16), addKernel[int16])
	RegisterKernel(kernels.AddName(dtypes.Uint16), addKernel[uint16])
	RegisterKernel(kernels.AddName(dtypes.Int32), addKernel[int32])
	RegisterKernel(kernels.AddName(dtypes.Uint32), addKernel[uint32])
	RegisterKernel(kernels.AddName(dtypes.Int64), addKernel[int64])
	RegisterKernel(kernels.AddName(dtypes.Uint64), addKernel[uint64])
	RegisterKernel(kernels.AddName(dtypes.Float32), addKernel[float32])
	RegisterKernel(kernels.AddName(dtypes.Float64), addKernel[float64])
}
