// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/mathaccel/mathaccel/backends/kernelsrc"
	"github.com/pkg/errors"
)

// Memory represents device memory allocated by a Session.
//
// It is opaque from the accelerator perspective, only the Session that allocated it can interpret it.
type Memory any

// WorkSize is the global work size of a kernel enqueue: 1, 2 or 3 axes, in the order of the kernel's
// get_global_id(axis).
type WorkSize []uint64

// Size returns the total number of work items.
func (ws WorkSize) Size() uint64 {
	if len(ws) == 0 {
		return 0
	}
	size := uint64(1)
	for _, dim := range ws {
		size *= dim
	}
	return size
}

// ArgumentValue is the resolved value of one kernel argument: exactly one of Memory or Scalar must be set.
type ArgumentValue struct {
	// Memory is set for buffer arguments.
	Memory Memory

	// Scalar is set for by-value arguments, it must be a Go value of the type corresponding to DType.
	Scalar any

	// DType of the buffer elements or of the scalar.
	DType dtypes.DType

	// Owner identifies the context that allocated Memory, empty for scalars.
	Owner string
}

// IsBuffer returns whether the argument carries a buffer.
func (v ArgumentValue) IsBuffer() bool { return v.Memory != nil }

// Validate checks that exactly one of Memory or Scalar is set.
func (v ArgumentValue) Validate() error {
	switch {
	case v.Memory != nil && v.Scalar != nil:
		return errors.Wrap(ErrArgumentBind, "kernel argument has both a buffer and a scalar value")
	case v.Memory == nil && v.Scalar == nil:
		return errors.Wrap(ErrArgumentBind, "kernel argument has neither a buffer nor a scalar value")
	}
	return nil
}

// String implements fmt.Stringer.
func (v ArgumentValue) String() string {
	if v.IsBuffer() {
		return fmt.Sprintf("buffer[%s]", v.DType)
	}
	return fmt.Sprintf("%s(%v)", v.DType, v.Scalar)
}

// Session is one device with one compiled program and one in-order command queue.
//
// Commands are executed in the order they are issued. Enqueue returns once the command is accepted, while
// Write, Read and Finish block until the command (and therefore all previous ones) is completed.
type Session interface {
	// Device bound to the session.
	Device() DeviceInfo

	// Kernels returns the names of the kernels in the compiled program, sorted.
	Kernels() []string

	// Kernel returns the signature of the named kernel as compiled, or an error wrapping ErrKernelBuild.
	Kernel(name string) (*kernelsrc.Kernel, error)

	// Alloc allocates uninitialized memory for length elements of dtype. Length must be > 0.
	Alloc(dtype dtypes.DType, length int) (Memory, error)

	// Write transfers the flat Go slice to the memory, blocking until done.
	Write(memory Memory, flat any) error

	// Read transfers the memory contents to the flat Go slice, blocking until done.
	// len(flat) may be smaller than the allocated length.
	Read(memory Memory, flat any) error

	// Free releases the memory immediately.
	Free(memory Memory) error

	// Enqueue the named kernel with the positional arguments (in the order of the kernel parameters).
	Enqueue(kernelName string, workSize WorkSize, args []ArgumentValue) error

	// Finish blocks until all enqueued commands are completed, and returns any deferred execution error.
	Finish() error

	// Finalize releases the queue and the program. The session can't be used afterwards.
	Finalize()
}
