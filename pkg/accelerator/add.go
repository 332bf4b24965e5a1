// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package accelerator

import (
	"github.com/gomlx/exceptions"
	"github.com/mathaccel/mathaccel/backends"
	"github.com/mathaccel/mathaccel/pkg/accelerator/kernels"
	"github.com/pkg/errors"
)

// Add enqueues the elementwise addition of two buffers with the same dims, and returns the new output buffer.
//
// The output is allocated with the dims of input2. The addition runs asynchronously: reading the output
// (ToFlat) waits for it. For integer types it wraps around on overflow, following the device arithmetic.
//
// It returns an error wrapping backends.ErrShapeMismatch if the dims differ, or backends.ErrArgumentBind if
// the buffers belong to different accelerators.
func Add[T Element](input1, input2 *Buffer[T]) (*Buffer[T], error) {
	if input1 == nil || input2 == nil {
		return nil, errors.Wrap(backends.ErrArgumentBind, "Add(): nil input buffer")
	}
	if input1.dims != input2.dims {
		return nil, errors.Wrapf(backends.ErrShapeMismatch, "Add(): input dims %s and %s differ",
			input1.dims, input2.dims)
	}
	if input1.acc != input2.acc {
		return nil, errors.Wrap(backends.ErrArgumentBind, "Add(): input buffers belong to different accelerators")
	}
	acc := input2.acc
	name := kernels.AddName(DTypeOf[T]())
	output, err := input2.Duplicate()
	if err != nil {
		return nil, errors.WithMessage(err, "Add()")
	}
	err = acc.RunKernel(name, output.dims,
		Named(kernels.AddInput1, input1),
		Named(kernels.AddInput2, input2),
		Named(kernels.AddOutput, output))
	if err != nil {
		output.Finalize()
		return nil, errors.WithMessage(err, "Add()")
	}
	return output, nil
}

// MustAdd is like Add, but panics on error.
func MustAdd[T Element](input1, input2 *Buffer[T]) *Buffer[T] {
	output, err := Add(input1, input2)
	if err != nil {
		exceptions.Panicf("accelerator.MustAdd(): %+v", err)
	}
	return output
}
