// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package accelerator

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/mathaccel/mathaccel/backends"
	"github.com/mathaccel/mathaccel/pkg/core/dims"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Buffer is a typed region of device memory, tagged with its logical Dims.
//
// The device allocation has at least one element: buffers with zero-size dims have Len() == 0 but still
// own a 1-element allocation.
//
// A Buffer is released by Finalize, or when it is garbage collected.
type Buffer[T Element] struct {
	acc    *Accelerator
	dims   dims.Dims
	length int

	// mu protects memory, which is nil once the buffer is finalized.
	mu     sync.Mutex
	memory backends.Memory
}

// newBuffer allocates an uninitialized buffer for the dims, which must be valid.
func newBuffer[T Element](acc *Accelerator, d dims.Dims) (*Buffer[T], error) {
	if acc == nil {
		return nil, errors.Wrap(backends.ErrBackendOperation, "nil accelerator")
	}
	if err := acc.checkAlive(); err != nil {
		return nil, err
	}
	length, err := d.Multiply()
	if err != nil {
		return nil, errors.Wrapf(backends.ErrShapeMismatch, "invalid buffer dims %s: %v", d, err)
	}
	allocLength, _ := d.AllocLength()
	memory, err := acc.session.Alloc(DTypeOf[T](), allocLength)
	if err != nil {
		return nil, operationError(err, "failed to allocate buffer of %s%s", DTypeOf[T](), d)
	}
	buf := &Buffer[T]{acc: acc, dims: d, length: length, memory: memory}
	runtime.SetFinalizer(buf, func(buf *Buffer[T]) { buf.Finalize() })
	return buf, nil
}

// NewBuffer allocates a buffer with the given dims, without initializing its contents.
//
// Use it for kernel outputs that are fully written by the kernel.
func NewBuffer[T Element](acc *Accelerator, d dims.Dims) (*Buffer[T], error) {
	return newBuffer[T](acc, d)
}

// CreateBuffer allocates a buffer with the given dims and uploads data to it, blocking until the transfer
// is done.
//
// It returns an error wrapping backends.ErrShapeMismatch, before allocating anything, if len(data) differs
// from the product of the dims.
func CreateBuffer[T Element](acc *Accelerator, data []T, d dims.Dims) (*Buffer[T], error) {
	length, err := d.Multiply()
	if err != nil {
		return nil, errors.Wrapf(backends.ErrShapeMismatch, "invalid buffer dims %s: %v", d, err)
	}
	if length != len(data) {
		return nil, errors.Wrapf(backends.ErrShapeMismatch, "data has %d elements, but dims %s require %d",
			len(data), d, length)
	}
	buf, err := newBuffer[T](acc, d)
	if err != nil {
		return nil, err
	}
	if err = buf.Upload(data); err != nil {
		buf.Finalize()
		return nil, err
	}
	return buf, nil
}

// CreateBuffer1D is like CreateBuffer, with one-dimensional dims (len(data)).
func CreateBuffer1D[T Element](acc *Accelerator, data []T) (*Buffer[T], error) {
	return CreateBuffer(acc, data, dims.One(len(data)))
}

// MustCreateBuffer is like CreateBuffer, but panics on error.
func MustCreateBuffer[T Element](acc *Accelerator, data []T, d dims.Dims) *Buffer[T] {
	buf, err := CreateBuffer(acc, data, d)
	if err != nil {
		exceptions.Panicf("accelerator.MustCreateBuffer(): %+v", err)
	}
	return buf
}

// Accelerator that owns the buffer.
func (buf *Buffer[T]) Accelerator() *Accelerator { return buf.acc }

// Dims of the buffer.
func (buf *Buffer[T]) Dims() dims.Dims { return buf.dims }

// Len is the logical number of elements, the product of the Dims.
func (buf *Buffer[T]) Len() int { return buf.length }

// DType of the elements.
func (buf *Buffer[T]) DType() dtypes.DType { return DTypeOf[T]() }

// IsFinalized returns whether the buffer device memory was already released.
func (buf *Buffer[T]) IsFinalized() bool {
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return buf.memory == nil
}

// String implements fmt.Stringer.
func (buf *Buffer[T]) String() string {
	if buf == nil {
		return "Buffer(nil)"
	}
	return fmt.Sprintf("Buffer[%s]%s", buf.DType(), buf.dims)
}

// liveMemory returns the device memory, or an error if the buffer was finalized.
func (buf *Buffer[T]) liveMemory() (backends.Memory, error) {
	if buf == nil {
		return nil, errors.Wrap(backends.ErrBackendOperation, "nil buffer")
	}
	buf.mu.Lock()
	defer buf.mu.Unlock()
	if buf.memory == nil {
		return nil, errors.Wrapf(backends.ErrBackendOperation, "%s already finalized", buf)
	}
	return buf.memory, nil
}

// Duplicate allocates a new buffer with the same dims. The contents are not copied.
func (buf *Buffer[T]) Duplicate() (*Buffer[T], error) {
	return buf.DuplicateWithDims(buf.dims)
}

// DuplicateWithDims allocates a new buffer of the same element type, in the same accelerator, with the
// given dims. The contents are not copied.
func (buf *Buffer[T]) DuplicateWithDims(d dims.Dims) (*Buffer[T], error) {
	if _, err := buf.liveMemory(); err != nil {
		return nil, err
	}
	return newBuffer[T](buf.acc, d)
}

// Upload transfers data to the buffer, blocking until done. len(data) must be Len().
func (buf *Buffer[T]) Upload(data []T) error {
	memory, err := buf.liveMemory()
	if err != nil {
		return err
	}
	if len(data) != buf.length {
		return errors.Wrapf(backends.ErrShapeMismatch, "uploading %d elements to %s of %d elements",
			len(data), buf, buf.length)
	}
	if len(data) == 0 {
		return nil
	}
	if err = buf.acc.session.Write(memory, data); err != nil {
		return operationError(err, "failed to upload to %s", buf)
	}
	runtime.KeepAlive(buf)
	return nil
}

// ToFlat downloads the buffer contents, blocking until all work previously enqueued in the accelerator is
// completed. It returns Len() elements.
func (buf *Buffer[T]) ToFlat() ([]T, error) {
	memory, err := buf.liveMemory()
	if err != nil {
		return nil, err
	}
	flat := make([]T, buf.length)
	if buf.length == 0 {
		return flat, nil
	}
	if err = buf.acc.session.Read(memory, flat); err != nil {
		return nil, operationError(err, "failed to download %s", buf)
	}
	runtime.KeepAlive(buf)
	return flat, nil
}

// MustToFlat is like ToFlat, but panics on error.
func (buf *Buffer[T]) MustToFlat() []T {
	flat, err := buf.ToFlat()
	if err != nil {
		exceptions.Panicf("Buffer.MustToFlat(): %+v", err)
	}
	return flat
}

// Finalize releases the device memory immediately (only after previously enqueued work using it completes).
//
// It is safe to call it more than once. The buffer can't be used afterwards.
func (buf *Buffer[T]) Finalize() {
	if buf == nil {
		return
	}
	buf.mu.Lock()
	memory := buf.memory
	buf.memory = nil
	buf.mu.Unlock()
	if memory == nil {
		return
	}
	runtime.SetFinalizer(buf, nil)
	if buf.acc.finalized.Load() {
		// Released with the session.
		return
	}
	if err := buf.acc.session.Free(memory); err != nil {
		klog.V(1).Infof("Buffer.Finalize(): %v", err)
	}
}

// KernelArgumentValue implements KernelArgument.
//
// A nil or finalized buffer yields an empty value, rejected when binding.
func (buf *Buffer[T]) KernelArgumentValue() backends.ArgumentValue {
	if buf == nil {
		return backends.ArgumentValue{}
	}
	buf.mu.Lock()
	defer buf.mu.Unlock()
	if buf.memory == nil {
		return backends.ArgumentValue{}
	}
	return backends.ArgumentValue{Memory: buf.memory, DType: DTypeOf[T](), Owner: buf.acc.id}
}
