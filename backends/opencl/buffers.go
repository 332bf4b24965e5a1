// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

//go:build opencl

package opencl

/*
#cgo CFLAGS: -DCL_TARGET_OPENCL_VERSION=120 -DCL_USE_DEPRECATED_OPENCL_1_2_APIS -Wno-deprecated-declarations

#ifdef __APPLE__
#include <OpenCL/opencl.h>
#else
#include <CL/cl.h>
#endif
*/
import "C"

import (
	"reflect"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/mathaccel/mathaccel/backends"
	"github.com/pkg/errors"
)

// Buffer is an OpenCL memory object with room for length elements of dtype.
type Buffer struct {
	mem     C.cl_mem
	dtype   dtypes.DType
	length  int
	session *Session
}

// release the memory object. The OpenCL runtime keeps it alive until enqueued commands using it complete.
func (buffer *Buffer) release() {
	if buffer.mem != nil {
		C.clReleaseMemObject(buffer.mem)
		buffer.mem = nil
	}
}

// checkBuffer converts and validates a backends.Memory owned by the session. It must be called with s.mu held.
func (s *Session) checkBuffer(memory backends.Memory) (*Buffer, error) {
	buffer, ok := memory.(*Buffer)
	if !ok || buffer == nil {
		return nil, errors.Wrapf(backends.ErrBackendOperation, "memory (%T) is not a %q backend buffer", memory, BackendName)
	}
	if buffer.session != s {
		return nil, errors.Wrapf(backends.ErrBackendOperation, "buffer(%p) was allocated by another session", buffer)
	}
	if _, found := s.buffers[buffer]; !found || buffer.mem == nil {
		return nil, errors.Wrapf(backends.ErrBackendOperation, "buffer(%p) was already freed", buffer)
	}
	return buffer, nil
}

// checkFlat validates that flat is a slice of the buffer's dtype, with at most length elements,
// and returns its size in bytes.
func (buffer *Buffer) checkFlat(flat any) (reflect.Value, C.size_t, error) {
	value := reflect.ValueOf(flat)
	if !value.IsValid() || value.Kind() != reflect.Slice || value.Type().Elem() != buffer.dtype.GoType() {
		return value, 0, errors.Wrapf(backends.ErrBackendOperation, "flat data type (%T) does not match buffer dtype (%s)",
			flat, buffer.dtype)
	}
	if value.Len() > buffer.length {
		return value, 0, errors.Wrapf(backends.ErrBackendOperation, "flat data has %d elements, buffer only %d",
			value.Len(), buffer.length)
	}
	return value, C.size_t(value.Len() * int(buffer.dtype.Size())), nil
}

// Alloc implements backends.Session.
func (s *Session) Alloc(dtype dtypes.DType, length int) (backends.Memory, error) {
	if length <= 0 {
		return nil, errors.Wrapf(backends.ErrBackendOperation, "invalid allocation of %d elements", length)
	}
	if !s.backend.Capabilities().Supports(dtype) || (dtype == dtypes.Float64 && !s.device.fp64) {
		return nil, errors.Wrapf(backends.ErrBackendOperation, "dtype %s not supported by device %s", dtype, s.device.info.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAlive(); err != nil {
		return nil, err
	}
	var status C.cl_int
	size := C.size_t(length * int(dtype.Size()))
	mem := C.clCreateBuffer(s.context, C.CL_MEM_READ_WRITE, size, nil, &status)
	if err := clError(status, backends.ErrBackendOperation, "clCreateBuffer(%d bytes)", int(size)); err != nil {
		return nil, err
	}
	buffer := &Buffer{mem: mem, dtype: dtype, length: length, session: s}
	s.buffers[buffer] = struct{}{}
	return buffer, nil
}

// Free implements backends.Session.
func (s *Session) Free(memory backends.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAlive(); err != nil {
		return err
	}
	buffer, err := s.checkBuffer(memory)
	if err != nil {
		return err
	}
	delete(s.buffers, buffer)
	buffer.release()
	return nil
}

// Write implements backends.Session. It blocks until the transfer is complete.
func (s *Session) Write(memory backends.Memory, flat any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAlive(); err != nil {
		return err
	}
	buffer, err := s.checkBuffer(memory)
	if err != nil {
		return err
	}
	value, size, err := buffer.checkFlat(flat)
	if err != nil || size == 0 {
		return err
	}
	status := C.clEnqueueWriteBuffer(s.queue, buffer.mem, C.CL_TRUE, 0, size, value.UnsafePointer(), 0, nil, nil)
	return clError(status, backends.ErrBackendOperation, "clEnqueueWriteBuffer")
}

// Read implements backends.Session. It blocks until the transfer, and so all previously enqueued
// commands, is complete.
func (s *Session) Read(memory backends.Memory, flat any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAlive(); err != nil {
		return err
	}
	buffer, err := s.checkBuffer(memory)
	if err != nil {
		return err
	}
	value, size, err := buffer.checkFlat(flat)
	if err != nil || size == 0 {
		return err
	}
	status := C.clEnqueueReadBuffer(s.queue, buffer.mem, C.CL_TRUE, 0, size, value.UnsafePointer(), 0, nil, nil)
	return clError(status, backends.ErrBackendOperation, "clEnqueueReadBuffer")
}
