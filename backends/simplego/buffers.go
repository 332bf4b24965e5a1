// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/mathaccel/mathaccel/backends"
	"github.com/pkg/errors"
)

// Buffer for the SimpleGo backend holds the flat data of a device memory allocation.
type Buffer struct {
	dtype   dtypes.DType
	length  int
	valid   atomic.Bool
	session *Session

	// flat is always a slice of the underlying data type (dtype), with length elements.
	flat any
}

type bufferPoolKey struct {
	dtype  dtypes.DType
	length int
}

// getBufferPool for given dtype/length.
func (b *Backend) getBufferPool(dtype dtypes.DType, length int) *sync.Pool {
	key := bufferPoolKey{dtype: dtype, length: length}
	poolInterface, ok := b.bufferPools.Load(key)
	if !ok {
		poolInterface, _ = b.bufferPools.LoadOrStore(key, &sync.Pool{
			New: func() interface{} {
				return &Buffer{
					dtype:  dtype,
					length: length,
					flat:   reflect.MakeSlice(reflect.SliceOf(dtype.GoType()), length, length).Interface(),
				}
			},
		})
	}
	return poolInterface.(*sync.Pool)
}

// getBuffer from backend pool of buffers.
//
// Its contents are whatever was left by the previous user, like uninitialized device memory.
func (b *Backend) getBuffer(dtype dtypes.DType, length int) *Buffer {
	pool := b.getBufferPool(dtype, length)
	buf := pool.Get().(*Buffer)
	buf.valid.Store(true)
	return buf
}

// putBuffer back into the backend pool of buffers.
// The buffer must have been already marked as invalid, and any references to it should be dropped.
func (b *Backend) putBuffer(buffer *Buffer) {
	if buffer == nil {
		return
	}
	buffer.session = nil
	pool := b.getBufferPool(buffer.dtype, buffer.length)
	pool.Put(buffer)
}

// copyFlat assumes both flat slices are of the same underlying type.
func copyFlat(flatDst, flatSrc any) {
	reflect.Copy(reflect.ValueOf(flatDst), reflect.ValueOf(flatSrc))
}

// checkBuffer converts and validates a backends.Memory owned by the session.
func (s *Session) checkBuffer(memory backends.Memory) (*Buffer, error) {
	buffer, ok := memory.(*Buffer)
	if !ok || buffer == nil {
		return nil, errors.Wrapf(backends.ErrBackendOperation, "memory (%T) is not a %q backend buffer", memory, BackendName)
	}
	if !buffer.valid.Load() || buffer.flat == nil {
		var issues []string
		if buffer.flat == nil {
			issues = append(issues, "buffer.flat was nil")
		}
		if !buffer.valid.Load() {
			issues = append(issues, "buffer was marked as invalid")
		}
		return nil, errors.Wrapf(backends.ErrBackendOperation, "buffer(%p): %s -- buffer was already freed!?",
			buffer, strings.Join(issues, ", "))
	}
	if buffer.session != s {
		return nil, errors.Wrapf(backends.ErrBackendOperation, "buffer(%p) was allocated by another session", buffer)
	}
	return buffer, nil
}

// checkFlat validates that flat is a slice of the buffer's dtype, with at most length elements.
func (buffer *Buffer) checkFlat(flat any) error {
	flatType := reflect.TypeOf(flat)
	if flatType == nil || flatType.Kind() != reflect.Slice || flatType.Elem() != buffer.dtype.GoType() {
		return errors.Wrapf(backends.ErrBackendOperation, "flat data type (%T) does not match buffer dtype (%s)",
			flat, buffer.dtype)
	}
	if n := reflect.ValueOf(flat).Len(); n > buffer.length {
		return errors.Wrapf(backends.ErrBackendOperation, "flat data has %d elements, buffer only %d", n, buffer.length)
	}
	return nil
}

// Alloc implements backends.Session.
func (s *Session) Alloc(dtype dtypes.DType, length int) (backends.Memory, error) {
	if length <= 0 {
		return nil, errors.Wrapf(backends.ErrBackendOperation, "invalid allocation of %d elements", length)
	}
	if !Capabilities.Supports(dtype) {
		return nil, errors.Wrapf(backends.ErrBackendOperation, "dtype %s not supported by %q backend", dtype, BackendName)
	}
	if err := s.checkAlive(); err != nil {
		return nil, err
	}
	buffer := s.backend.getBuffer(dtype, length)
	buffer.session = s
	return buffer, nil
}

// Free implements backends.Session.
//
// The buffer is only returned to the pool after all previously enqueued commands completed.
func (s *Session) Free(memory backends.Memory) error {
	buffer, err := s.checkBuffer(memory)
	if err != nil {
		return err
	}
	if !buffer.valid.CompareAndSwap(true, false) {
		return errors.Wrapf(backends.ErrBackendOperation, "buffer(%p) freed concurrently", buffer)
	}
	return s.submit("free", false, func() error {
		s.backend.putBuffer(buffer)
		return nil
	})
}

// Write implements backends.Session.
func (s *Session) Write(memory backends.Memory, flat any) error {
	buffer, err := s.checkBuffer(memory)
	if err != nil {
		return err
	}
	if err = buffer.checkFlat(flat); err != nil {
		return err
	}
	return s.submit("write", true, func() error {
		copyFlat(buffer.flat, flat)
		return nil
	})
}

// Read implements backends.Session.
func (s *Session) Read(memory backends.Memory, flat any) error {
	buffer, err := s.checkBuffer(memory)
	if err != nil {
		return err
	}
	if err = buffer.checkFlat(flat); err != nil {
		return err
	}
	return s.submit("read", true, func() error {
		copyFlat(flat, buffer.flat)
		return nil
	})
}
