// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package accelerator

import (
	"sync/atomic"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/mathaccel/mathaccel/backends"
	"github.com/stretchr/testify/require"
)

// countingBackend wraps a backend and counts the calls reaching the sessions it creates.
type countingBackend struct {
	backends.Backend
	allocs, writes, enqueues atomic.Int32
}

func (b *countingBackend) NewSession(deviceNum backends.DeviceNum, source string) (backends.Session, error) {
	session, err := b.Backend.NewSession(deviceNum, source)
	if err != nil {
		return nil, err
	}
	return &countingSession{Session: session, counts: b}, nil
}

type countingSession struct {
	backends.Session
	counts *countingBackend
}

func (s *countingSession) Alloc(dtype dtypes.DType, length int) (backends.Memory, error) {
	s.counts.allocs.Add(1)
	return s.Session.Alloc(dtype, length)
}

func (s *countingSession) Write(memory backends.Memory, flat any) error {
	s.counts.writes.Add(1)
	return s.Session.Write(memory, flat)
}

func (s *countingSession) Enqueue(kernelName string, workSize backends.WorkSize, args []backends.ArgumentValue) error {
	s.counts.enqueues.Add(1)
	return s.Session.Enqueue(kernelName, workSize, args)
}

// newCountingAccelerator creates an accelerator over a countingBackend of the default backend.
func newCountingAccelerator(t *testing.T, opts ...Option) (*Accelerator, *countingBackend) {
	backend, err := backends.New()
	require.NoError(t, err)
	t.Cleanup(backend.Finalize)
	counting := &countingBackend{Backend: backend}
	acc := newTestAccelerator(t, append([]Option{WithBackend(counting)}, opts...)...)
	return acc, counting
}
