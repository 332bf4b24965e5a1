// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package simplego implements a simple, and not very fast, but very portable software backend.
//
// It emulates one or more CPU "devices". Programs are OpenCL C sources, but instead of compiling the
// kernel bodies, each kernel found in the source is bound to a Go implementation registered with
// RegisterKernel: the library kernels (see kernels.go) are registered by default. Compiling a program
// with a kernel that has no Go implementation fails, like a compiler error.
//
// Each session runs its commands in order in a dedicated goroutine, and the work items of a kernel are
// split over a pool of workers.
//
// Options (see backends.ParseOptions):
//
//   - devices=N: number of emulated devices, default 1.
//   - parallelism=N: maximum number of workers per kernel; 0 runs sequentially, -1 is unlimited.
//     Defaults to runtime.NumCPU().
package simplego

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/mathaccel/mathaccel/backends"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// BackendName to be used in MATHACCEL_BACKEND to specify this backend.
const BackendName = "go"

// Registers New() as the constructor for the "go" backend.
func init() {
	backends.Register(BackendName, New)
}

// New constructs a new SimpleGo Backend with the given options.
func New(config string) (backends.Backend, error) {
	options, err := backends.ParseOptions(config)
	if err != nil {
		return nil, errors.Wrap(backends.ErrBackendInit, err.Error())
	}
	b := newBackend()
	if b.numDevices, err = options.PopInt("devices", 1); err != nil {
		return nil, errors.Wrap(backends.ErrBackendInit, err.Error())
	}
	if b.numDevices < 0 {
		return nil, errors.Wrapf(backends.ErrBackendInit, "invalid number of devices %d", b.numDevices)
	}
	if b.parallelism, err = options.PopInt("parallelism", runtime.NumCPU()); err != nil {
		return nil, errors.Wrap(backends.ErrBackendInit, err.Error())
	}
	if err = options.CheckEmpty(BackendName); err != nil {
		return nil, errors.Wrap(backends.ErrBackendInit, err.Error())
	}
	klog.V(1).Infof("SimpleGo backend: %d devices, parallelism=%d", b.numDevices, b.parallelism)
	return b, nil
}

func newBackend() *Backend {
	return &Backend{numDevices: 1, parallelism: runtime.NumCPU()}
}

// Backend implements the backends.Backend interface.
type Backend struct {
	numDevices, parallelism int

	// bufferPools are a map to pools of memory that can be reused.
	// The underlying type is map[bufferPoolKey]*sync.Pool.
	bufferPools sync.Map

	mu        sync.Mutex
	sessions  map[*Session]struct{}
	finalized bool
}

// Compile-time check that simplego.Backend implements backends.Backend.
var _ backends.Backend = &Backend{}

// Name returns the short name of the backend.
func (b *Backend) Name() string {
	return BackendName
}

// String implement fmt.Stringer.
func (b *Backend) String() string { return BackendName }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	return fmt.Sprintf("SimpleGo software backend (%d devices)", b.numDevices)
}

// Devices returns the emulated devices, named "cpu:0", "cpu:1", ...
func (b *Backend) Devices() ([]backends.DeviceInfo, error) {
	devices := make([]backends.DeviceInfo, b.numDevices)
	for i := range devices {
		devices[i] = backends.DeviceInfo{
			Num:          backends.DeviceNum(i),
			Name:         fmt.Sprintf("cpu:%d", i),
			Vendor:       "SimpleGo",
			Type:         "cpu",
			ComputeUnits: max(b.parallelism, 1),
		}
	}
	return devices, nil
}

// Capabilities returns information about what is supported by this backend.
func (b *Backend) Capabilities() backends.Capabilities {
	return Capabilities
}

// Capabilities of the SimpleGo backend.
var Capabilities = backends.Capabilities{
	DTypes: map[dtypes.DType]bool{
		dtypes.Int8:    true,
		dtypes.Uint8:   true,
		dtypes.Int16:   true,
		dtypes.Uint16:  true,
		dtypes.Int32:   true,
		dtypes.Uint32:  true,
		dtypes.Int64:   true,
		dtypes.Uint64:  true,
		dtypes.Float32: true,
		dtypes.Float64: true,
	},
}

// NewSession "compiles" the source for the device and starts its command queue.
func (b *Backend) NewSession(deviceNum backends.DeviceNum, source string) (backends.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finalized {
		return nil, errors.Wrap(backends.ErrBackendInit, "SimpleGo backend already finalized")
	}
	if deviceNum < 0 || int(deviceNum) >= b.numDevices {
		return nil, errors.Wrapf(backends.ErrBackendInit, "device #%d doesn't exist, SimpleGo backend has %d devices",
			deviceNum, b.numDevices)
	}
	s, err := newSession(b, deviceNum, source)
	if err != nil {
		return nil, err
	}
	if b.sessions == nil {
		b.sessions = make(map[*Session]struct{})
	}
	b.sessions[s] = struct{}{}
	return s, nil
}

// forgetSession is called by Session.Finalize.
func (b *Backend) forgetSession(s *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, s)
}

// Finalize releases all the associated resources immediately, and makes the backend invalid.
func (b *Backend) Finalize() {
	b.mu.Lock()
	sessions := make([]*Session, 0, len(b.sessions))
	for s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.finalized = true
	b.mu.Unlock()
	for _, s := range sessions {
		s.Finalize()
	}
}
