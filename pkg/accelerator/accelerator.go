// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package accelerator is a thin typed layer over a compute backend (see package backends): an Accelerator
// binds one device, one compiled program and one command queue, and is the factory of typed Buffers and
// Kernel invocations.
//
// Example:
//
//	acc, err := accelerator.New()
//	if err != nil { ... }
//	defer acc.Finalize()
//	a, _ := accelerator.CreateBuffer1D(acc, []int32{1, 2, 3, 4})
//	b, _ := accelerator.CreateBuffer1D(acc, []int32{10, 20, 30, 40})
//	c, _ := accelerator.Add(a, b)
//	values, _ := c.ToFlat() // [11 22 33 44]
//
// Buffers and kernels keep a reference to the Accelerator that created them, and must not be mixed with the
// ones of another Accelerator. All the work issued through one Accelerator runs in order in its queue:
// enqueuing a kernel doesn't wait for its completion, but reading a buffer back waits for all previous work.
//
// Precondition violations (shape mismatches, malformed kernel arguments) are returned as errors, see the
// error kinds in package backends. The Must* variants panic instead.
package accelerator

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/gomlx/exceptions"
	"github.com/google/uuid"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/mathaccel/mathaccel/backends"
	"github.com/mathaccel/mathaccel/pkg/accelerator/kernels"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Accelerator is one device with one compiled program and one command queue.
//
// It is immutable after construction, and can be shared by the buffers and kernels it creates.
type Accelerator struct {
	id          string
	backend     backends.Backend
	ownsBackend bool
	session     backends.Session
	device      backends.DeviceInfo
	finalized   atomic.Bool
}

type options struct {
	backend  backends.Backend
	config   string
	selector backends.DeviceSelector
	source   string
}

// Option configures New.
type Option func(opts *options)

// WithBackend uses the given backend. The backend is not finalized by Accelerator.Finalize.
func WithBackend(backend backends.Backend) Option {
	return func(opts *options) { opts.backend = backend }
}

// WithConfig creates the backend from the configuration "<backend_name>:<backend_options>",
// see backends.NewWithConfig.
func WithConfig(config string) Option {
	return func(opts *options) { opts.config = config }
}

// WithDeviceSelector sets how the device is selected among the ones enumerated by the backend.
//
// If not set, the environment variable backends.DeviceEnvVar is parsed with backends.ParseDeviceSelector,
// and if that is not set either, the last enumerated device is selected (backends.SelectLast).
func WithDeviceSelector(selector backends.DeviceSelector) Option {
	return func(opts *options) { opts.selector = selector }
}

// WithKernelSource compiles the given program source instead of the library kernels (kernels.Source).
func WithKernelSource(source string) Option {
	return func(opts *options) { opts.source = source }
}

// New creates an Accelerator: it creates the backend (unless WithBackend is given), enumerates its devices,
// selects one, compiles the program for it and creates its command queue.
//
// Errors wrap backends.ErrBackendInit. Compilation errors also wrap a *backends.CompileError with the
// compiler diagnostic.
func New(opts ...Option) (*Accelerator, error) {
	cfg := &options{source: kernels.Source}
	for _, opt := range opts {
		opt(cfg)
	}

	acc := &Accelerator{id: uuid.NewString(), backend: cfg.backend}
	var err error
	if acc.backend == nil {
		if cfg.config != "" {
			acc.backend, err = backends.NewWithConfig(cfg.config)
		} else {
			acc.backend, err = backends.New()
		}
		if err != nil {
			return nil, initError(err, "failed to create backend")
		}
		acc.ownsBackend = true
	}
	if err = acc.bind(cfg); err != nil {
		if acc.ownsBackend {
			acc.backend.Finalize()
		}
		return nil, err
	}
	return acc, nil
}

// bind selects the device and creates the session.
func (acc *Accelerator) bind(cfg *options) error {
	devices, err := acc.backend.Devices()
	if err != nil {
		return initError(err, "failed to enumerate devices of backend %q", acc.backend.Name())
	}
	klog.V(1).Infof("Backend %q: number of devices: %d", acc.backend.Name(), len(devices))
	if len(devices) == 0 {
		return errors.Wrapf(backends.ErrBackendInit, "no devices found for backend %q", acc.backend.Name())
	}

	selector := cfg.selector
	if selector == nil {
		selector, err = backends.ParseDeviceSelector(os.Getenv(backends.DeviceEnvVar))
		if err != nil {
			return initError(err, "invalid $%s", backends.DeviceEnvVar)
		}
	}
	deviceNum, err := selector(devices)
	if err != nil {
		return initError(err, "failed to select device")
	}
	for _, device := range devices {
		if device.Num == deviceNum {
			acc.device = device
		}
	}

	acc.session, err = acc.backend.NewSession(deviceNum, cfg.source)
	if err != nil {
		return initError(err, "failed to compile program for device %s", acc.device)
	}
	acc.device = acc.session.Device()
	klog.V(1).Infof("Accelerator %s: bound to %s, kernels %q", acc.id, acc.device, acc.session.Kernels())
	return nil
}

// initError makes sure err wraps backends.ErrBackendInit, adding the message.
func initError(err error, format string, args ...any) error {
	if errors.Is(err, backends.ErrBackendInit) {
		return errors.WithMessagef(err, format, args...)
	}
	return errors.Wrapf(backends.ErrBackendInit, "%s: %+v", fmt.Sprintf(format, args...), err)
}

// operationError makes sure err wraps backends.ErrBackendOperation (or another error kind already there),
// adding the message.
func operationError(err error, format string, args ...any) error {
	for _, kind := range []error{backends.ErrBackendOperation, backends.ErrArgumentBind, backends.ErrKernelBuild,
		backends.ErrShapeMismatch} {
		if errors.Is(err, kind) {
			return errors.WithMessagef(err, format, args...)
		}
	}
	return errors.Wrapf(backends.ErrBackendOperation, "%s: %+v", fmt.Sprintf(format, args...), err)
}

// MustNew is like New, but panics on error.
func MustNew(opts ...Option) *Accelerator {
	acc, err := New(opts...)
	if err != nil {
		exceptions.Panicf("accelerator.MustNew(): %+v", err)
	}
	return acc
}

// ID returns the unique identifier of the Accelerator.
func (acc *Accelerator) ID() string { return acc.id }

// Backend used by the Accelerator.
func (acc *Accelerator) Backend() backends.Backend { return acc.backend }

// Device bound to the Accelerator.
func (acc *Accelerator) Device() backends.DeviceInfo { return acc.device }

// KernelNames returns the names of the kernels in the compiled program, sorted.
func (acc *Accelerator) KernelNames() []string { return acc.session.Kernels() }

// Supports returns whether buffers of the dtype can be created.
func (acc *Accelerator) Supports(dtype dtypes.DType) bool {
	return acc.backend.Capabilities().Supports(dtype)
}

// String implements fmt.Stringer.
func (acc *Accelerator) String() string {
	return fmt.Sprintf("Accelerator(%s on %s)", acc.backend.Name(), acc.device)
}

func (acc *Accelerator) checkAlive() error {
	if acc.finalized.Load() {
		return errors.Wrapf(backends.ErrBackendOperation, "accelerator %s already finalized", acc.id)
	}
	return nil
}

// Finish blocks until all the work enqueued so far is completed.
// It returns any error of the enqueued work that was not reported yet.
func (acc *Accelerator) Finish() error {
	if err := acc.checkAlive(); err != nil {
		return err
	}
	if err := acc.session.Finish(); err != nil {
		return operationError(err, "accelerator %s", acc.id)
	}
	return nil
}

// Finalize releases the command queue and the program immediately, and the backend if it was created by New.
//
// Pending work is completed first. Buffers and kernels of the Accelerator can't be used afterwards.
// It is safe to call Finalize more than once.
func (acc *Accelerator) Finalize() {
	if !acc.finalized.CompareAndSwap(false, true) {
		return
	}
	acc.session.Finalize()
	if acc.ownsBackend {
		acc.backend.Finalize()
	}
}
