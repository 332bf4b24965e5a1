// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

//go:build opencl

package opencl

import (
	"fmt"
	"sync"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/mathaccel/mathaccel/backends"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Registers New() as the constructor for the "opencl" backend.
func init() {
	backends.Register(BackendName, New)
}

// Backend implements backends.Backend over the OpenCL platforms installed.
type Backend struct {
	devices      []clDevice
	buildOptions string

	mu        sync.Mutex
	sessions  map[*Session]struct{}
	finalized bool
}

// Compile-time check that opencl.Backend implements backends.Backend.
var _ backends.Backend = &Backend{}

// New constructs the OpenCL backend, enumerating the devices of all platforms.
//
// Having no devices is not an error here: the accelerator reports it when selecting a device.
func New(config string) (backends.Backend, error) {
	options, err := backends.ParseOptions(config)
	if err != nil {
		return nil, errors.Wrap(backends.ErrBackendInit, err.Error())
	}
	deviceType, err := parseDeviceType(options.PopString("type", "all"))
	if err != nil {
		return nil, errors.Wrap(backends.ErrBackendInit, err.Error())
	}
	b := &Backend{buildOptions: options.PopString("build_options", "")}
	if err = options.CheckEmpty(BackendName); err != nil {
		return nil, errors.Wrap(backends.ErrBackendInit, err.Error())
	}
	b.devices, err = enumerateDevices(deviceType)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("OpenCL backend: %d devices", len(b.devices))
	return b, nil
}

// Name returns the short name of the backend.
func (b *Backend) Name() string { return BackendName }

// String implements fmt.Stringer.
func (b *Backend) String() string { return BackendName }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	return fmt.Sprintf("OpenCL (%d devices)", len(b.devices))
}

// Devices returns the enumerated devices.
func (b *Backend) Devices() ([]backends.DeviceInfo, error) {
	infos := make([]backends.DeviceInfo, len(b.devices))
	for i, device := range b.devices {
		infos[i] = device.info
	}
	return infos, nil
}

// Capabilities returns the integer and float32 dtypes, and float64 if any device supports cl_khr_fp64.
func (b *Backend) Capabilities() backends.Capabilities {
	c := backends.Capabilities{DTypes: make(map[dtypes.DType]bool, len(backends.ElementDTypes))}
	for _, dtype := range backends.ElementDTypes {
		c.DTypes[dtype] = true
	}
	c.DTypes[dtypes.Float64] = false
	for _, device := range b.devices {
		if device.fp64 {
			c.DTypes[dtypes.Float64] = true
		}
	}
	return c
}

// NewSession creates a context and a command queue for the device, and builds the program.
func (b *Backend) NewSession(deviceNum backends.DeviceNum, source string) (backends.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finalized {
		return nil, errors.Wrap(backends.ErrBackendInit, "OpenCL backend already finalized")
	}
	if deviceNum < 0 || int(deviceNum) >= len(b.devices) {
		return nil, errors.Wrapf(backends.ErrBackendInit, "device #%d doesn't exist, OpenCL backend has %d devices",
			deviceNum, len(b.devices))
	}
	s, err := newSession(b, &b.devices[deviceNum], source)
	if err != nil {
		return nil, err
	}
	if b.sessions == nil {
		b.sessions = make(map[*Session]struct{})
	}
	b.sessions[s] = struct{}{}
	return s, nil
}

func (b *Backend) forgetSession(s *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, s)
}

// Finalize releases all sessions and makes the backend invalid.
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
