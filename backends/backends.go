// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines the interface a compute backend (OpenCL, a software emulator, ...) needs to
// implement to be driven by the accelerator package.
//
// A backend enumerates devices, and for a selected device it compiles a program (kernel source text)
// and creates one in-order command queue: a Session. Sessions allocate device memory, transfer data
// to/from the host and enqueue kernels with positional arguments.
//
// Backends register themselves during package initialization (see Register), and are created from a
// configuration string formatted as "<backend_name>:<backend_options>".
package backends

import (
	"os"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
)

// DeviceNum represents which device a Session is bound to.
// It's up to the backend to interpret it, but it should be between 0 and len(Backend.Devices()).
type DeviceNum int

// Backend is the API that needs to be implemented by a compute backend.
type Backend interface {
	// Name returns the short name of the backend. E.g.: "opencl" or "go".
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// Devices enumerates the devices available to this backend, in the backend's native order.
	Devices() ([]DeviceInfo, error)

	// Capabilities returns the dtypes supported by the backend.
	Capabilities() Capabilities

	// NewSession compiles the program source for the given device and creates one in-order command queue.
	//
	// Compilation failures are returned wrapping a *CompileError with the compiler diagnostic.
	NewSession(deviceNum DeviceNum, source string) (Session, error)

	// Finalize releases all the associated resources immediately, and makes the backend invalid.
	Finalize()
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register backend with the given name, and a default constructor that takes as input a configuration string that is
// passed along to the backend constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// List the registered backends, sorted by name.
func List() []string {
	names := maps.Keys(registeredConstructors)
	slices.Sort(names)
	return names
}

// DefaultConfig is the name of the default backend configuration to use if specified.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// ConfigEnvVar is the environment variable with the default backend configuration to use.
//
// The format of config is "<backend_name>:<backend_options>".
// The "<backend_name>" is the name of a registered backend (e.g.: "go") and
// "<backend_options>" is a comma-separated list of backend specific options (e.g.: "devices=2,parallelism=4").
const ConfigEnvVar = "MATHACCEL_BACKEND"

// New returns a new default Backend.
//
// The default is:
//
// 1. The environment ConfigEnvVar is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered backend is used with an empty configuration.
//
// It returns an error wrapping ErrBackendInit if no backend was registered.
func New() (Backend, error) {
	config, found := os.LookupEnv(ConfigEnvVar)
	if found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// MustNew returns a new default Backend or panics if it fails.
func MustNew() Backend {
	backend, err := New()
	if err != nil {
		exceptions.Panicf("backends.MustNew(): %+v", err)
	}
	return backend
}

// NewWithConfig takes a configurations string formated as "<backend_name>:<backend_options>".
//
// The "<backend_name>" is the name of a registered backend (e.g.: "go") and
// "<backend_options>" is backend specific (see ParseOptions).
// If the backend name is empty, the first registered backend is used.
func NewWithConfig(config string) (Backend, error) {
	if len(registeredConstructors) == 0 {
		return nil, errors.Wrap(ErrBackendInit,
			`no registered backends -- maybe import the default ones with import _ "github.com/mathaccel/mathaccel/backends/default"?`)
	}
	backendName, backendConfig := SplitConfig(config)
	if backendName == "" {
		backendName = firstRegistered
	}
	constructor, found := registeredConstructors[backendName]
	if !found {
		return nil, errors.Wrapf(ErrBackendInit, "can't find backend %q for configuration %q given, registered backends: %q",
			backendName, config, List())
	}
	backend, err := constructor(backendConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "backend %q failed to initialize with options %q", backendName, backendConfig)
	}
	return backend, nil
}
