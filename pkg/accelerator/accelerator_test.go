// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package accelerator

import (
	"flag"
	"os"
	"testing"

	"github.com/mathaccel/mathaccel/backends"
	_ "github.com/mathaccel/mathaccel/backends/simplego"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func TestMain(m *testing.M) {
	klog.InitFlags(nil)
	flag.Parse()
	if _, found := os.LookupEnv(backends.ConfigEnvVar); !found {
		_ = os.Setenv(backends.ConfigEnvVar, "go")
	}
	os.Exit(m.Run())
}

// newTestAccelerator creates an accelerator finalized at the end of the test.
func newTestAccelerator(t *testing.T, opts ...Option) *Accelerator {
	acc, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(acc.Finalize)
	return acc
}

func TestNew(t *testing.T) {
	acc := newTestAccelerator(t)
	assert.Equal(t, "go", acc.Backend().Name())
	assert.NotEmpty(t, acc.ID())
	assert.Contains(t, acc.KernelNames(), "kernel_add")
	assert.Contains(t, acc.KernelNames(), "kernel_add_float64")
	assert.Len(t, acc.KernelNames(), len(backends.ElementDTypes))
	for _, dtype := range backends.ElementDTypes {
		assert.True(t, acc.Supports(dtype), "dtype %s", dtype)
	}
	assert.Contains(t, acc.String(), acc.Device().Name)

	other := newTestAccelerator(t)
	assert.NotEqual(t, acc.ID(), other.ID())
}

func TestNew_DeviceSelection(t *testing.T) {
	t.Run("default is last", func(t *testing.T) {
		acc := newTestAccelerator(t, WithConfig("go:devices=3"))
		assert.Equal(t, backends.DeviceNum(2), acc.Device().Num)
	})
	t.Run("selector", func(t *testing.T) {
		acc := newTestAccelerator(t, WithConfig("go:devices=3"), WithDeviceSelector(backends.SelectFirst))
		assert.Equal(t, backends.DeviceNum(0), acc.Device().Num)
	})
	t.Run("environment", func(t *testing.T) {
		t.Setenv(backends.DeviceEnvVar, "1")
		acc := newTestAccelerator(t, WithConfig("go:devices=3"))
		assert.Equal(t, backends.DeviceNum(1), acc.Device().Num)
	})
	t.Run("out of range", func(t *testing.T) {
		_, err := New(WithConfig("go:devices=3"), WithDeviceSelector(backends.SelectIndex(5)))
		require.ErrorIs(t, err, backends.ErrBackendInit)
	})
	t.Run("invalid environment", func(t *testing.T) {
		t.Setenv(backends.DeviceEnvVar, "name=")
		_, err := New(WithConfig("go:devices=3"))
		require.ErrorIs(t, err, backends.ErrBackendInit)
	})
}

func TestNew_Errors(t *testing.T) {
	t.Run("no devices", func(t *testing.T) {
		_, err := New(WithConfig("go:devices=0"))
		require.ErrorIs(t, err, backends.ErrBackendInit)
		assert.Contains(t, err.Error(), "no devices")
	})
	t.Run("unknown backend", func(t *testing.T) {
		_, err := New(WithConfig("does_not_exist"))
		require.ErrorIs(t, err, backends.ErrBackendInit)
	})
	t.Run("bad backend option", func(t *testing.T) {
		_, err := New(WithConfig("go:unknown_option=1"))
		require.ErrorIs(t, err, backends.ErrBackendInit)
	})
	t.Run("compile error", func(t *testing.T) {
		_, err := New(WithKernelSource("__kernel void no_go_implementation(__global int *x) { x[0] = 1; }"))
		require.ErrorIs(t, err, backends.ErrBackendInit)
		var compileErr *backends.CompileError
		require.True(t, errors.As(err, &compileErr))
		assert.Contains(t, compileErr.Log, "no_go_implementation")
	})
	t.Run("MustNew panics", func(t *testing.T) {
		require.Panics(t, func() { _ = MustNew(WithConfig("go:devices=0")) })
	})
}

func TestNew_WithBackend(t *testing.T) {
	backend, err := backends.NewWithConfig("go:devices=2")
	require.NoError(t, err)
	defer backend.Finalize()

	acc1 := newTestAccelerator(t, WithBackend(backend), WithDeviceSelector(backends.SelectFirst))
	acc2 := newTestAccelerator(t, WithBackend(backend))
	assert.Equal(t, backends.DeviceNum(0), acc1.Device().Num)
	assert.Equal(t, backends.DeviceNum(1), acc2.Device().Num)

	// Finalizing an accelerator doesn't finalize a backend it doesn't own.
	acc1.Finalize()
	devices, err := backend.Devices()
	require.NoError(t, err)
	assert.Len(t, devices, 2)
	_, err = CreateBuffer1D(acc2, []int32{1})
	require.NoError(t, err)
}

func TestFinalize(t *testing.T) {
	acc := newTestAccelerator(t)
	buf, err := CreateBuffer1D(acc, []float32{1, 2})
	require.NoError(t, err)
	acc.Finalize()
	acc.Finalize()

	_, err = CreateBuffer1D(acc, []float32{1, 2})
	require.ErrorIs(t, err, backends.ErrBackendOperation)
	_, err = buf.ToFlat()
	require.ErrorIs(t, err, backends.ErrBackendOperation)
	require.ErrorIs(t, acc.Finish(), backends.ErrBackendOperation)
	_, err = acc.BuildKernel("kernel_add", buf.Dims())
	require.ErrorIs(t, err, backends.ErrBackendOperation)
	buf.Finalize()
}
