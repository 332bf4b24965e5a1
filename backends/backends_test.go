// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend only records its configuration.
type fakeBackend struct {
	name, config string
}

func (b *fakeBackend) Name() string                   { return b.name }
func (b *fakeBackend) Description() string            { return "fake backend with config " + b.config }
func (b *fakeBackend) Devices() ([]DeviceInfo, error) { return nil, nil }
func (b *fakeBackend) Capabilities() Capabilities     { return Capabilities{} }
func (b *fakeBackend) Finalize()                      {}
func (b *fakeBackend) NewSession(DeviceNum, string) (Session, error) {
	return nil, errors.Wrap(ErrBackendInit, "fake backend has no devices")
}

func init() {
	for _, name := range []string{"fake", "another_fake"} {
		Register(name, func(config string) (Backend, error) {
			if config == "fail" {
				return nil, errors.Wrap(ErrBackendInit, "asked to fail")
			}
			return &fakeBackend{name: name, config: config}, nil
		})
	}
}

func TestList(t *testing.T) {
	assert.Equal(t, []string{"another_fake", "fake"}, List())
}

func TestNewWithConfig(t *testing.T) {
	backend, err := NewWithConfig("another_fake:devices=2,x")
	require.NoError(t, err)
	assert.Equal(t, "another_fake", backend.Name())
	assert.Equal(t, "devices=2,x", backend.(*fakeBackend).config)

	// Empty name: first registered.
	backend, err = NewWithConfig(":opt")
	require.NoError(t, err)
	assert.Equal(t, "fake", backend.Name())
	assert.Equal(t, "opt", backend.(*fakeBackend).config)

	_, err = NewWithConfig("unknown")
	require.ErrorIs(t, err, ErrBackendInit)
	assert.Contains(t, err.Error(), "another_fake")

	_, err = NewWithConfig("fake:fail")
	require.ErrorIs(t, err, ErrBackendInit)
}

func TestNew(t *testing.T) {
	t.Setenv(ConfigEnvVar, "another_fake:from_env")
	backend, err := New()
	require.NoError(t, err)
	assert.Equal(t, "another_fake", backend.Name())
	assert.Equal(t, "from_env", backend.(*fakeBackend).config)
	assert.NotPanics(t, func() { _ = MustNew() })

	t.Setenv(ConfigEnvVar, "unknown")
	require.Panics(t, func() { _ = MustNew() })
}

func TestSplitConfig(t *testing.T) {
	name, options := SplitConfig("opencl:platform=1")
	assert.Equal(t, "opencl", name)
	assert.Equal(t, "platform=1", options)
	name, options = SplitConfig("go")
	assert.Equal(t, "go", name)
	assert.Empty(t, options)
	name, options = SplitConfig("go:a=b:c")
	assert.Equal(t, "go", name)
	assert.Equal(t, "a=b:c", options)
}

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions(" devices = 2, verbose ,name=x")
	require.NoError(t, err)
	assert.Equal(t, Options{"devices": "2", "verbose": "", "name": "x"}, opts)

	n, err := opts.PopInt("devices", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = opts.PopInt("devices", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "already popped, default value")
	_, err = opts.PopInt("name", 0)
	require.Error(t, err)
	assert.Equal(t, "", opts.PopString("verbose", "default"))
	assert.Equal(t, "default", opts.PopString("missing", "default"))
	require.NoError(t, opts.CheckEmpty("test"))

	opts, err = ParseOptions("a=1,b")
	require.NoError(t, err)
	err = opts.CheckEmpty("test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test")

	_, err = ParseOptions("a=1,a=2")
	require.Error(t, err)
	_, err = ParseOptions("=1")
	require.Error(t, err)

	opts, err = ParseOptions("")
	require.NoError(t, err)
	assert.Empty(t, opts)
}
