// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkSize_Size(t *testing.T) {
	assert.Equal(t, uint64(0), WorkSize{}.Size())
	assert.Equal(t, uint64(7), WorkSize{7}.Size())
	assert.Equal(t, uint64(24), WorkSize{2, 3, 4}.Size())
	assert.Equal(t, uint64(0), WorkSize{2, 0, 4}.Size())
}

func TestArgumentValue_Validate(t *testing.T) {
	buffer := ArgumentValue{Memory: "memory", DType: dtypes.Float32}
	require.NoError(t, buffer.Validate())
	assert.True(t, buffer.IsBuffer())
	assert.Equal(t, "buffer[Float32]", buffer.String())

	scalar := ArgumentValue{Scalar: int32(3), DType: dtypes.Int32}
	require.NoError(t, scalar.Validate())
	assert.False(t, scalar.IsBuffer())
	assert.Equal(t, "Int32(3)", scalar.String())

	require.ErrorIs(t, ArgumentValue{}.Validate(), ErrArgumentBind)
	both := ArgumentValue{Memory: "memory", Scalar: int32(3), DType: dtypes.Int32}
	require.ErrorIs(t, both.Validate(), ErrArgumentBind)
}

func TestCompileError(t *testing.T) {
	var err error = &CompileError{Device: "gpu", Log: "<source>:1:1: error: unknown type name 'flaot'"}
	err = errors.WithMessage(err, "compiling")
	require.ErrorIs(t, err, ErrBackendInit)
	assert.False(t, errors.Is(err, ErrKernelBuild))
	var compileErr *CompileError
	require.True(t, errors.As(err, &compileErr))
	assert.Contains(t, err.Error(), "flaot")
}

func TestCapabilities(t *testing.T) {
	c := Capabilities{DTypes: map[dtypes.DType]bool{dtypes.Float32: true}}
	c2 := c.Clone()
	c2.DTypes[dtypes.Float64] = true
	assert.True(t, c.Supports(dtypes.Float32))
	assert.False(t, c.Supports(dtypes.Float64))
	assert.True(t, c2.Supports(dtypes.Float64))
	assert.Len(t, ElementDTypes, 10)
}
