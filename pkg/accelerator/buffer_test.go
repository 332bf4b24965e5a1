// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package accelerator

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/mathaccel/mathaccel/backends"
	"github.com/mathaccel/mathaccel/pkg/core/dims"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDTypeOf(t *testing.T) {
	assert.Equal(t, dtypes.Int8, DTypeOf[int8]())
	assert.Equal(t, dtypes.Uint16, DTypeOf[uint16]())
	assert.Equal(t, dtypes.Int32, DTypeOf[int32]())
	assert.Equal(t, dtypes.Uint64, DTypeOf[uint64]())
	assert.Equal(t, dtypes.Float32, DTypeOf[float32]())
	assert.Equal(t, dtypes.Float64, DTypeOf[float64]())
}

func TestCreateBuffer(t *testing.T) {
	acc := newTestAccelerator(t)

	buf, err := CreateBuffer(acc, []float32{1, 2, 3, 4, 5, 6}, dims.Two(2, 3))
	require.NoError(t, err)
	assert.Equal(t, dims.Two(2, 3), buf.Dims())
	assert.Equal(t, 6, buf.Len())
	assert.Equal(t, dtypes.Float32, buf.DType())
	assert.Same(t, acc, buf.Accelerator())
	assert.Equal(t, "Buffer[Float32](2, 3)", buf.String())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, buf.MustToFlat())

	require.NoError(t, buf.Upload([]float32{6, 5, 4, 3, 2, 1}))
	assert.Equal(t, []float32{6, 5, 4, 3, 2, 1}, buf.MustToFlat())

	buf1D, err := CreateBuffer1D(acc, []uint8{7, 8, 9})
	require.NoError(t, err)
	assert.Equal(t, dims.One(3), buf1D.Dims())
	assert.Equal(t, []uint8{7, 8, 9}, buf1D.MustToFlat())
}

func TestCreateBuffer_ShapeMismatch(t *testing.T) {
	acc, counting := newCountingAccelerator(t)

	_, err := CreateBuffer(acc, []int32{1, 2, 3}, dims.One(4))
	require.ErrorIs(t, err, backends.ErrShapeMismatch)
	_, err = CreateBuffer(acc, []int32{1, 2, 3, 4, 5}, dims.Two(2, 2))
	require.ErrorIs(t, err, backends.ErrShapeMismatch)
	_, err = CreateBuffer(acc, []int32{}, dims.One(-1))
	require.ErrorIs(t, err, backends.ErrShapeMismatch)
	_, err = CreateBuffer(acc, []int32{1}, dims.Dims{})
	require.ErrorIs(t, err, backends.ErrShapeMismatch)
	require.Panics(t, func() { _ = MustCreateBuffer(acc, []int32{1, 2, 3}, dims.One(4)) })
	assert.Zero(t, counting.allocs.Load(), "rejected buffers must not allocate")
	assert.Zero(t, counting.writes.Load())

	buf := MustCreateBuffer(acc, []int32{1, 2}, dims.One(2))
	assert.Equal(t, int32(1), counting.allocs.Load())
	require.ErrorIs(t, buf.Upload([]int32{1, 2, 3}), backends.ErrShapeMismatch)
}

func TestCreateBuffer_ZeroSize(t *testing.T) {
	acc := newTestAccelerator(t)
	for _, d := range []dims.Dims{dims.One(0), dims.Two(3, 0), dims.Three(0, 2, 2)} {
		buf, err := CreateBuffer(acc, []float64{}, d)
		require.NoError(t, err, "dims %s", d)
		assert.Equal(t, 0, buf.Len())
		flat, err := buf.ToFlat()
		require.NoError(t, err)
		assert.Empty(t, flat)
	}

	empty, err := CreateBuffer1D[int16](acc, nil)
	require.NoError(t, err)
	assert.Equal(t, dims.One(0), empty.Dims())
}

func TestNewBuffer(t *testing.T) {
	acc := newTestAccelerator(t)
	buf, err := NewBuffer[uint32](acc, dims.Three(2, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, 8, buf.Len())
	require.NoError(t, buf.Upload([]uint32{1, 2, 3, 4, 5, 6, 7, 8}))
	assert.Equal(t, []uint32{1, 2, 3, 4, 5, 6, 7, 8}, buf.MustToFlat())

	_, err = NewBuffer[uint32](nil, dims.One(1))
	require.ErrorIs(t, err, backends.ErrBackendOperation)
}

func TestBuffer_Duplicate(t *testing.T) {
	acc := newTestAccelerator(t)
	buf, err := CreateBuffer(acc, []int64{1, 2, 3, 4, 5, 6}, dims.Two(3, 2))
	require.NoError(t, err)

	dup, err := buf.Duplicate()
	require.NoError(t, err)
	assert.Equal(t, buf.Dims(), dup.Dims())
	assert.Equal(t, buf.Len(), dup.Len())
	assert.Same(t, acc, dup.Accelerator())
	assert.NotSame(t, buf, dup)

	reshaped, err := buf.DuplicateWithDims(dims.Three(1, 2, 4))
	require.NoError(t, err)
	assert.Equal(t, dims.Three(1, 2, 4), reshaped.Dims())
	assert.Equal(t, 8, reshaped.Len())

	empty, err := buf.DuplicateWithDims(dims.One(0))
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())

	_, err = buf.DuplicateWithDims(dims.Two(-1, 2))
	require.ErrorIs(t, err, backends.ErrShapeMismatch)

	// Source contents are unaffected.
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, buf.MustToFlat())
}

func TestBuffer_Finalize(t *testing.T) {
	acc := newTestAccelerator(t)
	buf, err := CreateBuffer1D(acc, []int8{1, 2, 3})
	require.NoError(t, err)
	assert.False(t, buf.IsFinalized())
	buf.Finalize()
	assert.True(t, buf.IsFinalized())
	buf.Finalize()

	_, err = buf.ToFlat()
	require.ErrorIs(t, err, backends.ErrBackendOperation)
	require.ErrorIs(t, buf.Upload([]int8{1, 2, 3}), backends.ErrBackendOperation)
	_, err = buf.Duplicate()
	require.ErrorIs(t, err, backends.ErrBackendOperation)
	require.Panics(t, func() { _ = buf.MustToFlat() })

	var nilBuf *Buffer[int8]
	nilBuf.Finalize()
	assert.Equal(t, "Buffer(nil)", nilBuf.String())
}
