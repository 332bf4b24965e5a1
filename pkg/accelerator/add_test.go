// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package accelerator

import (
	"math"
	"testing"

	"github.com/mathaccel/mathaccel/backends"
	"github.com/mathaccel/mathaccel/pkg/core/dims"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd(t *testing.T) {
	acc := newTestAccelerator(t)
	a, err := CreateBuffer1D(acc, []int32{1, 2, 3, 4})
	require.NoError(t, err)
	b, err := CreateBuffer1D(acc, []int32{10, 20, 30, 40})
	require.NoError(t, err)
	c, err := Add(a, b)
	require.NoError(t, err)
	assert.Equal(t, dims.One(4), c.Dims())
	assert.Equal(t, []int32{11, 22, 33, 44}, c.MustToFlat())

	// Inputs are untouched.
	assert.Equal(t, []int32{1, 2, 3, 4}, a.MustToFlat())
	assert.Equal(t, []int32{10, 20, 30, 40}, b.MustToFlat())

	// Chained, without waiting in between.
	d := MustAdd(MustAdd(a, b), c)
	assert.Equal(t, []int32{22, 44, 66, 88}, d.MustToFlat())
}

func testAddDType[T Element](t *testing.T, acc *Accelerator) {
	t.Run(DTypeOf[T]().String(), func(t *testing.T) {
		a := MustCreateBuffer(acc, []T{1, 2, 3, 4}, dims.One(4))
		b := MustCreateBuffer(acc, []T{10, 20, 30, 40}, dims.One(4))
		c, err := Add(a, b)
		require.NoError(t, err)
		assert.Equal(t, []T{11, 22, 33, 44}, c.MustToFlat())
	})
}

func TestAdd_DTypes(t *testing.T) {
	acc := newTestAccelerator(t)
	testAddDType[int8](t, acc)
	testAddDType[uint8](t, acc)
	testAddDType[int16](t, acc)
	testAddDType[uint16](t, acc)
	testAddDType[int32](t, acc)
	testAddDType[uint32](t, acc)
	testAddDType[int64](t, acc)
	testAddDType[uint64](t, acc)
	testAddDType[float32](t, acc)
	testAddDType[float64](t, acc)
}

func TestAdd_MultiDimensional(t *testing.T) {
	acc := newTestAccelerator(t)

	a := MustCreateBuffer(acc, []float32{1, 2, 3, 4, 5, 6}, dims.Two(2, 3))
	b := MustCreateBuffer(acc, []float32{0.5, 0.5, 0.5, 0.5, 0.5, 0.5}, dims.Two(2, 3))
	c := MustAdd(a, b)
	assert.Equal(t, dims.Two(2, 3), c.Dims())
	assert.Equal(t, []float32{1.5, 2.5, 3.5, 4.5, 5.5, 6.5}, c.MustToFlat())

	x := MustCreateBuffer(acc, []int64{1, 2, 3, 4, 5, 6, 7, 8}, dims.Three(2, 2, 2))
	y := MustCreateBuffer(acc, []int64{-1, -2, -3, -4, -5, -6, -7, -8}, dims.Three(2, 2, 2))
	z := MustAdd(x, y)
	assert.Equal(t, dims.Three(2, 2, 2), z.Dims())
	assert.Equal(t, make([]int64, 8), z.MustToFlat())
}

func TestAdd_Large(t *testing.T) {
	// Large enough to be split among workers.
	acc := newTestAccelerator(t, WithConfig("go:parallelism=4"))
	const n = 100_003
	dataA := make([]float64, n)
	dataB := make([]float64, n)
	want := make([]float64, n)
	for i := range n {
		dataA[i] = float64(i)
		dataB[i] = float64(2 * i)
		want[i] = float64(3 * i)
	}
	a := MustCreateBuffer(acc, dataA, dims.One(n))
	b := MustCreateBuffer(acc, dataB, dims.One(n))
	assert.Equal(t, want, MustAdd(a, b).MustToFlat())
}

func TestAdd_Wraparound(t *testing.T) {
	acc := newTestAccelerator(t)
	a := MustCreateBuffer(acc, []uint8{250, 255}, dims.One(2))
	b := MustCreateBuffer(acc, []uint8{10, 1}, dims.One(2))
	assert.Equal(t, []uint8{4, 0}, MustAdd(a, b).MustToFlat())

	x := MustCreateBuffer(acc, []int32{math.MaxInt32}, dims.One(1))
	y := MustCreateBuffer(acc, []int32{1}, dims.One(1))
	assert.Equal(t, []int32{math.MinInt32}, MustAdd(x, y).MustToFlat())
}

func TestAdd_ZeroSize(t *testing.T) {
	acc := newTestAccelerator(t)
	a := MustCreateBuffer(acc, []float32{}, dims.One(0))
	b := MustCreateBuffer(acc, []float32{}, dims.One(0))
	c, err := Add(a, b)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.MustToFlat())
}

func TestAdd_Errors(t *testing.T) {
	acc := newTestAccelerator(t)
	other := newTestAccelerator(t)

	a := MustCreateBuffer(acc, []int32{1, 2, 3, 4}, dims.One(4))
	b := MustCreateBuffer(acc, []int32{1, 2, 3, 4}, dims.Two(2, 2))
	_, err := Add(a, b)
	require.ErrorIs(t, err, backends.ErrShapeMismatch, "same length but different dims")

	short := MustCreateBuffer(acc, []int32{1, 2, 3}, dims.One(3))
	_, err = Add(a, short)
	require.ErrorIs(t, err, backends.ErrShapeMismatch)
	require.Panics(t, func() { _ = MustAdd(a, short) })

	foreign := MustCreateBuffer(other, []int32{1, 2, 3, 4}, dims.One(4))
	_, err = Add(a, foreign)
	require.ErrorIs(t, err, backends.ErrArgumentBind)

	_, err = Add(a, nil)
	require.ErrorIs(t, err, backends.ErrArgumentBind)

	finalized := MustCreateBuffer(acc, []int32{1, 2, 3, 4}, dims.One(4))
	finalized.Finalize()
	_, err = Add(a, finalized)
	require.ErrorIs(t, err, backends.ErrBackendOperation)
	_, err = Add(finalized, a)
	require.ErrorIs(t, err, backends.ErrArgumentBind)
}
