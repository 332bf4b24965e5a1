package simplego

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/mathaccel/mathaccel/backends"
	"github.com/stretchr/testify/require"
)

func TestBuffers_Pool(t *testing.T) {
	b := backend.(*Backend)
	buf := b.getBuffer(dtypes.Int32, 3)
	require.Len(t, buf.flat.([]int32), 3)
	require.True(t, buf.valid.Load())
	buf.valid.Store(false)
	b.putBuffer(buf)

	buf = b.getBuffer(dtypes.Float64, 5)
	require.Equal(t, dtypes.Float64, buf.dtype)
	require.Len(t, buf.flat.([]float64), 5)
}

func TestBuffers_WriteRead(t *testing.T) {
	s := newTestSession(t)
	mem, err := s.Alloc(dtypes.Int32, 4)
	require.NoError(t, err)
	require.NoError(t, s.Write(mem, []int32{1, 2, 3, 4}))
	got := make([]int32, 4)
	require.NoError(t, s.Read(mem, got))
	require.Equal(t, []int32{1, 2, 3, 4}, got)

	// Partial transfers.
	require.NoError(t, s.Write(mem, []int32{7}))
	got = make([]int32, 2)
	require.NoError(t, s.Read(mem, got))
	require.Equal(t, []int32{7, 2}, got)

	require.NoError(t, s.Free(mem))
	require.NoError(t, s.Finish())
}

func TestBuffers_Errors(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Alloc(dtypes.Int32, 0)
	require.ErrorIs(t, err, backends.ErrBackendOperation)
	_, err = s.Alloc(dtypes.Bool, 3)
	require.ErrorIs(t, err, backends.ErrBackendOperation)

	mem, err := s.Alloc(dtypes.Float32, 2)
	require.NoError(t, err)
	require.ErrorIs(t, s.Write(mem, []float64{1, 2}), backends.ErrBackendOperation, "wrong dtype")
	require.ErrorIs(t, s.Write(mem, []float32{1, 2, 3}), backends.ErrBackendOperation, "too long")
	require.ErrorIs(t, s.Read(mem, []int32{0}), backends.ErrBackendOperation, "wrong dtype")
	require.ErrorIs(t, s.Write("not a buffer", []float32{1}), backends.ErrBackendOperation)

	other := newTestSession(t)
	require.ErrorIs(t, other.Write(mem, []float32{1}), backends.ErrBackendOperation, "buffer of another session")

	require.NoError(t, s.Free(mem))
	require.ErrorIs(t, s.Free(mem), backends.ErrBackendOperation, "double free")
	require.ErrorIs(t, s.Read(mem, []float32{0}), backends.ErrBackendOperation, "use after free")
}
