// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package accelerator

import "github.com/gomlx/gopjrt/dtypes"

// Element enumerates the Go types that can be used as buffer elements and scalar kernel arguments:
// fixed-width integers and 32/64-bit floats.
type Element interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64
}

// DTypeOf returns the dtype tag of the element type T.
func DTypeOf[T Element]() dtypes.DType {
	var t T
	switch any(t).(type) {
	case int8:
		return dtypes.Int8
	case int16:
		return dtypes.Int16
	case int32:
		return dtypes.Int32
	case int64:
		return dtypes.Int64
	case uint8:
		return dtypes.Uint8
	case uint16:
		return dtypes.Uint16
	case uint32:
		return dtypes.Uint32
	case uint64:
		return dtypes.Uint64
	case float32:
		return dtypes.Float32
	case float64:
		return dtypes.Float64
	}
	return dtypes.InvalidDType
}
