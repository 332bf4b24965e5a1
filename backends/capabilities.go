// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"maps"

	"github.com/gomlx/gopjrt/dtypes"
)

// Capabilities holds mappings of what is supported by a backend.
type Capabilities struct {
	// DTypes list the data types supported by a backend for buffers and kernel scalars.
	// If not listed, it's assumed to be false, hence not supported.
	DTypes map[dtypes.DType]bool
}

// Clone makes a deep copy of the Capabilities.
func (c Capabilities) Clone() Capabilities {
	var c2 Capabilities
	c2.DTypes = make(map[dtypes.DType]bool, len(c.DTypes))
	maps.Copy(c2.DTypes, c.DTypes)
	return c2
}

// Supports returns whether the dtype is supported.
func (c Capabilities) Supports(dtype dtypes.DType) bool {
	return c.DTypes[dtype]
}

// ElementDTypes is the closed set of element types the library kernels are written for.
var ElementDTypes = []dtypes.DType{
	dtypes.Int8, dtypes.Uint8,
	dtypes.Int16, dtypes.Uint16,
	dtypes.Int32, dtypes.Uint32,
	dtypes.Int64, dtypes.Uint64,
	dtypes.Float32, dtypes.Float64,
}
