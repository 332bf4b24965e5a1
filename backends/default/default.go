// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package _default includes the default backends, namely SimpleGo and, when built with the `opencl` tag, OpenCL.
//
// To use it simply include:
//
//	import _ "github.com/mathaccel/mathaccel/backends/default"
//
// OpenCL requires the OpenCL headers and an ICD loader (libOpenCL) to be installed.
package _default

import (
	_ "github.com/mathaccel/mathaccel/backends/simplego"
)
