//go:build opencl

package _default

import _ "github.com/mathaccel/mathaccel/backends/opencl"
