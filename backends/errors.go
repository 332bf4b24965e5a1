// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds returned by backends and by the accelerator package.
//
// Errors are wrapped with context (and a stack trace) using github.com/pkg/errors, so always compare
// using errors.Is.
var (
	// ErrBackendInit is returned when no backend or device is available, or the program fails to compile.
	ErrBackendInit = errors.New("backend initialization failed")

	// ErrShapeMismatch is returned when data length and declared dimensions disagree, or two buffers
	// that should have the same shape don't.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrKernelBuild is returned when a kernel function doesn't exist in the compiled program.
	ErrKernelBuild = errors.New("kernel build failed")

	// ErrArgumentBind is returned when a kernel argument can't be bound to a kernel parameter.
	ErrArgumentBind = errors.New("kernel argument binding failed")

	// ErrBackendOperation is an opaque backend failure during allocation, transfer or enqueue.
	ErrBackendOperation = errors.New("backend operation failed")
)

// CompileError holds the diagnostic of a failed program compilation, verbatim from the compiler.
type CompileError struct {
	Device string
	Log    string
}

// Error implements error.
func (e *CompileError) Error() string {
	return fmt.Sprintf("program compilation failed for device %q:\n%s", e.Device, e.Log)
}

// Is makes errors.Is(err, ErrBackendInit) true for compilation errors.
func (e *CompileError) Is(target error) bool {
	return target == ErrBackendInit
}
