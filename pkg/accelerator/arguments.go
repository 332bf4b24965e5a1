// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package accelerator

import (
	"fmt"

	"github.com/mathaccel/mathaccel/backends"
)

// KernelArgument is anything that can be bound to a kernel parameter: a *Buffer (of any element type)
// or a scalar value (see Scalar).
//
// The returned value must carry exactly one of a buffer or a scalar, otherwise binding fails with an error
// wrapping backends.ErrArgumentBind.
type KernelArgument interface {
	KernelArgumentValue() backends.ArgumentValue
}

// ScalarArg is a scalar value passed by value to a kernel parameter.
type ScalarArg[T Element] struct {
	Value T
}

// Scalar creates a by-value kernel argument.
func Scalar[T Element](value T) ScalarArg[T] {
	return ScalarArg[T]{Value: value}
}

// KernelArgumentValue implements KernelArgument.
func (s ScalarArg[T]) KernelArgumentValue() backends.ArgumentValue {
	return backends.ArgumentValue{Scalar: s.Value, DType: DTypeOf[T]()}
}

// String implements fmt.Stringer.
func (s ScalarArg[T]) String() string {
	return fmt.Sprintf("%s(%v)", DTypeOf[T](), s.Value)
}

// NamedArg binds an argument to the kernel parameter with the given name.
type NamedArg struct {
	Name string
	Arg  KernelArgument
}

// Named creates a NamedArg.
func Named(name string, arg KernelArgument) NamedArg {
	return NamedArg{Name: name, Arg: arg}
}

// String implements fmt.Stringer.
func (na NamedArg) String() string {
	return fmt.Sprintf("%s=%v", na.Name, na.Arg)
}
