// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package accelerator

import (
	"fmt"
	"runtime"

	"github.com/gomlx/exceptions"
	"github.com/mathaccel/mathaccel/backends"
	"github.com/mathaccel/mathaccel/backends/kernelsrc"
	"github.com/mathaccel/mathaccel/pkg/core/dims"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Kernel is a kernel function of the compiled program with all its arguments bound, ready to be enqueued once.
type Kernel struct {
	acc       *Accelerator
	signature *kernelsrc.Kernel
	workers   dims.Dims
	values    []backends.ArgumentValue
	enqueued  bool

	// args keeps the bound buffers reachable until the kernel is enqueued.
	args []NamedArg
}

// BuildKernel looks up the kernel function by name and binds the arguments to its parameters by name.
//
// The work size is given by workers: one work item per element, with get_global_id(axis) ranging over
// the extent of each axis.
//
// Errors:
//   - backends.ErrKernelBuild if the program has no kernel with that name, or workers is invalid or its
//     number of work items overflows an int.
//   - backends.ErrArgumentBind if an argument carries both or neither of a buffer and a scalar, names an
//     unknown parameter, doesn't match the parameter type, belongs to another Accelerator, or if a
//     parameter is left unbound or bound twice.
func (acc *Accelerator) BuildKernel(name string, workers dims.Dims, args ...NamedArg) (*Kernel, error) {
	if err := acc.checkAlive(); err != nil {
		return nil, err
	}
	if _, err := workers.Multiply(); err != nil {
		return nil, errors.Wrapf(backends.ErrKernelBuild, "kernel %q: invalid work size %s: %v", name, workers, err)
	}
	signature, err := acc.session.Kernel(name)
	if err != nil {
		if !errors.Is(err, backends.ErrKernelBuild) {
			err = errors.Wrapf(backends.ErrKernelBuild, "%+v", err)
		}
		return nil, errors.WithMessagef(err, "BuildKernel(%q)", name)
	}

	k := &Kernel{
		acc:       acc,
		signature: signature,
		workers:   workers,
		values:    make([]backends.ArgumentValue, len(signature.Params)),
		args:      args,
	}
	bound := make([]bool, len(signature.Params))
	for _, arg := range args {
		idx := signature.ParamIndex(arg.Name)
		if idx < 0 {
			return nil, errors.Wrapf(backends.ErrArgumentBind, "kernel %s has no parameter named %q", signature, arg.Name)
		}
		if bound[idx] {
			return nil, errors.Wrapf(backends.ErrArgumentBind, "kernel %q parameter %q bound more than once", name, arg.Name)
		}
		value, err := acc.resolve(signature.Params[idx], arg.Arg)
		if err != nil {
			return nil, errors.WithMessagef(err, "kernel %q parameter %q", name, arg.Name)
		}
		k.values[idx] = value
		bound[idx] = true
	}
	for idx, ok := range bound {
		if !ok {
			return nil, errors.Wrapf(backends.ErrArgumentBind, "kernel %q parameter %q not bound",
				name, signature.Params[idx].Name)
		}
	}
	return k, nil
}

// resolve the argument value and check it against the parameter.
func (acc *Accelerator) resolve(param kernelsrc.Param, arg KernelArgument) (backends.ArgumentValue, error) {
	if arg == nil {
		return backends.ArgumentValue{}, errors.Wrap(backends.ErrArgumentBind, "nil argument")
	}
	value := arg.KernelArgumentValue()
	if err := value.Validate(); err != nil {
		return value, err
	}
	switch {
	case param.AddressSpace == kernelsrc.Local:
		return value, errors.Wrapf(backends.ErrArgumentBind, "local memory parameter %s can't be bound", param)
	case value.IsBuffer() && !param.Pointer:
		return value, errors.Wrapf(backends.ErrArgumentBind, "buffer given for by-value parameter %s", param)
	case !value.IsBuffer() && param.Pointer:
		return value, errors.Wrapf(backends.ErrArgumentBind, "scalar %s given for pointer parameter %s", value, param)
	case value.DType != param.DType:
		return value, errors.Wrapf(backends.ErrArgumentBind, "%s given for parameter %s", value, param)
	case value.IsBuffer() && value.Owner != acc.id:
		return value, errors.Wrapf(backends.ErrArgumentBind, "buffer belongs to another accelerator")
	}
	return value, nil
}

// MustBuildKernel is like BuildKernel, but panics on error.
func (acc *Accelerator) MustBuildKernel(name string, workers dims.Dims, args ...NamedArg) *Kernel {
	k, err := acc.BuildKernel(name, workers, args...)
	if err != nil {
		exceptions.Panicf("Accelerator.MustBuildKernel(): %+v", err)
	}
	return k
}

// Name of the kernel function.
func (k *Kernel) Name() string { return k.signature.Name }

// Workers returns the work size of the invocation.
func (k *Kernel) Workers() dims.Dims { return k.workers }

// String implements fmt.Stringer.
func (k *Kernel) String() string {
	return fmt.Sprintf("%s%s", k.signature.Name, k.workers)
}

// Enqueue submits the kernel to the accelerator queue. It doesn't wait for the execution: its effects are
// visible to subsequent buffer reads.
//
// A Kernel can only be enqueued once. A work size with zero work items enqueues nothing.
func (k *Kernel) Enqueue() error {
	if k.enqueued {
		return errors.Wrapf(backends.ErrBackendOperation, "kernel %s already enqueued", k)
	}
	k.enqueued = true
	if err := k.acc.checkAlive(); err != nil {
		return err
	}
	numItems, err := k.workers.Multiply()
	if err != nil {
		return errors.Wrapf(backends.ErrBackendOperation, "kernel %s: invalid work size: %v", k, err)
	}
	if numItems == 0 {
		klog.V(1).Infof("kernel %s has no work items, nothing enqueued", k)
		return nil
	}
	err = k.acc.session.Enqueue(k.signature.Name, k.workers.WorkSize(), k.values)
	runtime.KeepAlive(k.args)
	k.args = nil
	if err != nil {
		return operationError(err, "failed to enqueue kernel %s", k)
	}
	return nil
}

// RunKernel builds and enqueues the kernel, see BuildKernel and Kernel.Enqueue.
func (acc *Accelerator) RunKernel(name string, workers dims.Dims, args ...NamedArg) error {
	k, err := acc.BuildKernel(name, workers, args...)
	if err != nil {
		return err
	}
	return k.Enqueue()
}
