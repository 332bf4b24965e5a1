// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

//go:build opencl

package opencl

/*
#cgo CFLAGS: -DCL_TARGET_OPENCL_VERSION=120 -DCL_USE_DEPRECATED_OPENCL_1_2_APIS -Wno-deprecated-declarations

#include <stdlib.h>
#ifdef __APPLE__
#include <OpenCL/opencl.h>
#else
#include <CL/cl.h>
#endif
*/
import "C"

import (
	"reflect"
	"strings"
	"sync"
	"unsafe"

	"github.com/mathaccel/mathaccel/backends"
	"github.com/mathaccel/mathaccel/backends/kernelsrc"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Session implements backends.Session: one OpenCL context with one device, one program and one in-order queue.
type Session struct {
	backend *Backend
	device  *clDevice

	context C.cl_context
	queue   C.cl_command_queue
	program C.cl_program

	signatures *kernelsrc.Program
	kernels    map[string]C.cl_kernel
	names      []string

	// mu protects closed, buffers, and setting kernel arguments until the kernel is enqueued.
	mu      sync.Mutex
	closed  bool
	buffers map[*Buffer]struct{}
}

// Compile-time check that opencl.Session implements backends.Session.
var _ backends.Session = &Session{}

func newSession(backend *Backend, device *clDevice, source string) (s *Session, err error) {
	s = &Session{
		backend: backend,
		device:  device,
		kernels: make(map[string]C.cl_kernel),
		buffers: make(map[*Buffer]struct{}),
	}
	defer func() {
		if err != nil {
			s.release()
			s = nil
		}
	}()

	var status C.cl_int
	deviceID := device.id
	s.context = C.clCreateContext(nil, 1, &deviceID, nil, nil, &status)
	if err = clError(status, backends.ErrBackendInit, "clCreateContext(%s)", device.info); err != nil {
		return
	}
	s.queue = C.clCreateCommandQueue(s.context, deviceID, 0, &status)
	if err = clError(status, backends.ErrBackendInit, "clCreateCommandQueue(%s)", device.info); err != nil {
		return
	}

	cSource := C.CString(source)
	defer C.free(unsafe.Pointer(cSource))
	s.program = C.clCreateProgramWithSource(s.context, 1, &cSource, nil, &status)
	if err = clError(status, backends.ErrBackendInit, "clCreateProgramWithSource"); err != nil {
		return
	}
	cOptions := C.CString(backend.buildOptions)
	defer C.free(unsafe.Pointer(cOptions))
	status = C.clBuildProgram(s.program, 1, &deviceID, cOptions, nil, nil)
	buildLog := s.buildLog()
	if status != C.CL_SUCCESS {
		if buildLog == "" {
			buildLog = clError(status, backends.ErrBackendInit, "clBuildProgram").Error()
		}
		err = errors.WithStack(&backends.CompileError{Device: device.info.Name, Log: buildLog})
		return
	}
	if buildLog != "" {
		klog.V(2).Infof("OpenCL %s build log:\n%s", device.info.Name, buildLog)
	}

	s.signatures, err = kernelsrc.Parse(source)
	if err != nil {
		err = errors.WithStack(&backends.CompileError{Device: device.info.Name, Log: err.Error()})
		return
	}
	for _, name := range s.signatures.Names() {
		s.createKernel(name)
	}
	klog.V(1).Infof("OpenCL session on %s: built %d kernels %q", device.info, len(s.names), s.names)
	return
}

// buildLog returns the program build log for the session device, trimmed.
func (s *Session) buildLog() string {
	var size C.size_t
	if C.clGetProgramBuildInfo(s.program, s.device.id, C.CL_PROGRAM_BUILD_LOG, 0, nil, &size) != C.CL_SUCCESS || size == 0 {
		return ""
	}
	buf := make([]byte, int(size))
	if C.clGetProgramBuildInfo(s.program, s.device.id, C.CL_PROGRAM_BUILD_LOG, size, unsafe.Pointer(&buf[0]), nil) != C.CL_SUCCESS {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(string(buf), "\x00"))
}

// createKernel creates the named kernel object. Kernels declared in the source but not in the built
// program (e.g. excluded by the preprocessor) are skipped.
func (s *Session) createKernel(name string) {
	signature := s.signatures.Kernel(name)
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))
	var status C.cl_int
	kernel := C.clCreateKernel(s.program, cName, &status)
	if err := clError(status, backends.ErrKernelBuild, "clCreateKernel(%q)", name); err != nil {
		klog.V(1).Infof("OpenCL %s: kernel not available: %v", s.device.info.Name, err)
		return
	}
	var numArgs C.cl_uint
	status = C.clGetKernelInfo(kernel, C.CL_KERNEL_NUM_ARGS, C.size_t(unsafe.Sizeof(numArgs)), unsafe.Pointer(&numArgs), nil)
	if status != C.CL_SUCCESS || int(numArgs) != len(signature.Params) {
		klog.Warningf("OpenCL %s: kernel %q has %d arguments, but %d parameters were parsed from its source, skipping it",
			s.device.info.Name, name, int(numArgs), len(signature.Params))
		C.clReleaseKernel(kernel)
		return
	}
	s.kernels[name] = kernel
	s.names = append(s.names, name)
}

// release all OpenCL objects created so far.
func (s *Session) release() {
	if s.queue != nil {
		C.clFinish(s.queue)
	}
	for buffer := range s.buffers {
		buffer.release()
	}
	clear(s.buffers)
	for _, kernel := range s.kernels {
		C.clReleaseKernel(kernel)
	}
	if s.program != nil {
		C.clReleaseProgram(s.program)
		s.program = nil
	}
	if s.queue != nil {
		C.clReleaseCommandQueue(s.queue)
		s.queue = nil
	}
	if s.context != nil {
		C.clReleaseContext(s.context)
		s.context = nil
	}
}

func (s *Session) checkAlive() error {
	if s.closed {
		return errors.Wrapf(backends.ErrBackendOperation, "session on %s already finalized", s.device.info.Name)
	}
	return nil
}

// Device implements backends.Session.
func (s *Session) Device() backends.DeviceInfo { return s.device.info }

// Kernels implements backends.Session.
func (s *Session) Kernels() []string { return s.names }

// Kernel implements backends.Session.
func (s *Session) Kernel(name string) (*kernelsrc.Kernel, error) {
	if _, found := s.kernels[name]; !found {
		return nil, errors.Wrapf(backends.ErrKernelBuild, "kernel %q not found in program for %s, available kernels: %q",
			name, s.device.info.Name, s.names)
	}
	return s.signatures.Kernel(name), nil
}

// Enqueue implements backends.Session.
func (s *Session) Enqueue(kernelName string, workSize backends.WorkSize, args []backends.ArgumentValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAlive(); err != nil {
		return err
	}
	signature, err := s.Kernel(kernelName)
	if err != nil {
		return err
	}
	if len(workSize) < 1 || len(workSize) > 3 {
		return errors.Wrapf(backends.ErrBackendOperation, "kernel %q: work size must have 1 to 3 axes, got %v", kernelName, workSize)
	}
	if len(args) != len(signature.Params) {
		return errors.Wrapf(backends.ErrArgumentBind, "kernel %q takes %d arguments, %d given", kernelName, len(signature.Params), len(args))
	}
	kernel := s.kernels[kernelName]
	for i, arg := range args {
		param := signature.Params[i]
		if err = arg.Validate(); err != nil {
			return errors.WithMessagef(err, "kernel %q argument #%d (%s)", kernelName, i, param.Name)
		}
		if arg.IsBuffer() != param.Pointer || arg.DType != param.DType {
			return errors.Wrapf(backends.ErrArgumentBind, "kernel %q argument #%d: %s given for parameter %q",
				kernelName, i, arg, param)
		}
		var status C.cl_int
		if arg.IsBuffer() {
			buffer, err := s.checkBuffer(arg.Memory)
			if err != nil {
				return errors.WithMessagef(err, "kernel %q argument #%d (%s)", kernelName, i, param.Name)
			}
			if buffer.dtype != param.DType {
				return errors.Wrapf(backends.ErrArgumentBind, "kernel %q argument #%d: buffer of %s given for parameter %q",
					kernelName, i, buffer.dtype, param)
			}
			mem := buffer.mem
			status = C.clSetKernelArg(kernel, C.cl_uint(i), C.size_t(unsafe.Sizeof(mem)), unsafe.Pointer(&mem))
		} else {
			value := reflect.ValueOf(arg.Scalar)
			if value.Type() != param.DType.GoType() {
				return errors.Wrapf(backends.ErrArgumentBind, "kernel %q argument #%d: scalar of Go type %s given for parameter %q",
					kernelName, i, value.Type(), param)
			}
			ptr := reflect.New(value.Type())
			ptr.Elem().Set(value)
			status = C.clSetKernelArg(kernel, C.cl_uint(i), C.size_t(value.Type().Size()), ptr.UnsafePointer())
		}
		if err = clError(status, backends.ErrArgumentBind, "clSetKernelArg(%q, #%d)", kernelName, i); err != nil {
			return err
		}
	}

	global := make([]C.size_t, len(workSize))
	for axis, extent := range workSize {
		global[axis] = C.size_t(extent)
	}
	klog.V(2).Infof("OpenCL %s: enqueue %s, work size %v", s.device.info.Name, kernelName, workSize)
	status := C.clEnqueueNDRangeKernel(s.queue, kernel, C.cl_uint(len(global)), nil, &global[0], nil, 0, nil, nil)
	return clError(status, backends.ErrBackendOperation, "clEnqueueNDRangeKernel(%q)", kernelName)
}

// Finish implements backends.Session.
func (s *Session) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAlive(); err != nil {
		return err
	}
	return clError(C.clFinish(s.queue), backends.ErrBackendOperation, "clFinish")
}

// Finalize implements backends.Session. Pending commands are completed before the objects are released.
func (s *Session) Finalize() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.release()
	s.mu.Unlock()
	s.backend.forgetSession(s)
}
