// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/mathaccel/mathaccel/backends"
	"github.com/mathaccel/mathaccel/backends/kernelsrc"
	"github.com/mathaccel/mathaccel/internal/workerspool"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// queueCapacity is the number of commands that can be pending before Enqueue blocks.
const queueCapacity = 64

// minWorkItemsPerChunk is the minimum number of work items handed to one worker.
const minWorkItemsPerChunk = 4096

// Session implements backends.Session: one emulated device, one program and one in-order queue.
type Session struct {
	backend *Backend
	device  backends.DeviceInfo
	program *kernelsrc.Program
	kernels map[string]KernelFunc
	workers *workerspool.Pool

	// mu protects closed and sending to commands.
	mu       sync.RWMutex
	closed   bool
	commands chan *command
	done     chan struct{}

	// deferredErr is the first error of an asynchronous command, not yet reported.
	// Only accessed by the queue goroutine.
	deferredErr error
}

// Compile-time check that simplego.Session implements backends.Session.
var _ backends.Session = &Session{}

type command struct {
	name string
	run  func() error

	// result is nil for asynchronous commands.
	result chan error
}

func newSession(backend *Backend, deviceNum backends.DeviceNum, source string) (*Session, error) {
	devices, _ := backend.Devices()
	device := devices[deviceNum]
	program, err := kernelsrc.Parse(source)
	if err != nil {
		return nil, errors.WithStack(&backends.CompileError{Device: device.Name, Log: err.Error()})
	}
	kernels := make(map[string]KernelFunc, program.Len())
	var missing []string
	for _, name := range program.Names() {
		fn, found := lookupKernel(name)
		if !found {
			kernel := program.Kernel(name)
			missing = append(missing, fmt.Sprintf("line %d: kernel %q has no Go implementation registered", kernel.Line, name))
			continue
		}
		kernels[name] = fn
	}
	if len(missing) > 0 {
		return nil, errors.WithStack(&backends.CompileError{Device: device.Name, Log: strings.Join(missing, "\n")})
	}
	s := &Session{
		backend:  backend,
		device:   device,
		program:  program,
		kernels:  kernels,
		workers:  workerspool.New(),
		commands: make(chan *command, queueCapacity),
		done:     make(chan struct{}),
	}
	s.workers.SetMaxParallelism(backend.parallelism)
	go s.loop()
	klog.V(1).Infof("SimpleGo session on %s: compiled %d kernels %q, parallelism=%d", device, program.Len(), program.Names(),
		s.workers.MaxParallelism())
	return s, nil
}

// loop executes the commands in order, until the commands channel is closed.
func (s *Session) loop() {
	defer close(s.done)
	for cmd := range s.commands {
		err := s.runCommand(cmd)
		if cmd.result != nil {
			if err == nil {
				err = s.deferredErr
			} else if s.deferredErr != nil {
				klog.Warningf("SimpleGo %s: %q failed while an earlier error was pending: %+v", s.device.Name, cmd.name, s.deferredErr)
			}
			s.deferredErr = nil
			cmd.result <- err
			continue
		}
		if err != nil && s.deferredErr == nil {
			s.deferredErr = err
		}
	}
}

// runCommand runs the command converting panics to errors.
func (s *Session) runCommand(cmd *command) (err error) {
	exception := exceptions.Try(func() { err = cmd.run() })
	if exception != nil {
		if exceptionErr, ok := exception.(error); ok {
			err = errors.Wrapf(backends.ErrBackendOperation, "%s failed: %v", cmd.name, exceptionErr)
		} else {
			err = errors.Wrapf(backends.ErrBackendOperation, "%s failed: %v", cmd.name, exception)
		}
	}
	return
}

// submit a command to the queue. If wait is true, it blocks until the command is executed and returns its error,
// or the error of an earlier asynchronous command.
func (s *Session) submit(name string, wait bool, run func() error) error {
	cmd := &command{name: name, run: run}
	if wait {
		cmd.result = make(chan error, 1)
	}
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return errors.Wrapf(backends.ErrBackendOperation, "%s: session on %s already finalized", name, s.device.Name)
	}
	s.commands <- cmd
	s.mu.RUnlock()
	if !wait {
		return nil
	}
	return <-cmd.result
}

func (s *Session) checkAlive() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.Wrapf(backends.ErrBackendOperation, "session on %s already finalized", s.device.Name)
	}
	return nil
}

// Device implements backends.Session.
func (s *Session) Device() backends.DeviceInfo { return s.device }

// Kernels implements backends.Session.
func (s *Session) Kernels() []string { return s.program.Names() }

// Kernel implements backends.Session.
func (s *Session) Kernel(name string) (*kernelsrc.Kernel, error) {
	kernel := s.program.Kernel(name)
	if kernel == nil {
		return nil, errors.Wrapf(backends.ErrKernelBuild, "kernel %q not found in program, available kernels: %q",
			name, s.program.Names())
	}
	return kernel, nil
}

// Enqueue implements backends.Session.
//
// Arguments are checked against the kernel signature before the command is queued. Errors during the
// execution (e.g. out-of-range accesses) are reported by the next blocking call.
func (s *Session) Enqueue(kernelName string, workSize backends.WorkSize, args []backends.ArgumentValue) error {
	kernel, err := s.Kernel(kernelName)
	if err != nil {
		return err
	}
	if len(workSize) < 1 || len(workSize) > 3 {
		return errors.Wrapf(backends.ErrBackendOperation, "kernel %q: work size must have 1 to 3 axes, got %v", kernelName, workSize)
	}
	if len(args) != len(kernel.Params) {
		return errors.Wrapf(backends.ErrArgumentBind, "kernel %q takes %d arguments, %d given", kernelName, len(kernel.Params), len(args))
	}
	launch := &Launch{WorkSize: workSize, Args: make([]Value, len(args))}
	for i, arg := range args {
		param := kernel.Params[i]
		if err := arg.Validate(); err != nil {
			return errors.WithMessagef(err, "kernel %q argument #%d (%s)", kernelName, i, param.Name)
		}
		if arg.IsBuffer() != param.Pointer || arg.DType != param.DType {
			return errors.Wrapf(backends.ErrArgumentBind, "kernel %q argument #%d: %s given for parameter %q",
				kernelName, i, arg, param)
		}
		if arg.IsBuffer() {
			buffer, err := s.checkBuffer(arg.Memory)
			if err != nil {
				return errors.WithMessagef(err, "kernel %q argument #%d (%s)", kernelName, i, param.Name)
			}
			if buffer.dtype != param.DType {
				return errors.Wrapf(backends.ErrArgumentBind, "kernel %q argument #%d: buffer of %s given for parameter %q",
					kernelName, i, buffer.dtype, param)
			}
			launch.Args[i] = Value{Flat: buffer.flat, Len: buffer.length}
		} else {
			launch.Args[i] = Value{Scalar: arg.Scalar}
		}
	}
	fn := s.kernels[kernelName]
	numItems := int(workSize.Size())
	klog.V(2).Infof("SimpleGo %s: enqueue %s, work size %v", s.device.Name, kernelName, workSize)
	return s.submit(kernelName, false, func() error {
		return s.execute(kernelName, fn, launch, numItems)
	})
}

// execute runs the kernel over all work items, split in chunks among the workers.
func (s *Session) execute(kernelName string, fn KernelFunc, launch *Launch, numItems int) error {
	var (
		mu       sync.Mutex
		firstErr error
	)
	run := s.workers.ForRange
	if !s.workers.IsEnabled() {
		run = func(n, _ int, fn func(start, end int)) { fn(0, n) }
	}
	run(numItems, minWorkItemsPerChunk, func(start, end int) {
		exception := exceptions.Try(func() { fn(launch, start, end) })
		if exception == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = errors.Wrapf(backends.ErrBackendOperation, "kernel %q failed on work items [%d, %d): %v",
				kernelName, start, end, exception)
		}
	})
	return firstErr
}

// Finish implements backends.Session.
func (s *Session) Finish() error {
	return s.submit("finish", true, func() error { return nil })
}

// Finalize implements backends.Session. Pending commands are executed before it returns.
func (s *Session) Finalize() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.commands)
	s.mu.Unlock()
	<-s.done
	if s.deferredErr != nil {
		klog.Warningf("SimpleGo %s: finalized with unreported error: %+v", s.device.Name, s.deferredErr)
	}
	s.backend.forgetSession(s)
}
