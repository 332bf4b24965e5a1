// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool implements a soft-bounded pool of goroutines, used by the software backend
// to spread the work items of a kernel over the available CPUs.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool limits the number of goroutines running tasks.
type Pool struct {
	// maxParallelism is a soft target on the limit of parallel work to do.
	maxParallelism int
	mu             sync.Mutex
	cond           sync.Cond // Should be signaled whenever numRunning is decreased.
	numRunning     int
}

// New return a new Pool of workers with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	w := &Pool{}
	w.maxParallelism = runtime.NumCPU()
	w.cond = sync.Cond{L: &w.mu}
	return w
}

// IsEnabled returns whether parallelism is enabled (maxParallelism is != 0)
func (w *Pool) IsEnabled() bool {
	return w.maxParallelism != 0
}

// IsUnlimited returns whether parallelism is unlimited (maxParallelism < 0)
func (w *Pool) IsUnlimited() bool {
	return w.maxParallelism < 0
}

// MaxParallelism is a soft-target for parallelism.
// If set to 0 parallelism is disabled.
// If set to -1 parallelism is unlimited.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// SetMaxParallelism sets the maxParallelism.
//
// You should only change the parallelism before any workers start running. If changed during the execution
// the behavior is undefined.
func (w *Pool) SetMaxParallelism(maxParallelism int) {
	w.maxParallelism = maxParallelism
}

// lockedIsFull returns whether all available workers are in use.
//
// It must be called with Pool.mu acquired.
func (w *Pool) lockedIsFull() bool {
	if w.maxParallelism == 0 {
		return true
	} else if w.maxParallelism < 0 {
		return false
	}
	return w.numRunning >= w.maxParallelism
}

// WaitToStart waits until there is a worker available to run the task.
//
// If parallelism is disabled (maxParallelism is 0), it runs the task inline and returns when it is finished.
func (w *Pool) WaitToStart(task func()) {
	if w.IsUnlimited() {
		go task()
		return

	} else if w.maxParallelism == 0 {
		// No parallelism, run inline.
		task()
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for w.lockedIsFull() {
		w.cond.Wait()
	}
	w.lockedRunTaskInGoroutine(task)
}

// lockedRunTaskInGoroutine and keep tabs on w.numRunning.
//
// It must be called with Pool.mu acquired.
func (w *Pool) lockedRunTaskInGoroutine(task func()) {
	w.numRunning++
	go func() {
		task()
		w.mu.Lock()
		w.numRunning--
		w.cond.Signal()
		w.mu.Unlock()
	}()
}

// ForRange splits [0, n) in contiguous chunks of at least minChunk elements and calls fn(start, end)
// for each of them, using the pool's workers. It returns when all chunks are done.
//
// The number of chunks is at most the parallelism, so each worker gets one chunk.
// With parallelism disabled, fn(0, n) is called inline.
func (w *Pool) ForRange(n, minChunk int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	minChunk = max(minChunk, 1)
	numChunks := (n + minChunk - 1) / minChunk
	switch {
	case w.maxParallelism == 0:
		numChunks = 1
	case w.maxParallelism > 0:
		numChunks = min(numChunks, w.maxParallelism)
	default:
		numChunks = min(numChunks, runtime.NumCPU())
	}
	if numChunks <= 1 {
		fn(0, n)
		return
	}
	chunkSize := (n + numChunks - 1) / numChunks
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		w.WaitToStart(func() {
			defer wg.Done()
			fn(start, end)
		})
	}
	wg.Wait()
}
