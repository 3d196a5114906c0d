// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool implements a soft-limited pool of goroutines, used to sweep independent work units in parallel.
package workerspool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool of workers. Create it with New.
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
// If set to -1 parallelism is unlimited, and sweeps use runtime.NumCPU() workers.
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

// WaitToStart waits until there is a worker available to run the task in a new goroutine.
//
// If parallelism is disabled (maxParallelism is 0), it runs the task inline and returns when it is finished.
func (w *Pool) WaitToStart(task func()) {
	if w.IsUnlimited() {
		go task()
		return

	} else if w.maxParallelism == 0 {
		task()
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for w.lockedIsFull() {
		w.cond.Wait()
	}
	w.numRunning++
	go func() {
		task()
		w.mu.Lock()
		w.numRunning--
		w.cond.Signal()
		w.mu.Unlock()
	}()
}

// NumWorkers returns the number of workers used by Saturate and Sweep: each is given a worker id in
// [0, NumWorkers), so callers can preallocate per-worker state.
func (w *Pool) NumWorkers() int {
	switch {
	case w.maxParallelism == 0:
		return 1
	case w.maxParallelism < 0:
		return runtime.NumCPU()
	default:
		return w.maxParallelism
	}
}

// Saturate runs task concurrently in NumWorkers goroutines, and waits for all of them to finish.
// Each task receives its worker id, and it is expected to pull its own work until there is none left.
//
// If parallelism is disabled (maxParallelism is 0), it runs the task once inline.
func (w *Pool) Saturate(task func(worker int)) {
	if w.maxParallelism == 0 {
		task(0)
		return
	}
	numWorkers := w.NumWorkers()
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for worker := range numWorkers {
		w.WaitToStart(func() {
			defer wg.Done()
			task(worker)
		})
	}
	wg.Wait()
}

// Sweep calls fn(worker, unit) for every unit in [0, numUnits), and returns the number of workers used.
//
// Units are distributed with an atomic counter: each worker grabs the next unit as soon as it's done with
// the previous one. Sweeps with fewer than minParallelUnits units (or with parallelism disabled) run inline
// on worker 0.
func (w *Pool) Sweep(numUnits, minParallelUnits int, fn func(worker, unit int)) (numWorkers int) {
	if numUnits <= 0 {
		return 0
	}
	if !w.IsEnabled() || numUnits < max(minParallelUnits, 2) || w.NumWorkers() == 1 {
		for unit := range numUnits {
			fn(0, unit)
		}
		return 1
	}
	var nextUnit, activeWorkers atomic.Int32
	w.Saturate(func(worker int) {
		activeWorkers.Add(1)
		for {
			unit := int(nextUnit.Add(1)) - 1
			if unit >= numUnits {
				return
			}
			fn(worker, unit)
		}
	})
	return int(activeWorkers.Load())
}
