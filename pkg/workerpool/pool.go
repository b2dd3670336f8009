// Package workerpool provides a bounded goroutine pool for controlling
// concurrency. The scan runs two independent pools: a wide one for
// reflection probes and a narrow one for browser verification.
package workerpool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool manages a fixed pool of worker goroutines.
// It prevents goroutine explosion and reuses workers for multiple tasks.
type Pool struct {
	workers int32
	tasks   chan func()
	running int32
	closed  int32
	wg      sync.WaitGroup
}

// New creates a new worker pool with the specified number of workers.
// Workers are started lazily when tasks are submitted.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Pool{
		workers: int32(workers),
		tasks:   make(chan func(), workers*16), // Buffered for burst handling
	}
}

// Submit adds a task to the pool.
// If all workers are busy, the task waits in the queue.
// Returns false if the pool is closed.
func (p *Pool) Submit(task func()) bool {
	if atomic.LoadInt32(&p.closed) == 1 {
		return false
	}

	// Spawn a worker if below limit
	for {
		running := atomic.LoadInt32(&p.running)
		if running >= p.workers {
			break
		}
		if atomic.CompareAndSwapInt32(&p.running, running, running+1) {
			p.wg.Add(1)
			go p.worker()
			break
		}
	}

	p.tasks <- task
	return true
}

// worker is the goroutine that processes tasks.
func (p *Pool) worker() {
	defer func() {
		// Recover from panics in tasks
		if r := recover(); r != nil {
			// Respawn to maintain pool capacity; keep running count and
			// wg.Add since the replacement takes over this slot
			if atomic.LoadInt32(&p.closed) == 0 {
				go p.worker()
				return
			}
		}
		atomic.AddInt32(&p.running, -1)
		p.wg.Done()
	}()

	for task := range p.tasks {
		if task != nil {
			task()
		}
	}
}

// Running returns the current number of running workers.
func (p *Pool) Running() int {
	return int(atomic.LoadInt32(&p.running))
}

// Cap returns the worker capacity.
func (p *Pool) Cap() int {
	return int(atomic.LoadInt32(&p.workers))
}

// Waiting returns the number of tasks waiting in the queue.
func (p *Pool) Waiting() int {
	return len(p.tasks)
}

// Close shuts down the pool gracefully.
// All pending tasks are completed before returning.
func (p *Pool) Close() {
	if !atomic.CompareAndSwapInt32(&p.closed, 0, 1) {
		return // Already closed
	}
	close(p.tasks)
	p.wg.Wait()
}

// IsClosed returns true if the pool is closed.
func (p *Pool) IsClosed() bool {
	return atomic.LoadInt32(&p.closed) == 1
}

// ParallelFor executes fn for each index from 0 to n-1 in parallel.
// Blocks until all iterations complete.
func (p *Pool) ParallelFor(n int, fn func(i int)) {
	if n <= 0 {
		return
	}

	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		idx := i
		if !p.Submit(func() {
			defer wg.Done()
			fn(idx)
		}) {
			wg.Done()
		}
	}

	wg.Wait()
}

// Map applies fn to each item in parallel and returns results in order.
// Returns partial results if the pool is closed during execution.
func Map[T, R any](p *Pool, items []T, fn func(T) R) []R {
	results := make([]R, len(items))
	var wg sync.WaitGroup
	wg.Add(len(items))

	for i, item := range items {
		idx := i
		val := item
		if !p.Submit(func() {
			defer wg.Done()
			results[idx] = fn(val)
		}) {
			// Submit failed (pool closed), compensate for wg.Add
			wg.Done()
		}
	}

	wg.Wait()
	return results
}
