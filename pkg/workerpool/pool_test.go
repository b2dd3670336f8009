package workerpool

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_Submit(t *testing.T) {
	p := New(4)
	defer p.Close()

	var counter int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		ok := p.Submit(func() {
			defer wg.Done()
			atomic.AddInt32(&counter, 1)
		})
		if !ok {
			t.Fatal("Submit returned false on open pool")
		}
	}
	wg.Wait()

	if got := atomic.LoadInt32(&counter); got != 50 {
		t.Errorf("executed %d tasks, want 50", got)
	}
}

func TestPool_DefaultSize(t *testing.T) {
	p := New(0)
	defer p.Close()
	if got := p.Cap(); got != runtime.GOMAXPROCS(0) {
		t.Errorf("Cap() = %d, want GOMAXPROCS %d", got, runtime.GOMAXPROCS(0))
	}
}

func TestPool_Running(t *testing.T) {
	p := New(3)
	defer p.Close()

	blocker := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		p.Submit(func() {
			defer wg.Done()
			<-blocker
		})
	}
	time.Sleep(10 * time.Millisecond) // let workers start

	if got := p.Running(); got != 3 {
		t.Errorf("Running() = %d, want 3", got)
	}
	close(blocker)
	wg.Wait()
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := New(2)
	p.Close()

	if p.Submit(func() {}) {
		t.Error("Submit on closed pool must return false")
	}
	if !p.IsClosed() {
		t.Error("IsClosed() = false after Close")
	}
}

func TestPool_DoubleClose_NoPanic(t *testing.T) {
	p := New(2)
	p.Close()
	p.Close() // must be a no-op
}

func TestPool_CloseDrainsPending(t *testing.T) {
	p := New(1)

	var counter int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		p.Submit(func() {
			defer wg.Done()
			atomic.AddInt32(&counter, 1)
		})
	}
	p.Close()
	wg.Wait()

	if got := atomic.LoadInt32(&counter); got != 20 {
		t.Errorf("executed %d tasks before Close returned, want 20", got)
	}
}

func TestPool_PanicRecovery(t *testing.T) {
	p := New(1)
	defer p.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	p.Submit(func() {
		defer wg.Done()
		panic("task blew up")
	})
	wg.Wait()

	// The respawned worker must keep serving tasks.
	var ran int32
	wg.Add(1)
	if !p.Submit(func() {
		defer wg.Done()
		atomic.AddInt32(&ran, 1)
	}) {
		t.Fatal("Submit after panic returned false")
	}
	wg.Wait()

	if atomic.LoadInt32(&ran) != 1 {
		t.Error("task after panic never ran")
	}
}

func TestPool_ParallelFor(t *testing.T) {
	p := New(4)
	defer p.Close()

	seen := make([]int32, 100)
	p.ParallelFor(100, func(i int) {
		atomic.AddInt32(&seen[i], 1)
	})

	for i, n := range seen {
		if n != 1 {
			t.Errorf("index %d executed %d times, want 1", i, n)
		}
	}
}

func TestPool_ParallelFor_Empty(t *testing.T) {
	p := New(2)
	defer p.Close()
	p.ParallelFor(0, func(i int) {
		t.Error("fn called for n=0")
	})
}

func TestPool_Map(t *testing.T) {
	p := New(4)
	defer p.Close()

	in := []int{1, 2, 3, 4, 5}
	out := Map(p, in, func(v int) int { return v * v })

	want := []int{1, 4, 9, 16, 25}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %d, want %d", i, out[i], want[i])
		}
	}
}
