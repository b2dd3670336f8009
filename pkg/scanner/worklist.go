package scanner

import (
	"context"
	"sync"

	"github.com/xssed/xssed/pkg/reflection"
)

// work is one reflected candidate queued for verification.
type work struct {
	index     int // submission order, the stable tie-break
	cand      reflection.Candidate
	reflected []*reflection.Result // reflected=true results only
}

// hasContextMatch reports whether any reflection landed in its payload's
// target context.
func (w *work) hasContextMatch() bool {
	for _, r := range w.reflected {
		if r.ContextMatch {
			return true
		}
	}
	return false
}

// before orders the verification worklist: context-matching candidates
// first (most likely to verify), then candidates with fewer reflections
// (cheaper escalations), then submission order.
func (w *work) before(other *work) bool {
	am, bm := w.hasContextMatch(), other.hasContextMatch()
	if am != bm {
		return am
	}
	if len(w.reflected) != len(other.reflected) {
		return len(w.reflected) < len(other.reflected)
	}
	return w.index < other.index
}

// worklist is the priority queue between the reflection and verification
// phases. Producers push as candidates finish phase 1; the single
// verification dispatcher pops in priority order.
type worklist struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*work
	closed bool
	// rejection is why the list stopped accepting work; pushes that fail
	// after drain report it as the candidate's untested reason.
	rejection string
}

func newWorklist() *worklist {
	wl := &worklist{}
	wl.cond = sync.NewCond(&wl.mu)
	return wl
}

// watch wakes blocked pops when the context is cancelled.
func (wl *worklist) watch(ctx context.Context) {
	go func() {
		<-ctx.Done()
		wl.cond.Broadcast()
	}()
}

// push queues a candidate for verification. Returns false when the list
// already shut down; the caller then owns the item's final state.
func (wl *worklist) push(w *work) bool {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	if wl.closed {
		return false
	}
	wl.items = append(wl.items, w)
	wl.cond.Broadcast()
	return true
}

// close marks that no further items will arrive. Pending items remain
// poppable; pop returns false once the list is closed and empty.
func (wl *worklist) close() {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	wl.closed = true
	wl.cond.Broadcast()
}

// pop blocks until an item is available, the list closes empty, or the
// context is cancelled.
func (wl *worklist) pop(ctx context.Context) (*work, bool) {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	for len(wl.items) == 0 {
		if wl.closed || ctx.Err() != nil {
			return nil, false
		}
		wl.cond.Wait()
	}
	if ctx.Err() != nil {
		return nil, false
	}

	best := 0
	for i := 1; i < len(wl.items); i++ {
		if wl.items[i].before(wl.items[best]) {
			best = i
		}
	}
	w := wl.items[best]
	wl.items = append(wl.items[:best], wl.items[best+1:]...)
	return w, true
}

// drain empties the list, returning whatever never got dispatched. The
// reason is remembered so late pushes from still-probing candidates land
// in the same untested bucket as the drained items.
func (wl *worklist) drain(reason string) []*work {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	out := wl.items
	wl.items = nil
	wl.closed = true
	wl.rejection = reason
	return out
}

// rejectReason reports why a push was refused.
func (wl *worklist) rejectReason() string {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	if wl.rejection == "" {
		return ReasonCancelled
	}
	return wl.rejection
}
