package verify

import (
	"context"
	"sync"
	"time"

	"github.com/xssed/xssed/pkg/duration"
)

// Hit is one instrumentation signal collected from a page.
type Hit struct {
	Kind   string `json:"kind"` // dialog, sink, write, dom
	Detail string `json:"detail"`
}

// Session is one reusable browser page context. Sessions are never shared
// concurrently; the pool hands each out to exactly one verification at a
// time.
type Session interface {
	// Navigate loads the URL and waits for the page load event.
	Navigate(ctx context.Context, url string) error
	// Hits waits up to settle for instrumentation signals, then returns
	// everything recorded since the last navigation.
	Hits(ctx context.Context, settle time.Duration) ([]Hit, error)
	// Clear wipes cookies and storage so the next use starts clean.
	Clear(ctx context.Context) error
	// Screenshot captures the current page.
	Screenshot(ctx context.Context) ([]byte, error)
	// Close tears the page down.
	Close()
}

// Pool is a fixed-size pool of browser sessions. Slots holding a nil mark
// a session that died and is relaunched lazily on the next Acquire, so a
// crashed page never shrinks capacity.
type Pool struct {
	slots    chan Session
	factory  func() (Session, error)
	teardown func()

	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool of size sessions. Sessions launch lazily; the
// factory is only called when a slot is first acquired.
func NewPool(size int, factory func() (Session, error), teardown func()) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{
		slots:    make(chan Session, size),
		factory:  factory,
		teardown: teardown,
	}
	for i := 0; i < size; i++ {
		p.slots <- nil
	}
	return p
}

// Acquire blocks until a session slot is free or the context is cancelled.
func (p *Pool) Acquire(ctx context.Context) (Session, error) {
	select {
	case s := <-p.slots:
		if s != nil {
			return s, nil
		}
		ns, err := p.factory()
		if err != nil {
			p.put(nil)
			return nil, err
		}
		return ns, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a session to the pool, cleared of cookies and storage.
// A session that cannot be cleared is discarded and its slot relaunches
// on next use.
func (p *Pool) Release(s Session) {
	ctx, cancel := context.WithTimeout(context.Background(), duration.BrowserShutdown)
	defer cancel()
	if err := s.Clear(ctx); err != nil {
		p.Recycle(s)
		return
	}
	p.put(s)
}

// Recycle discards a broken session, freeing its slot for a relaunch.
func (p *Pool) Recycle(s Session) {
	s.Close()
	p.put(nil)
}

// SwapBroken replaces a dead session with a fresh one while the caller
// keeps exclusive use of the slot. Returns nil when relaunch fails; the
// slot is then freed for a later lazy retry.
func (p *Pool) SwapBroken(s Session) Session {
	s.Close()
	ns, err := p.factory()
	if err != nil {
		p.put(nil)
		return nil
	}
	return ns
}

func (p *Pool) put(s Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		if s != nil {
			s.Close()
		}
		return
	}
	p.slots <- s
}

// Size returns the pool capacity.
func (p *Pool) Size() int {
	return cap(p.slots)
}

// Idle returns the number of currently unclaimed slots.
func (p *Pool) Idle() int {
	return len(p.slots)
}

// Close shuts down every idle session and the shared browser. Sessions
// still checked out are closed by their holders' Release calls.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case s := <-p.slots:
			if s != nil {
				s.Close()
			}
		default:
			if p.teardown != nil {
				p.teardown()
			}
			return
		}
	}
}
