package verify

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/xssed/xssed/pkg/defaults"
	"github.com/xssed/xssed/pkg/duration"
	"github.com/xssed/xssed/pkg/jsonutil"
)

// newChromedpPool builds the allocator for one shared headless Chrome and
// wraps it in a session pool. Pages (tabs) are the pooled unit; the
// browser process itself launches once.
func newChromedpPool(ctx context.Context, cfg Config, script string) (*Pool, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("window-size", "1280,800"),
		chromedp.UserAgent(defaults.UAChrome),
	)
	if cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.Proxy))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)

	var (
		procMu sync.Mutex
		proc   *os.Process
	)
	factory := func() (Session, error) {
		s, err := newChromedpSession(allocCtx, script)
		if err != nil {
			return nil, err
		}
		// Keep a handle on the browser process so teardown can force-kill
		// when graceful cancel hangs on stuck child processes.
		procMu.Lock()
		if proc == nil {
			if c := chromedp.FromContext(s.ctx); c != nil && c.Browser != nil {
				proc = c.Browser.Process()
			}
		}
		procMu.Unlock()
		return s, nil
	}
	teardown := func() {
		done := make(chan struct{})
		go func() {
			allocCancel()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(duration.BrowserShutdown):
			procMu.Lock()
			if proc != nil {
				_ = proc.Kill()
			}
			procMu.Unlock()
		}
	}
	return NewPool(cfg.PoolSize, factory, teardown), nil
}

// chromedpSession is one instrumented browser tab.
type chromedpSession struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newChromedpSession(allocCtx context.Context, script string) (*chromedpSession, error) {
	ctx, cancel := chromedp.NewContext(allocCtx)

	// The JS override swallows most dialogs before they open. Frames that
	// slip a real one through must not block the page, so dismiss at the
	// protocol level too.
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		if _, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			go func() {
				_ = chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
					return page.HandleJavaScriptDialog(true).Do(ctx)
				}))
			}()
		}
	})

	// Install instrumentation on every new document before page scripts run.
	err := chromedp.Run(ctx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	return &chromedpSession{ctx: ctx, cancel: cancel}, nil
}

// bound derives a run context from the session, honouring the caller's
// deadline. chromedp actions must run on the session context.
func (s *chromedpSession) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if dl, ok := ctx.Deadline(); ok {
		return context.WithDeadline(s.ctx, dl)
	}
	return context.WithCancel(s.ctx)
}

func (s *chromedpSession) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := s.bound(ctx)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.Navigate(url))
}

func (s *chromedpSession) Hits(ctx context.Context, settle time.Duration) ([]Hit, error) {
	runCtx, cancel := context.WithTimeout(s.ctx, settle+2*time.Second)
	defer cancel()

	var fired bool
	err := chromedp.Run(runCtx, chromedp.Poll(
		`window.__xssedHits && window.__xssedHits.length > 0`,
		&fired,
		chromedp.WithPollingTimeout(settle),
	))
	if err != nil && !errors.Is(err, chromedp.ErrPollingTimeout) {
		return nil, err
	}

	var raw string
	if err := chromedp.Run(runCtx, chromedp.Evaluate(`JSON.stringify(window.__xssedHits || [])`, &raw)); err != nil {
		return nil, err
	}
	var hits []Hit
	if err := jsonutil.Unmarshal([]byte(raw), &hits); err != nil {
		return nil, err
	}
	return hits, nil
}

func (s *chromedpSession) Clear(ctx context.Context) error {
	runCtx, cancel := s.bound(ctx)
	defer cancel()
	return chromedp.Run(runCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return storage.ClearDataForOrigin("*", "all").Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return network.ClearBrowserCookies().Do(ctx)
		}),
		chromedp.Navigate("about:blank"),
	)
}

func (s *chromedpSession) Screenshot(ctx context.Context) ([]byte, error) {
	runCtx, cancel := s.bound(ctx)
	defer cancel()
	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *chromedpSession) Close() {
	s.cancel()
}
