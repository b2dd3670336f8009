package scanner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xssed/xssed/pkg/config"
	"github.com/xssed/xssed/pkg/payloads"
	"github.com/xssed/xssed/pkg/reflection"
	"github.com/xssed/xssed/pkg/verify"
	"github.com/xssed/xssed/pkg/waf"
)

type stubProber struct {
	mu       sync.Mutex
	fp       *waf.Fingerprint
	baseline payloads.Context
	fn       func(cand reflection.Candidate, param string, insts []payloads.Instance) []*reflection.Result
}

func (p *stubProber) SetFingerprint(fp *waf.Fingerprint) { p.fp = fp }

func (p *stubProber) BaselineContext(ctx context.Context, cand reflection.Candidate, param, marker string) (payloads.Context, error) {
	if err := ctx.Err(); err != nil {
		return payloads.ContextUnknown, err
	}
	if p.baseline == "" {
		return payloads.ContextUnknown, nil
	}
	return p.baseline, nil
}

func (p *stubProber) ProbePair(ctx context.Context, cand reflection.Candidate, param string, insts []payloads.Instance) ([]*reflection.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fn == nil {
		return nil, nil
	}
	return p.fn(cand, param, insts), nil
}

type stubVerifier struct {
	mu    sync.Mutex
	calls []string
	fn    func(cand reflection.Candidate, param string, insts []payloads.Instance) (*verify.Result, error)
}

func (v *stubVerifier) VerifyPair(ctx context.Context, cand reflection.Candidate, param string, insts []payloads.Instance) (*verify.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	v.calls = append(v.calls, cand.RawURL)
	v.mu.Unlock()
	if v.fn == nil {
		return &verify.Result{Candidate: cand.RawURL, Parameter: param}, nil
	}
	return v.fn(cand, param, insts)
}

type stubFingerprinter struct {
	fp     *waf.Fingerprint
	err    error
	called bool
}

func (f *stubFingerprinter) Fingerprint(ctx context.Context, target string) (*waf.Fingerprint, error) {
	f.called = true
	return f.fp, f.err
}

func reflectedResult(cand reflection.Candidate, param string, inst payloads.Instance, match bool) *reflection.Result {
	return &reflection.Result{
		Candidate:    cand.RawURL,
		Parameter:    param,
		Instance:     inst,
		Reflected:    true,
		ContextMatch: match,
		Contexts:     []payloads.Context{payloads.ContextHTML},
		StatusCode:   200,
	}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Target = "https://a.example/?q=1"
	cfg.WAFCheck = false
	return cfg
}

func mustCandidates(t *testing.T, raws ...string) []reflection.Candidate {
	t.Helper()
	out := make([]reflection.Candidate, len(raws))
	for i, raw := range raws {
		c, err := reflection.ParseCandidate(raw)
		require.NoError(t, err)
		out[i] = c
	}
	return out
}

func newTestScanner(t *testing.T, cfg config.Config, prober *stubProber, verifier *stubVerifier, opts ...Option) *Scanner {
	t.Helper()
	all := []Option{
		WithProber(prober),
		WithVerifierFactory(func(ctx context.Context) (PairVerifier, func(), error) {
			return verifier, func() {}, nil
		}),
	}
	all = append(all, opts...)
	s, err := New(cfg, all...)
	require.NoError(t, err)
	return s
}

func TestScanPartition(t *testing.T) {
	cands := mustCandidates(t,
		"https://a.example/?q=1", // reflects and executes
		"https://b.example/?q=1", // reflects, never executes
		"https://c.example/?q=1", // WAF-blocked
		"https://d.example/?q=1", // no reflection
	)

	prober := &stubProber{fn: func(cand reflection.Candidate, param string, insts []payloads.Instance) []*reflection.Result {
		switch {
		case strings.Contains(cand.RawURL, "a.example"), strings.Contains(cand.RawURL, "b.example"):
			return []*reflection.Result{reflectedResult(cand, param, insts[0], true)}
		case strings.Contains(cand.RawURL, "c.example"):
			return []*reflection.Result{{Candidate: cand.RawURL, Parameter: param, Instance: insts[0], WAFBlocked: true, StatusCode: 403}}
		default:
			return []*reflection.Result{{Candidate: cand.RawURL, Parameter: param, Instance: insts[0], StatusCode: 200}}
		}
	}}
	verifier := &stubVerifier{fn: func(cand reflection.Candidate, param string, insts []payloads.Instance) (*verify.Result, error) {
		res := &verify.Result{Candidate: cand.RawURL, Parameter: param, Attempts: 1}
		if strings.Contains(cand.RawURL, "a.example") {
			res.Executed = true
			res.Evidence = verify.EvidenceDialog
			res.Severity = payloads.SeverityHigh
		}
		return res, nil
	}}

	s := newTestScanner(t, testConfig(), prober, verifier)
	out, err := s.Scan(context.Background(), cands)
	require.NoError(t, err)

	assert.Equal(t, len(cands), out.Total(), "partition must cover every candidate exactly once")
	require.Len(t, out.VerifiedXSS, 1)
	assert.Equal(t, "https://a.example/?q=1", out.VerifiedXSS[0].Candidate)
	assert.Equal(t, payloads.SeverityHigh, out.VerifiedXSS[0].Severity)

	require.Len(t, out.WAFBlocked, 1)
	assert.Equal(t, "https://c.example/?q=1", out.WAFBlocked[0].Candidate)

	require.Len(t, out.FalsePositive, 2)
	reasons := map[string]string{}
	for _, co := range out.FalsePositive {
		reasons[co.Candidate] = co.Reason
	}
	assert.Equal(t, ReasonNoExecution, reasons["https://b.example/?q=1"])
	assert.Equal(t, ReasonNoReflection, reasons["https://d.example/?q=1"])

	assert.Empty(t, out.Untested)
	assert.InDelta(t, 0.5, out.Stats.Accuracy, 1e-9)
	assert.Positive(t, out.Stats.Probes)
}

func TestScanVerifiedImpliesReflected(t *testing.T) {
	cands := mustCandidates(t, "https://a.example/?q=1")
	prober := &stubProber{fn: func(cand reflection.Candidate, param string, insts []payloads.Instance) []*reflection.Result {
		return []*reflection.Result{reflectedResult(cand, param, insts[0], true)}
	}}
	verifier := &stubVerifier{fn: func(cand reflection.Candidate, param string, insts []payloads.Instance) (*verify.Result, error) {
		return &verify.Result{Executed: true, Severity: payloads.SeverityHigh, Instance: insts[0]}, nil
	}}

	s := newTestScanner(t, testConfig(), prober, verifier)
	out, err := s.Scan(context.Background(), cands)
	require.NoError(t, err)

	require.Len(t, out.VerifiedXSS, 1)
	require.NotEmpty(t, out.VerifiedXSS[0].Reflections)
	for _, r := range out.VerifiedXSS[0].Reflections {
		assert.True(t, r.Reflected)
	}
}

func TestScanMaxURLsStableTruncation(t *testing.T) {
	cands := mustCandidates(t,
		"https://a.example/?q=1",
		"https://b.example/?q=1",
		"https://c.example/?q=1",
		"https://d.example/?q=1",
	)
	cfg := testConfig()
	cfg.MaxURLs = 2

	prober := &stubProber{} // nothing reflects
	s := newTestScanner(t, cfg, prober, &stubVerifier{})
	out, err := s.Scan(context.Background(), cands)
	require.NoError(t, err)

	assert.Equal(t, 4, out.Total())
	require.Len(t, out.Untested, 2)
	capped := map[string]bool{}
	for _, co := range out.Untested {
		assert.Equal(t, ReasonCapped, co.Reason)
		capped[co.Candidate] = true
	}
	// Truncation keeps the head of the list, in order.
	assert.True(t, capped["https://c.example/?q=1"])
	assert.True(t, capped["https://d.example/?q=1"])
}

func TestScanWAFCheckDisabled(t *testing.T) {
	fpr := &stubFingerprinter{fp: &waf.Fingerprint{Detected: true, Vendor: "Cloudflare"}}
	s := newTestScanner(t, testConfig(), &stubProber{}, &stubVerifier{}, WithFingerprinter(fpr))

	out, err := s.Scan(context.Background(), mustCandidates(t, "https://a.example/?q=1"))
	require.NoError(t, err)
	assert.False(t, fpr.called, "fingerprinter must not run when disabled")
	assert.Nil(t, out.Fingerprint)
}

func TestScanTargetUnreachableAborts(t *testing.T) {
	cfg := testConfig()
	cfg.WAFCheck = true
	fpr := &stubFingerprinter{err: waf.ErrTargetUnreachable}
	s := newTestScanner(t, cfg, &stubProber{}, &stubVerifier{}, WithFingerprinter(fpr))

	_, err := s.Scan(context.Background(), mustCandidates(t, "https://a.example/?q=1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, waf.ErrTargetUnreachable)
}

func TestScanFingerprintFeedsProber(t *testing.T) {
	cfg := testConfig()
	cfg.WAFCheck = true
	fp := &waf.Fingerprint{Detected: true, Vendor: "Cloudflare", Confidence: 0.9}
	prober := &stubProber{}
	s := newTestScanner(t, cfg, prober, &stubVerifier{}, WithFingerprinter(&stubFingerprinter{fp: fp}))

	out, err := s.Scan(context.Background(), mustCandidates(t, "https://a.example/?q=1"))
	require.NoError(t, err)
	assert.Same(t, fp, prober.fp, "fingerprint must reach the reflection engine")
	assert.Same(t, fp, out.Fingerprint)
}

func TestScanBrowserUnavailable(t *testing.T) {
	cands := mustCandidates(t, "https://a.example/?q=1")
	prober := &stubProber{fn: func(cand reflection.Candidate, param string, insts []payloads.Instance) []*reflection.Result {
		return []*reflection.Result{reflectedResult(cand, param, insts[0], true)}
	}}
	s := newTestScanner(t, testConfig(), prober, nil,
		WithVerifierFactory(func(ctx context.Context) (PairVerifier, func(), error) {
			return nil, nil, errors.New("chrome not found")
		}))

	out, err := s.Scan(context.Background(), cands)
	require.NoError(t, err, "browser launch failure must not abort the scan")
	require.Len(t, out.Untested, 1)
	assert.Equal(t, ReasonBrowserUnavailable, out.Untested[0].Reason)
}

func TestScanBaselineContextNarrowsPayloads(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []payloads.Instance
	)
	prober := &stubProber{
		baseline: payloads.ContextHTML,
		fn: func(cand reflection.Candidate, param string, insts []payloads.Instance) []*reflection.Result {
			mu.Lock()
			seen = append(seen, insts...)
			mu.Unlock()
			return nil
		},
	}

	s := newTestScanner(t, testConfig(), prober, &stubVerifier{})
	_, err := s.Scan(context.Background(), mustCandidates(t, "https://a.example/?q=1"))
	require.NoError(t, err)

	require.NotEmpty(t, seen, "a resolved context must still produce probes")
	for _, inst := range seen {
		assert.Equal(t, payloads.ContextHTML, inst.Payload.Context)
	}
}

func TestScanBaselineInconclusiveTriesAllContexts(t *testing.T) {
	var (
		mu   sync.Mutex
		ctxs = map[payloads.Context]bool{}
	)
	prober := &stubProber{fn: func(cand reflection.Candidate, param string, insts []payloads.Instance) []*reflection.Result {
		mu.Lock()
		for _, inst := range insts {
			ctxs[inst.Payload.Context] = true
		}
		mu.Unlock()
		return nil
	}}

	s := newTestScanner(t, testConfig(), prober, &stubVerifier{})
	_, err := s.Scan(context.Background(), mustCandidates(t, "https://a.example/?q=1"))
	require.NoError(t, err)
	assert.Greater(t, len(ctxs), 1, "inconclusive baseline must fall back to every context")
}

func TestScanBrowserUnavailableLateReflection(t *testing.T) {
	cands := mustCandidates(t, "https://a.example/?q=1", "https://b.example/?q=1")
	gate := make(chan struct{})
	prober := &stubProber{fn: func(cand reflection.Candidate, param string, insts []payloads.Instance) []*reflection.Result {
		// The second candidate finishes probing only after the browser
		// launch has already failed, so its push races the drain.
		if strings.Contains(cand.RawURL, "b.example") {
			<-gate
		}
		return []*reflection.Result{reflectedResult(cand, param, insts[0], true)}
	}}
	s := newTestScanner(t, testConfig(), prober, nil,
		WithVerifierFactory(func(ctx context.Context) (PairVerifier, func(), error) {
			close(gate)
			return nil, nil, errors.New("chrome not found")
		}))

	out, err := s.Scan(context.Background(), cands)
	require.NoError(t, err)
	require.Len(t, out.Untested, 2)
	for _, co := range out.Untested {
		assert.Equal(t, ReasonBrowserUnavailable, co.Reason)
	}
}

func TestScanCancelledBeforeStart(t *testing.T) {
	cands := mustCandidates(t, "https://a.example/?q=1", "https://b.example/?q=1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestScanner(t, testConfig(), &stubProber{}, &stubVerifier{})
	out, err := s.Scan(ctx, cands)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Total())
	for _, co := range out.Untested {
		assert.Equal(t, ReasonCancelled, co.Reason)
	}
	assert.Len(t, out.Untested, 2)
}

func TestScanEmptyCandidates(t *testing.T) {
	s := newTestScanner(t, testConfig(), &stubProber{}, &stubVerifier{})
	out, err := s.Scan(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, out.Total())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.ReflectionConcurrency = 0
	_, err := New(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestSessionIdentity(t *testing.T) {
	a := newTestScanner(t, testConfig(), &stubProber{}, &stubVerifier{})
	b := newTestScanner(t, testConfig(), &stubProber{}, &stubVerifier{})
	assert.NotEmpty(t, a.Session().RunID)
	assert.NotEqual(t, a.Session().RunID, b.Session().RunID)
	assert.NotEqual(t, a.Session().MarkerPrefix, b.Session().MarkerPrefix)
}

func TestWorklistPriority(t *testing.T) {
	cand := func(raw string) reflection.Candidate {
		c, err := reflection.ParseCandidate(raw)
		require.NoError(t, err)
		return c
	}
	inst := payloads.NewMarkerFactoryWithPrefix("xm").Instantiate(payloads.Payload{Template: "{{marker}}"})

	mismatch := func(n int) []*reflection.Result {
		out := make([]*reflection.Result, n)
		for i := range out {
			out[i] = &reflection.Result{Reflected: true, Instance: inst}
		}
		return out
	}
	match := func(n int) []*reflection.Result {
		out := mismatch(n)
		out[0].ContextMatch = true
		return out
	}

	wl := newWorklist()
	wl.push(&work{index: 0, cand: cand("https://x.example/?q=1"), reflected: mismatch(1)})
	wl.push(&work{index: 1, cand: cand("https://y.example/?q=1"), reflected: match(5)})
	wl.push(&work{index: 2, cand: cand("https://z.example/?q=1"), reflected: match(2)})
	wl.push(&work{index: 3, cand: cand("https://w.example/?q=1"), reflected: mismatch(1)})
	wl.close()

	var order []int
	for {
		w, ok := wl.pop(context.Background())
		if !ok {
			break
		}
		order = append(order, w.index)
	}
	// Context matches first (fewer reflections ahead), then mismatches in
	// submission order.
	assert.Equal(t, []int{2, 1, 0, 3}, order)
}

func TestWorklistDrainReason(t *testing.T) {
	cand, err := reflection.ParseCandidate("https://a.example/?q=1")
	require.NoError(t, err)

	wl := newWorklist()
	require.True(t, wl.push(&work{index: 0, cand: cand}))

	drained := wl.drain(ReasonBrowserUnavailable)
	require.Len(t, drained, 1)

	assert.False(t, wl.push(&work{index: 1, cand: cand}))
	assert.Equal(t, ReasonBrowserUnavailable, wl.rejectReason())
}

func TestWorklistRejectReasonDefault(t *testing.T) {
	wl := newWorklist()
	wl.close()
	assert.False(t, wl.push(&work{}))
	assert.Equal(t, ReasonCancelled, wl.rejectReason())
}

func TestEscalationOrder(t *testing.T) {
	f := payloads.NewMarkerFactoryWithPrefix("xm")
	mk := func(complexity int, match bool) *reflection.Result {
		return &reflection.Result{
			Instance:     f.Instantiate(payloads.Payload{Template: "{{marker}}", Complexity: complexity}),
			Reflected:    true,
			ContextMatch: match,
		}
	}
	results := []*reflection.Result{mk(2, false), mk(1, true), mk(0, false), mk(3, true)}

	insts := escalationOrder(results)
	require.Len(t, insts, 4)
	assert.Equal(t, 1, insts[0].Payload.Complexity, "cheapest context match first")
	assert.Equal(t, 3, insts[1].Payload.Complexity)
	assert.Equal(t, 0, insts[2].Payload.Complexity)
	assert.Equal(t, 2, insts[3].Payload.Complexity)
}
