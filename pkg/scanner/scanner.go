// Package scanner orchestrates the full detection pipeline: WAF
// fingerprint, reflection sweep, prioritized browser verification, and
// the final partitioned outcome. Phases are logically sequential per
// candidate but pipeline across candidates: a candidate whose reflection
// probing finishes early enters verification while others still probe.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xssed/xssed/pkg/config"
	"github.com/xssed/xssed/pkg/httpclient"
	"github.com/xssed/xssed/pkg/payloads"
	"github.com/xssed/xssed/pkg/ratelimit"
	"github.com/xssed/xssed/pkg/reflection"
	"github.com/xssed/xssed/pkg/verify"
	"github.com/xssed/xssed/pkg/waf"
	"github.com/xssed/xssed/pkg/workerpool"
)

// Session carries run-scoped identity. The marker prefix ties every probe
// minted during this run back to it.
type Session struct {
	RunID        string    `json:"run_id"`
	MarkerPrefix string    `json:"marker_prefix"`
	StartedAt    time.Time `json:"started_at"`
}

// Prober abstracts the reflection engine.
type Prober interface {
	BaselineContext(ctx context.Context, cand reflection.Candidate, param, marker string) (payloads.Context, error)
	ProbePair(ctx context.Context, cand reflection.Candidate, param string, insts []payloads.Instance) ([]*reflection.Result, error)
	SetFingerprint(fp *waf.Fingerprint)
}

// PairVerifier abstracts the browser verification engine.
type PairVerifier interface {
	VerifyPair(ctx context.Context, cand reflection.Candidate, param string, insts []payloads.Instance) (*verify.Result, error)
}

// Fingerprinter abstracts phase 0.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, target string) (*waf.Fingerprint, error)
}

// ProgressFunc receives human-readable phase updates.
type ProgressFunc func(msg string)

// Scanner runs scans. Construct with New; zero value is not usable.
type Scanner struct {
	cfg           config.Config
	session       Session
	markers       *payloads.MarkerFactory
	catalog       *payloads.Catalog
	fingerprinter Fingerprinter
	prober        Prober
	// newVerifier launches the browser pool lazily: only scans with at
	// least one reflected candidate pay the browser startup cost.
	newVerifier func(ctx context.Context) (PairVerifier, func(), error)
	progress    ProgressFunc

	mu     sync.Mutex
	probes int
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithProber overrides the reflection engine.
func WithProber(p Prober) Option {
	return func(s *Scanner) { s.prober = p }
}

// WithFingerprinter overrides the WAF fingerprinter.
func WithFingerprinter(f Fingerprinter) Option {
	return func(s *Scanner) { s.fingerprinter = f }
}

// WithVerifierFactory overrides browser pool construction.
func WithVerifierFactory(fn func(ctx context.Context) (PairVerifier, func(), error)) Option {
	return func(s *Scanner) { s.newVerifier = fn }
}

// WithProgress installs a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Scanner) { s.progress = fn }
}

// New builds a scanner from validated configuration.
func New(cfg config.Config, opts ...Option) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	markers := payloads.NewMarkerFactory()
	catalog := payloads.NewCatalog()
	if cfg.PayloadFile != "" {
		overrides, err := payloads.LoadFile(cfg.PayloadFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		catalog = payloads.NewCatalogWithOverrides(overrides)
	}

	client := httpclient.New(httpclient.Config{
		Timeout:            cfg.Timeout(),
		InsecureSkipVerify: true,
		Proxy:              cfg.Proxy,
		MaxRedirects:       httpclient.DefaultConfig().MaxRedirects,
	})

	s := &Scanner{
		cfg: cfg,
		session: Session{
			RunID:        uuid.New().String(),
			MarkerPrefix: markers.Prefix(),
			StartedAt:    time.Now(),
		},
		markers: markers,
		catalog: catalog,
		fingerprinter: waf.NewFingerprinter(
			waf.WithClient(client),
		),
		prober: reflection.NewEngine(
			reflection.WithClient(client),
			reflection.WithLimiter(ratelimit.NewPerHost(cfg.RateLimit)),
		),
	}
	s.newVerifier = func(ctx context.Context) (PairVerifier, func(), error) {
		v, err := verify.New(ctx, verify.Config{
			PoolSize:      cfg.VerifyConcurrency,
			Screenshots:   cfg.Screenshots,
			ScreenshotDir: cfg.ScreenshotDir,
			Proxy:         cfg.Proxy,
		}, markers.Prefix())
		if err != nil {
			return nil, nil, err
		}
		return v, v.Close, nil
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Session returns the run identity.
func (s *Scanner) Session() Session {
	return s.session
}

func (s *Scanner) report(format string, args ...any) {
	if s.progress != nil {
		s.progress(fmt.Sprintf(format, args...))
	}
}

// Scan runs the full pipeline over the candidate set. Setup failures and
// total target unreachability return an error; everything else is
// absorbed into the outcome partitions.
func (s *Scanner) Scan(ctx context.Context, candidates []reflection.Candidate) (*Outcome, error) {
	started := time.Now()
	out := &Outcome{
		Target:    s.cfg.Target,
		RunID:     s.session.RunID,
		StartedAt: started,
	}
	if len(candidates) == 0 {
		out.finishStats(0, started)
		return out, nil
	}

	// Phase 0: WAF fingerprint. Baseline failure aborts the whole scan.
	var fp *waf.Fingerprint
	if s.cfg.WAFCheck {
		target := s.cfg.Target
		if target == "" {
			target = candidates[0].RawURL
		}
		s.report("fingerprinting %s", target)
		var err error
		fp, err = s.fingerprinter.Fingerprint(ctx, target)
		if err != nil {
			return nil, err
		}
		out.Fingerprint = fp
		if fp.Detected {
			s.report("WAF detected: %s (confidence %.2f)", fp.Vendor, fp.Confidence)
		}
	}
	s.prober.SetFingerprint(fp)

	// Stable truncation before any probing; the excess is reported, not
	// silently dropped.
	tested := candidates
	if s.cfg.MaxURLs > 0 && len(candidates) > s.cfg.MaxURLs {
		for _, c := range candidates[s.cfg.MaxURLs:] {
			s.record(out, CandidateOutcome{
				Candidate: c.RawURL,
				Status:    StatusUntested,
				Reason:    ReasonCapped,
			})
		}
		tested = candidates[:s.cfg.MaxURLs]
		s.report("capped candidate list at %d URLs", s.cfg.MaxURLs)
	}

	wl := newWorklist()
	wl.watch(ctx)

	// Phases 1-2: reflection sweep.
	s.report("probing %d candidates", len(tested))
	reflPool := workerpool.New(s.cfg.ReflectionConcurrency)
	defer reflPool.Close()

	var probeWG sync.WaitGroup
	for i, cand := range tested {
		i, cand := i, cand
		probeWG.Add(1)
		if !reflPool.Submit(func() {
			defer probeWG.Done()
			s.probeCandidate(ctx, out, wl, i, cand, fp)
		}) {
			probeWG.Done()
		}
	}
	go func() {
		probeWG.Wait()
		wl.close()
	}()

	// Phase 3: prioritized verification, pipelined with the sweep.
	s.dispatchVerification(ctx, out, wl)

	probeWG.Wait()
	s.mu.Lock()
	probes := s.probes
	s.mu.Unlock()
	out.finishStats(probes, started)
	s.report("scan finished: %d verified, %d false positives, %d waf-blocked, %d untested",
		out.Stats.Verified, out.Stats.FalsePositives, out.Stats.WAFBlocked, out.Stats.Untested)
	return out, nil
}

// payloadSetFor resolves the payload list for one resolved injection
// context: the matching catalog subset, or the whole catalog when the
// baseline probe was inconclusive. A fingerprinted WAF extends the set
// with vendor bypasses and filter-evasion mutations of every entry.
func (s *Scanner) payloadSetFor(fp *waf.Fingerprint, bctx payloads.Context) []payloads.Payload {
	if fp != nil && fp.Detected {
		return payloads.WithMutations(s.catalog.WithVendorBypass(fp.Vendor, bctx))
	}
	return s.catalog.ForContext(bctx)
}

// probeCandidate runs the reflection sweep for one candidate and routes
// it onward: reflected candidates join the verification worklist,
// everything else is finalized immediately. Each parameter first gets a
// baseline marker probe whose reflection context narrows the payload set
// tried against it.
func (s *Scanner) probeCandidate(ctx context.Context, out *Outcome, wl *worklist, index int, cand reflection.Candidate, fp *waf.Fingerprint) {
	var (
		reflected  []*reflection.Result
		wafBlocked bool
		probes     int
	)

	for _, param := range cand.ParamNames() {
		bctx, err := s.prober.BaselineContext(ctx, cand, param, s.markers.Next())
		probes++
		if err != nil {
			s.addProbes(probes)
			s.record(out, CandidateOutcome{
				Candidate:   cand.RawURL,
				Status:      StatusUntested,
				Reason:      ReasonCancelled,
				Reflections: reflected,
			})
			return
		}

		set := s.payloadSetFor(fp, bctx)
		insts := make([]payloads.Instance, len(set))
		for i, p := range set {
			insts[i] = s.markers.Instantiate(p)
		}
		results, err := s.prober.ProbePair(ctx, cand, param, insts)
		probes += len(results)
		for _, r := range results {
			if r.Reflected {
				reflected = append(reflected, r)
			}
			if r.WAFBlocked {
				wafBlocked = true
			}
		}
		if err != nil {
			s.addProbes(probes)
			s.record(out, CandidateOutcome{
				Candidate:   cand.RawURL,
				Status:      StatusUntested,
				Reason:      ReasonCancelled,
				Reflections: reflected,
			})
			return
		}
	}
	s.addProbes(probes)

	switch {
	case len(reflected) > 0:
		w := &work{index: index, cand: cand, reflected: reflected}
		if !wl.push(w) {
			s.record(out, CandidateOutcome{
				Candidate:   cand.RawURL,
				Status:      StatusUntested,
				Reason:      wl.rejectReason(),
				Reflections: reflected,
			})
		}
	case wafBlocked:
		s.record(out, CandidateOutcome{
			Candidate: cand.RawURL,
			Status:    StatusWAFBlocked,
			Reason:    ReasonWAFBlocked,
		})
	default:
		s.record(out, CandidateOutcome{
			Candidate: cand.RawURL,
			Status:    StatusFalsePositive,
			Reason:    ReasonNoReflection,
		})
	}
}

// dispatchVerification owns phase 3: it launches the browser on the first
// reflected candidate, then fans work out to the verification pool in
// priority order. Returns when the worklist is exhausted or cancelled.
func (s *Scanner) dispatchVerification(ctx context.Context, out *Outcome, wl *worklist) {
	first, ok := wl.pop(ctx)
	if !ok {
		s.drainUntested(out, wl, ReasonCancelled)
		return
	}

	verifier, closer, err := s.newVerifier(ctx)
	if err != nil {
		s.report("browser unavailable: %v", err)
		s.finalize(out, first, nil, ReasonBrowserUnavailable)
		for _, w := range wl.drain(ReasonBrowserUnavailable) {
			s.finalize(out, w, nil, ReasonBrowserUnavailable)
		}
		return
	}
	defer closer()
	s.report("verifying reflected candidates")

	pool := workerpool.New(s.cfg.VerifyConcurrency)
	var verifyWG sync.WaitGroup

	submit := func(w *work) {
		verifyWG.Add(1)
		if !pool.Submit(func() {
			defer verifyWG.Done()
			s.verifyCandidate(ctx, out, verifier, w)
		}) {
			verifyWG.Done()
		}
	}

	submit(first)
	for {
		w, ok := wl.pop(ctx)
		if !ok {
			break
		}
		submit(w)
	}
	s.drainUntested(out, wl, ReasonCancelled)

	verifyWG.Wait()
	pool.Close()
}

// verifyCandidate escalates one reflected candidate through the browser,
// parameter by parameter, stopping at the first execution.
func (s *Scanner) verifyCandidate(ctx context.Context, out *Outcome, verifier PairVerifier, w *work) {
	byParam := make(map[string][]*reflection.Result)
	var params []string
	for _, r := range w.reflected {
		if _, seen := byParam[r.Parameter]; !seen {
			params = append(params, r.Parameter)
		}
		byParam[r.Parameter] = append(byParam[r.Parameter], r)
	}
	sort.Strings(params)

	var last *verify.Result
	for _, param := range params {
		insts := escalationOrder(byParam[param])
		res, err := verifier.VerifyPair(ctx, w.cand, param, insts)
		if err != nil {
			s.record(out, CandidateOutcome{
				Candidate:   w.cand.RawURL,
				Status:      StatusUntested,
				Reason:      ReasonCancelled,
				Reflections: w.reflected,
			})
			return
		}
		last = res
		if res.Executed {
			s.record(out, CandidateOutcome{
				Candidate:    w.cand.RawURL,
				Status:       StatusVerified,
				Severity:     res.Severity,
				Reflections:  w.reflected,
				Verification: res,
			})
			return
		}
	}
	s.record(out, CandidateOutcome{
		Candidate:    w.cand.RawURL,
		Status:       StatusFalsePositive,
		Reason:       ReasonNoExecution,
		Reflections:  w.reflected,
		Verification: last,
	})
}

// escalationOrder sorts a pair's reflected instances for verification:
// context matches first, then the catalog's complexity order, preserving
// probe order on ties.
func escalationOrder(results []*reflection.Result) []payloads.Instance {
	sorted := append([]*reflection.Result(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ContextMatch != sorted[j].ContextMatch {
			return sorted[i].ContextMatch
		}
		return sorted[i].Instance.Payload.Complexity < sorted[j].Instance.Payload.Complexity
	})
	insts := make([]payloads.Instance, len(sorted))
	for i, r := range sorted {
		insts[i] = r.Instance
	}
	return insts
}

func (s *Scanner) drainUntested(out *Outcome, wl *worklist, reason string) {
	for _, w := range wl.drain(reason) {
		s.record(out, CandidateOutcome{
			Candidate:   w.cand.RawURL,
			Status:      StatusUntested,
			Reason:      reason,
			Reflections: w.reflected,
		})
	}
}

func (s *Scanner) finalize(out *Outcome, w *work, res *verify.Result, reason string) {
	s.record(out, CandidateOutcome{
		Candidate:    w.cand.RawURL,
		Status:       StatusUntested,
		Reason:       reason,
		Reflections:  w.reflected,
		Verification: res,
	})
}

func (s *Scanner) record(out *Outcome, co CandidateOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out.add(co)
}

func (s *Scanner) addProbes(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes += n
}
