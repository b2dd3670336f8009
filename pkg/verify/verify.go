// Package verify implements the second-pass execution check: load the
// crafted URL in an instrumented browser page and confirm the injected
// payload actually ran. Reflection alone over-reports badly; requiring an
// execution signal is what keeps the false-positive rate down.
package verify

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xssed/xssed/pkg/duration"
	"github.com/xssed/xssed/pkg/payloads"
	"github.com/xssed/xssed/pkg/reflection"
)

// Evidence identifies which instrumentation signal proved execution.
type Evidence string

const (
	// EvidenceDialog means the overridden alert/confirm/prompt fired with
	// the payload marker in its message.
	EvidenceDialog Evidence = "dialog"
	// EvidenceMarkerSink means the payload called the injected sink or
	// document.write with the marker.
	EvidenceMarkerSink Evidence = "marker_sink"
	// EvidenceDOMMutation means executed script inserted the marker as
	// live DOM content.
	EvidenceDOMMutation Evidence = "dom_mutation"
)

// Result records the outcome of verifying one (candidate, parameter) pair.
type Result struct {
	Candidate  string             `json:"candidate"`
	Parameter  string             `json:"parameter"`
	Instance   payloads.Instance  `json:"instance"`
	Executed   bool               `json:"executed"`
	Evidence   Evidence           `json:"evidence,omitempty"`
	Detail     string             `json:"detail,omitempty"`
	Severity   payloads.Severity  `json:"severity,omitempty"`
	Attempts   int                `json:"attempts"`
	Screenshot string             `json:"screenshot,omitempty"`
	VerifyURL  string             `json:"verify_url,omitempty"`
}

// Config controls the verification engine.
type Config struct {
	PoolSize      int
	PageTimeout   time.Duration
	SettleTimeout time.Duration
	Screenshots   bool
	ScreenshotDir string
	Proxy         string
}

// DefaultConfig returns verification defaults sized for a shared browser.
func DefaultConfig() Config {
	return Config{
		PoolSize:      3,
		PageTimeout:   duration.BrowserPage,
		SettleTimeout: duration.BrowserSettle,
	}
}

// Verifier escalates payloads for reflected candidates inside pooled
// browser sessions.
type Verifier struct {
	pool *Pool
	cfg  Config
}

// New launches the browser and builds the session pool. The returned
// Verifier must be closed to tear the browser down.
func New(ctx context.Context, cfg Config, markerPrefix string) (*Verifier, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultConfig().PoolSize
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = duration.BrowserPage
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = duration.BrowserSettle
	}
	pool, err := newChromedpPool(ctx, cfg, instrumentationScript(markerPrefix))
	if err != nil {
		return nil, fmt.Errorf("start browser pool: %w", err)
	}
	return &Verifier{pool: pool, cfg: cfg}, nil
}

// Close tears down all sessions and the browser process.
func (v *Verifier) Close() {
	v.pool.Close()
}

// VerifyPair tries the given payload instances in order against one
// (candidate, parameter) pair, holding one browser session exclusively for
// the whole escalation and stopping at the first payload that executes.
// Browser failures recycle the session and count as non-execution.
func (v *Verifier) VerifyPair(ctx context.Context, cand reflection.Candidate, param string, insts []payloads.Instance) (*Result, error) {
	res := &Result{Candidate: cand.RawURL, Parameter: param}
	if len(insts) == 0 {
		return res, nil
	}

	sess, err := v.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if sess != nil {
			v.pool.Release(sess)
		}
	}()

	for _, inst := range insts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Attempts++
		res.Instance = inst

		target, err := cand.InjectURL(param, inst.Value)
		if err != nil {
			continue
		}
		res.VerifyURL = target

		navCtx, cancel := context.WithTimeout(ctx, v.cfg.PageTimeout)
		hits, err := v.runOnce(navCtx, sess, target)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Crash or navigation timeout. Swap the session out and keep
			// escalating on a fresh one.
			sess = v.pool.SwapBroken(sess)
			if sess == nil {
				return res, nil
			}
			continue
		}

		if ev, detail, ok := matchHit(hits, inst.Marker); ok {
			res.Executed = true
			res.Evidence = ev
			res.Detail = detail
			res.Severity = payloads.SeverityFor(inst.Payload.Context)
			if v.cfg.Screenshots {
				res.Screenshot = v.capture(ctx, sess, cand.RawURL)
			}
			return res, nil
		}
	}
	return res, nil
}

// runOnce navigates one payload URL and collects instrumentation hits.
func (v *Verifier) runOnce(ctx context.Context, sess Session, target string) ([]Hit, error) {
	if err := sess.Navigate(ctx, target); err != nil {
		return nil, err
	}
	return sess.Hits(ctx, v.cfg.SettleTimeout)
}

// matchHit finds the strongest signal carrying the probe's marker.
// Dialog beats sink beats DOM mutation when several fired.
func matchHit(hits []Hit, marker string) (Evidence, string, bool) {
	var (
		best   Evidence
		detail string
		rank   int
	)
	for _, h := range hits {
		if !strings.Contains(h.Detail, marker) {
			continue
		}
		ev, r := evidenceOf(h.Kind)
		if r > rank {
			best, detail, rank = ev, h.Detail, r
		}
	}
	return best, detail, rank > 0
}

func evidenceOf(kind string) (Evidence, int) {
	switch kind {
	case "dialog":
		return EvidenceDialog, 3
	case "sink", "write":
		return EvidenceMarkerSink, 2
	case "dom":
		return EvidenceDOMMutation, 1
	}
	return "", 0
}

// capture saves a full-page screenshot and returns its path, or "" when
// capture fails. Screenshots are evidence, never load-bearing.
func (v *Verifier) capture(ctx context.Context, sess Session, candidateURL string) string {
	buf, err := sess.Screenshot(ctx)
	if err != nil || len(buf) == 0 {
		return ""
	}
	dir := v.cfg.ScreenshotDir
	if dir == "" {
		dir = "screenshots"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%d.png", safeName(candidateURL), time.Now().UnixNano()))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return ""
	}
	return path
}

func safeName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "capture"
	}
	return strings.NewReplacer(":", "_", ".", "_").Replace(u.Host)
}
