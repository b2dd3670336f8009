// Package reflection implements the fast first-pass probe: inject an
// instantiated payload into one parameter of a candidate URL, fetch the
// page, and decide whether the payload survived into the response
// unescaped. Reflection is high-recall and cheap; candidates that reflect
// are handed to the browser verification pass for confirmation.
package reflection

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/xssed/xssed/pkg/defaults"
	"github.com/xssed/xssed/pkg/duration"
	"github.com/xssed/xssed/pkg/httpclient"
	"github.com/xssed/xssed/pkg/iohelper"
	"github.com/xssed/xssed/pkg/payloads"
	"github.com/xssed/xssed/pkg/ratelimit"
	"github.com/xssed/xssed/pkg/retry"
	"github.com/xssed/xssed/pkg/strutil"
	"github.com/xssed/xssed/pkg/waf"
)

// Candidate is one URL under test, with the parameters eligible for
// injection. Form-originated candidates probe with POST bodies instead
// of query strings.
type Candidate struct {
	RawURL string     `json:"url"`
	Method string     `json:"method"`
	Params url.Values `json:"params"`
}

// ParseCandidate builds a GET candidate from a raw URL, taking the
// injection parameters from its query string.
func ParseCandidate(raw string) (Candidate, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Candidate{}, fmt.Errorf("parse candidate %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Candidate{}, fmt.Errorf("candidate %q: unsupported scheme %q", raw, u.Scheme)
	}
	if len(u.Query()) == 0 {
		return Candidate{}, fmt.Errorf("candidate %q has no injectable parameters", raw)
	}
	return Candidate{RawURL: raw, Method: http.MethodGet, Params: u.Query()}, nil
}

// ParamNames returns the candidate's parameter names in sorted order,
// capped at the per-candidate parameter limit.
func (c Candidate) ParamNames() []string {
	names := make([]string, 0, len(c.Params))
	for name := range c.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > defaults.MaxParams {
		names = names[:defaults.MaxParams]
	}
	return names
}

// Host returns the candidate's host for rate limiting.
func (c Candidate) Host() string {
	u, err := url.Parse(c.RawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// Location of an observed reflection.
const (
	LocationBody   = "body"
	LocationHeader = "header"
)

// Result records the outcome of one (candidate, parameter, payload) probe.
// Results are immutable once returned.
type Result struct {
	Candidate string             `json:"candidate"`
	Parameter string             `json:"parameter"`
	Instance  payloads.Instance  `json:"instance"`
	Reflected bool               `json:"reflected"`
	// ContextMatch is true when the payload landed in the context it
	// targets. A mismatch keeps Reflected true but lowers priority.
	ContextMatch bool               `json:"context_match"`
	Contexts     []payloads.Context `json:"contexts,omitempty"`
	WAFBlocked   bool               `json:"waf_blocked"`
	StatusCode   int                `json:"status_code"`
	Location     string             `json:"location,omitempty"`
	Snippet      string             `json:"snippet,omitempty"`
}

// Engine issues reflection probes.
type Engine struct {
	client  *http.Client
	limiter *ratelimit.Limiter
	fp      *waf.Fingerprint
	retry   retry.Config
}

// Option configures an Engine.
type Option func(*Engine)

// WithClient sets the HTTP client used for probes.
func WithClient(c *http.Client) Option {
	return func(e *Engine) { e.client = c }
}

// WithLimiter sets the outbound rate limiter.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(e *Engine) { e.limiter = l }
}

// WithFingerprint supplies the WAF fingerprint used to classify blocked
// probes. The fingerprint is read-only after phase 0.
func WithFingerprint(fp *waf.Fingerprint) Option {
	return func(e *Engine) { e.fp = fp }
}

// SetFingerprint installs the WAF fingerprint after phase 0. Write-once:
// call before any probe is dispatched.
func (e *Engine) SetFingerprint(fp *waf.Fingerprint) {
	e.fp = fp
}

// NewEngine creates a probe engine with scan-tuned defaults.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		client: httpclient.New(httpclient.Config{
			Timeout:            duration.HTTPScanning,
			InsecureSkipVerify: true,
			MaxRedirects:       defaults.MaxRedirects,
		}),
		retry: retry.ProbeConfig(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Probe injects one payload instance into one parameter and inspects the
// response. Network failures are retried once, then absorbed into a
// non-reflection result; only context cancellation returns an error.
func (e *Engine) Probe(ctx context.Context, cand Candidate, param string, inst payloads.Instance) (*Result, error) {
	res := &Result{
		Candidate: cand.RawURL,
		Parameter: param,
		Instance:  inst,
	}

	if err := e.limiter.WaitForHost(ctx, cand.Host()); err != nil {
		return nil, err
	}

	var (
		status int
		header http.Header
		body   string
	)
	err := retry.Do(ctx, e.retry, func() error {
		req, err := e.buildRequest(ctx, cand, param, inst.Value)
		if err != nil {
			return retry.Stop(err)
		}
		s, h, b, err := e.do(req)
		if err != nil {
			return err
		}
		status, header, body = s, h, b
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Probe failed after retry; record non-reflection and move on.
		return res, nil
	}

	res.StatusCode = status
	if e.fp.Matches(status, header, body) {
		res.WAFBlocked = true
		return res, nil
	}
	if status >= http.StatusBadRequest {
		return res, nil
	}

	inspect(res, header, body)
	return res, nil
}

// BaselineContext probes the pair with a bare marker token and classifies
// where it reflects, so the payload sweep can draw from the matching
// catalog subset instead of the whole catalog. Returns ContextUnknown
// when derivation is inconclusive: no reflection, a blocked or failed
// response, or a header-only reflection.
func (e *Engine) BaselineContext(ctx context.Context, cand Candidate, param, marker string) (payloads.Context, error) {
	if err := e.limiter.WaitForHost(ctx, cand.Host()); err != nil {
		return payloads.ContextUnknown, err
	}

	var (
		status int
		header http.Header
		body   string
	)
	err := retry.Do(ctx, e.retry, func() error {
		req, err := e.buildRequest(ctx, cand, param, marker)
		if err != nil {
			return retry.Stop(err)
		}
		s, h, b, err := e.do(req)
		if err != nil {
			return err
		}
		status, header, body = s, h, b
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return payloads.ContextUnknown, ctx.Err()
		}
		return payloads.ContextUnknown, nil
	}
	if e.fp.Matches(status, header, body) || status >= http.StatusBadRequest {
		return payloads.ContextUnknown, nil
	}

	searchBody := body
	if !strings.Contains(searchBody, marker) {
		searchBody = decodePercent(body)
	}
	return payloads.Classify(searchBody, marker), nil
}

// ProbePair runs the payload escalation for one (candidate, parameter)
// pair, stopping at the first WAF-blocked response. Accumulated results
// up to the block stand.
func (e *Engine) ProbePair(ctx context.Context, cand Candidate, param string, insts []payloads.Instance) ([]*Result, error) {
	var out []*Result
	for _, inst := range insts {
		res, err := e.Probe(ctx, cand, param, inst)
		if err != nil {
			return out, err
		}
		out = append(out, res)
		if res.WAFBlocked {
			break
		}
	}
	return out, nil
}

// InjectURL returns the candidate URL with value substituted into the
// named query parameter. The verification pass navigates to this URL.
func (c Candidate) InjectURL(param, value string) (string, error) {
	u, err := url.Parse(c.RawURL)
	if err != nil {
		return "", err
	}
	u.RawQuery = injectedValues(c, param, value).Encode()
	return u.String(), nil
}

func injectedValues(c Candidate, param, value string) url.Values {
	vals := url.Values{}
	for k, vs := range c.Params {
		for _, v := range vs {
			vals.Add(k, v)
		}
	}
	vals.Set(param, value)
	return vals
}

func (e *Engine) buildRequest(ctx context.Context, cand Candidate, param, value string) (*http.Request, error) {
	u, err := url.Parse(cand.RawURL)
	if err != nil {
		return nil, err
	}

	vals := injectedValues(cand, param, value)

	var req *http.Request
	if cand.Method == http.MethodPost {
		u.RawQuery = ""
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(vals.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", defaults.ContentTypeForm)
	} else {
		u.RawQuery = vals.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
	}
	req.Header.Set("User-Agent", defaults.UAChrome)
	req.Header.Set("Accept", defaults.AcceptHTML)
	return req, nil
}

func (e *Engine) do(req *http.Request) (int, http.Header, string, error) {
	resp, err := e.client.Do(req)
	if err != nil {
		return 0, nil, "", err
	}
	defer iohelper.DrainAndClose(resp.Body)

	body, err := iohelper.ReadBodyDefault(resp.Body)
	if err != nil {
		return 0, nil, "", err
	}
	return resp.StatusCode, resp.Header, string(body), nil
}

// inspect decides reflection from a successful response. The payload
// value must appear verbatim, or survive percent-decoding; an
// entity-escaped copy does not count.
func inspect(res *Result, header http.Header, body string) {
	value := res.Instance.Value

	searchBody := body
	idx := strings.Index(searchBody, value)
	if idx == -1 {
		searchBody = decodePercent(body)
		idx = strings.Index(searchBody, value)
	}
	if idx >= 0 {
		res.Reflected = true
		res.Location = LocationBody
		res.Snippet = strutil.Snippet(searchBody, idx, len(value), defaults.SnippetRadius)
		// Classify where the whole value starts, not where its inner
		// script lands: a tag-injection payload that reflects intact
		// begins in HTML context even though it creates a script one.
		res.Contexts = payloads.ClassifyAll(searchBody, value)
		res.ContextMatch = contextMatches(res.Instance.Payload.Context, res.Contexts)
		return
	}

	// Headers reflect too (redirect targets, cookies). No execution
	// context applies, so ContextMatch stays false.
	for name, vs := range header {
		for _, v := range vs {
			if strings.Contains(v, value) || strings.Contains(decodePercent(v), value) {
				res.Reflected = true
				res.Location = LocationHeader
				res.Snippet = strutil.Truncate(name+": "+v, 2*defaults.SnippetRadius)
				return
			}
		}
	}
}

func contextMatches(want payloads.Context, got []payloads.Context) bool {
	if want == payloads.ContextUnknown {
		return len(got) > 0
	}
	for _, c := range got {
		if c == want {
			return true
		}
	}
	return false
}

// decodePercent decodes valid %XX escapes and leaves everything else,
// including malformed sequences, untouched.
func decodePercent(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			hi, ok1 := unhex(s[i+1])
			lo, ok2 := unhex(s[i+2])
			if ok1 && ok2 {
				b.WriteByte(hi<<4 | lo)
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
