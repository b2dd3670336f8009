package waf

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/xssed/xssed/pkg/defaults"
	"github.com/xssed/xssed/pkg/duration"
	"github.com/xssed/xssed/pkg/httpclient"
	"github.com/xssed/xssed/pkg/iohelper"
)

// Fingerprinter probes a target to identify any WAF in front of it.
type Fingerprinter struct {
	client    *http.Client
	userAgent string
}

// Option configures a Fingerprinter.
type Option func(*Fingerprinter)

// WithClient sets the HTTP client used for probes.
func WithClient(c *http.Client) Option {
	return func(f *Fingerprinter) { f.client = c }
}

// WithUserAgent overrides the probe User-Agent.
func WithUserAgent(ua string) Option {
	return func(f *Fingerprinter) { f.userAgent = ua }
}

// NewFingerprinter creates a fingerprinter with probe-tuned defaults.
func NewFingerprinter(opts ...Option) *Fingerprinter {
	f := &Fingerprinter{
		client: httpclient.New(httpclient.Config{
			Timeout:            duration.HTTPProbing,
			InsecureSkipVerify: true,
			MaxIdleConns:       10,
			MaxConnsPerHost:    5,
			MaxRedirects:       defaults.MaxRedirects,
		}),
		userAgent: defaults.UAChrome,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// probes are the suspicious-but-harmless requests that trigger WAF rules
// without exploiting anything.
var probes = []struct {
	name  string
	query string
}{
	{"xss", `q=<script>alert(1)</script>`},
	{"sqli", `id=1' OR '1'='1'--`},
	{"lfi", `file=../../../etc/passwd`},
	{"cmdi", `ip=127.0.0.1;id`},
	{"ssti", `name={{7*7}}`},
}

// Fingerprint probes target and consolidates the evidence into a vendor
// guess. The benign baseline request must succeed; its failure returns
// ErrTargetUnreachable and the caller should abort the scan. Probe
// failures after the baseline are tolerated.
func (f *Fingerprinter) Fingerprint(ctx context.Context, target string) (*Fingerprint, error) {
	fp := &Fingerprint{}

	status, header, body, err := f.get(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("%w: baseline request to %s: %v", ErrTargetUnreachable, target, err)
	}
	fp.BaselineStatus = status

	// Passive pass: an in-path WAF usually betrays itself on clean traffic.
	for i := range signatures {
		fp.Evidence = append(fp.Evidence, signatures[i].evidenceFor("baseline", status, header, body)...)
	}

	// Active pass: trigger rules with canned suspicious queries.
	for _, p := range probes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pURL, err := withQuery(target, p.query)
		if err != nil {
			continue
		}
		pStatus, pHeader, pBody, err := f.get(ctx, pURL)
		if err != nil {
			continue
		}
		if IsBlockStatus(pStatus) && pStatus != fp.BaselineStatus {
			fp.Evidence = append(fp.Evidence, Evidence{
				Type: "status", Source: p.name,
				Value:      fmt.Sprintf("%d", pStatus),
				Confidence: 0.5,
			})
		}
		for i := range signatures {
			fp.Evidence = append(fp.Evidence, signatures[i].evidenceFor(p.name, pStatus, pHeader, pBody)...)
		}
	}

	consolidate(fp)
	return fp, nil
}

func (f *Fingerprinter) get(ctx context.Context, target string) (int, http.Header, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, "", err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", defaults.AcceptHTML)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, "", err
	}
	defer iohelper.DrainAndClose(resp.Body)

	body, err := iohelper.ReadBodySmall(resp.Body)
	if err != nil {
		return 0, nil, "", err
	}
	return resp.StatusCode, resp.Header, string(body), nil
}

func withQuery(target, rawQuery string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	u.RawQuery = rawQuery
	return u.String(), nil
}

// consolidate scores vendors by their evidence and fills the summary
// fields. Per-vendor confidence is the evidence sum capped at 1.0.
func consolidate(fp *Fingerprint) {
	scores := make(map[string]float64)
	var generic float64
	for _, ev := range fp.Evidence {
		if ev.Vendor == "" {
			generic += ev.Confidence
			continue
		}
		scores[ev.Vendor] += ev.Confidence
	}

	vendors := make([]string, 0, len(scores))
	for v := range scores {
		vendors = append(vendors, v)
	}
	sort.Slice(vendors, func(i, j int) bool {
		if scores[vendors[i]] != scores[vendors[j]] {
			return scores[vendors[i]] > scores[vendors[j]]
		}
		return vendors[i] < vendors[j]
	})

	if len(vendors) > 0 {
		fp.Vendor = vendors[0]
		fp.Confidence = min(scores[fp.Vendor], 1.0)
	} else {
		fp.Confidence = min(generic, 1.0)
	}
	fp.Detected = fp.Confidence >= ConfidenceThreshold
}
