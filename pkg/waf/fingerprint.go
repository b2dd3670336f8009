// Package waf fingerprints web application firewalls in front of a scan
// target. The fingerprint is advisory: it selects vendor bypass payloads
// and lets the reflection engine classify blocked probes, but a scan never
// aborts because a WAF was (or was not) detected.
package waf

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/xssed/xssed/pkg/defaults"
)

// Evidence is a single observation supporting a vendor match.
type Evidence struct {
	Type       string  `json:"type"` // header, body, status
	Source     string  `json:"source"`
	Value      string  `json:"value"`
	Vendor     string  `json:"vendor,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Fingerprint is the consolidated result of probing a target.
type Fingerprint struct {
	Detected   bool       `json:"detected"`
	Vendor     string     `json:"vendor,omitempty"`
	Confidence float64    `json:"confidence"`
	Evidence   []Evidence `json:"evidence,omitempty"`

	// BaselineStatus is the status of the benign request, kept so block
	// classification can tell a WAF 403 from a site that is 403 everywhere.
	BaselineStatus int `json:"baseline_status"`
}

// Signature defines the detection patterns for one WAF vendor.
type Signature struct {
	Vendor         string
	HeaderPatterns map[string]*regexp.Regexp
	CookiePatterns []*regexp.Regexp
	BodyPatterns   []*regexp.Regexp
	StatusCodes    []int
}

// blockStatuses are the statuses WAFs commonly answer probes with.
var blockStatuses = map[int]bool{
	http.StatusForbidden:          true,
	http.StatusNotAcceptable:      true,
	http.StatusTeapot:             true,
	http.StatusTooManyRequests:    true,
	http.StatusServiceUnavailable: true,
}

// IsBlockStatus reports whether a status code is a typical WAF block answer.
func IsBlockStatus(code int) bool {
	return blockStatuses[code]
}

// Matches reports whether a probe response looks like a block by the
// fingerprinted WAF. With no vendor identified it falls back to generic
// block-status detection, ignoring statuses the baseline also returned.
func (f *Fingerprint) Matches(status int, header http.Header, body string) bool {
	if f != nil && f.Vendor != "" {
		if sig := signatureFor(f.Vendor); sig != nil && sig.matches(status, header, body) {
			return true
		}
	}
	// A site that answers everything with the same status is not evidence
	// of per-probe blocking, even when that status is 403.
	if f != nil && status == f.BaselineStatus {
		return false
	}
	return IsBlockStatus(status)
}

func signatureFor(vendor string) *Signature {
	for i := range signatures {
		if strings.EqualFold(signatures[i].Vendor, vendor) {
			return &signatures[i]
		}
	}
	return nil
}

// matches checks one response against the signature patterns.
func (s *Signature) matches(status int, header http.Header, body string) bool {
	for name, re := range s.HeaderPatterns {
		if v := header.Get(name); v != "" && re.MatchString(v) {
			return true
		}
	}
	if len(s.CookiePatterns) > 0 {
		cookies := strings.Join(header.Values("Set-Cookie"), "; ")
		for _, re := range s.CookiePatterns {
			if re.MatchString(cookies) {
				return true
			}
		}
	}
	for _, re := range s.BodyPatterns {
		if re.MatchString(body) {
			return true
		}
	}
	for _, c := range s.StatusCodes {
		if c == status {
			return true
		}
	}
	return false
}

// evidenceFor collects signature hits from a single response.
func (s *Signature) evidenceFor(source string, status int, header http.Header, body string) []Evidence {
	var out []Evidence
	for name, re := range s.HeaderPatterns {
		if v := header.Get(name); v != "" && re.MatchString(v) {
			out = append(out, Evidence{
				Type: "header", Source: source,
				Value:  fmt.Sprintf("%s: %s", name, v),
				Vendor: s.Vendor, Confidence: 0.9,
			})
		}
	}
	if len(s.CookiePatterns) > 0 {
		cookies := strings.Join(header.Values("Set-Cookie"), "; ")
		for _, re := range s.CookiePatterns {
			if m := re.FindString(cookies); m != "" {
				out = append(out, Evidence{
					Type: "header", Source: source,
					Value:  "Set-Cookie: " + m,
					Vendor: s.Vendor, Confidence: 0.9,
				})
			}
		}
	}
	for _, re := range s.BodyPatterns {
		if m := re.FindString(body); m != "" {
			out = append(out, Evidence{
				Type: "body", Source: source,
				Value:  m,
				Vendor: s.Vendor, Confidence: 0.6,
			})
		}
	}
	for _, c := range s.StatusCodes {
		if c == status {
			out = append(out, Evidence{
				Type: "status", Source: source,
				Value:  fmt.Sprintf("%d", status),
				Vendor: s.Vendor, Confidence: 0.3,
			})
		}
	}
	return out
}

// signatures holds the built-in vendor detection patterns.
var signatures = []Signature{
	{
		Vendor: "Cloudflare",
		HeaderPatterns: map[string]*regexp.Regexp{
			"Server": regexp.MustCompile(`(?i)cloudflare`),
			"Cf-Ray": regexp.MustCompile(`.+`),
		},
		CookiePatterns: []*regexp.Regexp{
			regexp.MustCompile(`__cfduid|__cf_bm|cf_clearance`),
		},
		BodyPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)attention required.{0,10}cloudflare`),
			regexp.MustCompile(`(?i)cloudflare ray id`),
		},
	},
	{
		Vendor: "Akamai",
		HeaderPatterns: map[string]*regexp.Regexp{
			"Server":              regexp.MustCompile(`(?i)akamaighost`),
			"X-Akamai-Request-Id": regexp.MustCompile(`.+`),
		},
		BodyPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)access denied.{0,30}errors\.edgesuite\.net`),
			regexp.MustCompile(`(?i)reference&#32;#`),
		},
	},
	{
		Vendor: "Imperva",
		HeaderPatterns: map[string]*regexp.Regexp{
			"X-Iinfo": regexp.MustCompile(`.+`),
			"X-Cdn":   regexp.MustCompile(`(?i)incapsula`),
		},
		CookiePatterns: []*regexp.Regexp{
			regexp.MustCompile(`incap_ses|visid_incap`),
		},
		BodyPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)incident.?id`),
			regexp.MustCompile(`(?i)_Incapsula_Resource`),
		},
	},
	{
		Vendor: "AWS WAF",
		HeaderPatterns: map[string]*regexp.Regexp{
			"X-Amzn-Requestid": regexp.MustCompile(`.+`),
			"Server":           regexp.MustCompile(`(?i)awselb|cloudfront`),
		},
		BodyPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)request blocked.{0,60}cloudfront`),
			regexp.MustCompile(`(?i)generated by cloudfront`),
		},
		StatusCodes: []int{http.StatusForbidden},
	},
	{
		Vendor: "ModSecurity",
		HeaderPatterns: map[string]*regexp.Regexp{
			"Server": regexp.MustCompile(`(?i)mod_security|modsecurity|NYOB`),
		},
		BodyPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)mod_security|modsecurity`),
			regexp.MustCompile(`(?i)not acceptable`),
			regexp.MustCompile(`(?i)this error was generated by mod`),
		},
		StatusCodes: []int{http.StatusNotAcceptable},
	},
	{
		Vendor: "F5 BIG-IP",
		HeaderPatterns: map[string]*regexp.Regexp{
			"Server": regexp.MustCompile(`(?i)big-?ip|f5`),
		},
		CookiePatterns: []*regexp.Regexp{
			regexp.MustCompile(`BIGipServer|TS[0-9a-f]{6,8}=`),
		},
		BodyPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)the requested url was rejected`),
		},
	},
	{
		Vendor: "Sucuri",
		HeaderPatterns: map[string]*regexp.Regexp{
			"Server":      regexp.MustCompile(`(?i)sucuri`),
			"X-Sucuri-Id": regexp.MustCompile(`.+`),
		},
		BodyPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)sucuri website firewall`),
			regexp.MustCompile(`(?i)cloudproxy`),
		},
	},
}

// Vendors returns the list of vendors the fingerprinter can identify.
func Vendors() []string {
	out := make([]string, len(signatures))
	for i, s := range signatures {
		out[i] = s.Vendor
	}
	return out
}

// ConfidenceThreshold is the consolidated confidence at which a
// fingerprint reports Detected.
const ConfidenceThreshold = defaults.WAFConfidenceThreshold
