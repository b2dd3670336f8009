// Package defaults provides canonical default values for the entire codebase.
// This is the SINGLE SOURCE OF TRUTH for all runtime configuration defaults.
//
// Usage:
//
//	cfg.ReflectionConcurrency = defaults.ConcurrencyReflection
//	req.Header.Set("Content-Type", defaults.ContentTypeForm)
//
// DO NOT use hardcoded values like `Concurrency: 10` anywhere.
// Instead, reference the appropriate constant from this package.
package defaults

import "fmt"

// Version is the current xssed version
const Version = "1.2.0"

// Concurrency settings. Reflection probes are cheap HTTP requests;
// verification holds a browser page for its whole duration, so its pool
// is kept much smaller.
const (
	// ConcurrencyReflection is the reflection-phase worker count (10)
	ConcurrencyReflection = 10

	// ConcurrencyVerify is the verification-phase worker count (3)
	ConcurrencyVerify = 3

	// ConcurrencyMax caps either pool (50)
	ConcurrencyMax = 50
)

// Retry settings.
const (
	// RetryNone disables retries (0)
	RetryNone = 0

	// RetryOnce is the standard retry count for network errors (1)
	RetryOnce = 1
)

// Buffer sizes. Use these for byte buffers and I/O operations.
const (
	// BufferSmall is for typical reads (4KB)
	BufferSmall = 4 * 1024

	// BufferMedium is for larger reads (32KB)
	BufferMedium = 32 * 1024

	// BufferMax is the maximum response body size (1MB)
	BufferMax = 1024 * 1024
)

// HTTP content types.
const (
	// ContentTypeJSON is application/json
	ContentTypeJSON = "application/json"

	// ContentTypeForm is application/x-www-form-urlencoded
	ContentTypeForm = "application/x-www-form-urlencoded"

	// ContentTypeHTML is text/html
	ContentTypeHTML = "text/html"
)

// HTTP Accept headers.
const (
	// AcceptAll accepts any content type
	AcceptAll = "*/*"

	// AcceptHTML accepts HTML and related types (standard browser)
	AcceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// User agents.
const (
	// UAChrome is a Chrome user agent used for probes that should look
	// like regular browser traffic
	UAChrome = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// UAMinimal is a minimal user agent
	UAMinimal = "xssed/" + Version
)

// UserAgent returns the xssed user agent with context
func UserAgent(context string) string {
	if context == "" {
		return UAMinimal
	}
	return fmt.Sprintf("xssed/%s (%s)", Version, context)
}

// Scan limits.
const (
	// MaxURLs is the default cap on candidates tested per scan (1000)
	MaxURLs = 1000

	// MaxRedirects is the redirect-follow depth for reflection probes (5)
	MaxRedirects = 5

	// MaxParams is the maximum number of parameters probed per candidate (100)
	MaxParams = 100

	// SnippetRadius is the byte window captured around a reflected
	// marker for evidence reporting (50)
	SnippetRadius = 50
)

// Rate limiting.
const (
	// RateLimitNone disables rate limiting (0)
	RateLimitNone = 0

	// RateLimitDefault is the default reflection-phase request rate (50 req/s)
	RateLimitDefault = 50
)

// WAF fingerprinting.
const (
	// WAFProbeCount is the number of suspicious probes sent during fingerprinting
	WAFProbeCount = 5

	// WAFConfidenceThreshold is the minimum confidence to report a vendor (0.7)
	WAFConfidenceThreshold = 0.7
)
