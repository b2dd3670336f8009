// Package duration provides canonical time constants for the entire codebase.
// This is the SINGLE SOURCE OF TRUTH for all time-based configuration.
//
// Usage:
//
//	Timeout: duration.HTTPScanning,
//
// DO NOT use hardcoded time.Duration values like `15 * time.Second` anywhere.
// Instead, reference the appropriate constant from this package.
package duration

import "time"

// HTTP client timeouts. These match the presets in pkg/httpclient and are
// re-exported here for packages that need timeout values without importing
// httpclient.
const (
	// HTTPProbing is for WAF fingerprint probes and health checks (5s)
	HTTPProbing = 5 * time.Second

	// HTTPScanning is for reflection probing (15s) - the default
	HTTPScanning = 15 * time.Second
)

// Browser/headless timeouts. Use these for chromedp operations.
const (
	// BrowserPage is for page load timeout (30s)
	BrowserPage = 30 * time.Second

	// BrowserSettle is how long to wait after navigation for payload
	// side effects before declaring non-execution (3s)
	BrowserSettle = 3 * time.Second

	// BrowserShutdown bounds graceful browser teardown before the
	// process tree is force-killed (5s)
	BrowserShutdown = 5 * time.Second
)

// Retry intervals.
const (
	// RetryFast is for quick retries (1s)
	RetryFast = 1 * time.Second

	// RetryMax is the upper bound on any single retry delay (5s)
	RetryMax = 5 * time.Second
)

// Network/transport. Use these for low-level network configuration.
const (
	// DialTimeout is for establishing TCP connections (10s)
	DialTimeout = 10 * time.Second

	// KeepAlive is for TCP keep-alive interval (30s)
	KeepAlive = 30 * time.Second

	// IdleConnTimeout is for idle connection pool timeout (90s)
	IdleConnTimeout = 90 * time.Second

	// TLSHandshake is for TLS handshake timeout (10s)
	TLSHandshake = 10 * time.Second
)
