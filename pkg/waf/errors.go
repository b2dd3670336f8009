package waf

import "errors"

// Sentinel errors for fingerprinting failure modes.
// Callers should use errors.Is() to check for these.
var (
	// ErrTargetUnreachable indicates the benign baseline request failed,
	// so no probe results can be interpreted. Scans abort on this.
	ErrTargetUnreachable = errors.New("waf: target unreachable")

	// ErrUnknownVendor indicates blocking behaviour was observed but no
	// vendor signature matched.
	ErrUnknownVendor = errors.New("waf: unknown vendor")
)
