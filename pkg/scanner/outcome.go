package scanner

import (
	"time"

	"github.com/xssed/xssed/pkg/payloads"
	"github.com/xssed/xssed/pkg/reflection"
	"github.com/xssed/xssed/pkg/verify"
	"github.com/xssed/xssed/pkg/waf"
)

// Status is the final classification of one candidate.
type Status string

const (
	StatusVerified      Status = "verified_xss"
	StatusFalsePositive Status = "false_positive"
	StatusWAFBlocked    Status = "waf_blocked"
	StatusUntested      Status = "untested"
)

// Reasons attached to non-verified outcomes so an empty result set is
// never silent about why.
const (
	ReasonNoReflection       = "no-reflection"
	ReasonNoExecution        = "no-execution"
	ReasonWAFBlocked         = "waf-blocked"
	ReasonCapped             = "capped"
	ReasonCancelled          = "cancelled"
	ReasonBrowserUnavailable = "browser-unavailable"
)

// CandidateOutcome is the terminal state of one candidate URL.
type CandidateOutcome struct {
	Candidate    string                `json:"candidate"`
	Status       Status                `json:"status"`
	Reason       string                `json:"reason,omitempty"`
	Severity     payloads.Severity     `json:"severity,omitempty"`
	Reflections  []*reflection.Result  `json:"reflections,omitempty"`
	Verification *verify.Result        `json:"verification,omitempty"`
}

// Stats summarizes a finished scan.
type Stats struct {
	Candidates     int     `json:"candidates"`
	Probes         int     `json:"probes"`
	Reflected      int     `json:"reflected"`
	Verified       int     `json:"verified"`
	FalsePositives int     `json:"false_positives"`
	WAFBlocked     int     `json:"waf_blocked"`
	Untested       int     `json:"untested"`
	// Accuracy is verified / (verified + false positives), the measure the
	// verification pass exists to improve.
	Accuracy   float64 `json:"accuracy"`
	DurationMS int64   `json:"duration_ms"`
}

// Outcome is the aggregate scan result. Every input candidate appears in
// exactly one of the four partitions.
type Outcome struct {
	Target      string             `json:"target"`
	RunID       string             `json:"run_id"`
	StartedAt   time.Time          `json:"started_at"`
	Fingerprint *waf.Fingerprint   `json:"waf_fingerprint,omitempty"`

	VerifiedXSS   []CandidateOutcome `json:"verified_xss"`
	FalsePositive []CandidateOutcome `json:"false_positive"`
	WAFBlocked    []CandidateOutcome `json:"waf_blocked"`
	Untested      []CandidateOutcome `json:"untested"`

	Stats Stats `json:"stats"`
}

// Total returns the number of candidates across all partitions.
func (o *Outcome) Total() int {
	return len(o.VerifiedXSS) + len(o.FalsePositive) + len(o.WAFBlocked) + len(o.Untested)
}

// add routes a candidate outcome into its partition. Callers hold the
// scanner's outcome lock.
func (o *Outcome) add(co CandidateOutcome) {
	switch co.Status {
	case StatusVerified:
		o.VerifiedXSS = append(o.VerifiedXSS, co)
	case StatusFalsePositive:
		o.FalsePositive = append(o.FalsePositive, co)
	case StatusWAFBlocked:
		o.WAFBlocked = append(o.WAFBlocked, co)
	default:
		o.Untested = append(o.Untested, co)
	}
}

func (o *Outcome) finishStats(probes int, started time.Time) {
	o.Stats.Candidates = o.Total()
	o.Stats.Probes = probes
	o.Stats.Verified = len(o.VerifiedXSS)
	o.Stats.FalsePositives = len(o.FalsePositive)
	o.Stats.WAFBlocked = len(o.WAFBlocked)
	o.Stats.Untested = len(o.Untested)
	reflectedFP := 0
	for _, co := range o.FalsePositive {
		if len(co.Reflections) > 0 {
			reflectedFP++
		}
	}
	for _, part := range [][]CandidateOutcome{o.VerifiedXSS, o.FalsePositive, o.WAFBlocked, o.Untested} {
		for _, co := range part {
			if len(co.Reflections) > 0 {
				o.Stats.Reflected++
			}
		}
	}
	// Precision over the candidates that actually reached verification.
	if n := o.Stats.Verified + reflectedFP; n > 0 {
		o.Stats.Accuracy = float64(o.Stats.Verified) / float64(n)
	}
	o.Stats.DurationMS = time.Since(started).Milliseconds()
}
