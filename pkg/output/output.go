// Package output renders scan outcomes: a machine-readable JSON report
// and a styled console summary.
package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/xssed/xssed/pkg/jsonutil"
	"github.com/xssed/xssed/pkg/scanner"
	"github.com/xssed/xssed/pkg/strutil"
	"github.com/xssed/xssed/pkg/ui"
)

// Report is the serialized scan outcome plus tool metadata.
type Report struct {
	Tool        string           `json:"tool"`
	Version     string           `json:"version"`
	GeneratedAt time.Time        `json:"generated_at"`
	Outcome     *scanner.Outcome `json:"outcome"`
}

// NewReport wraps an outcome for serialization.
func NewReport(out *scanner.Outcome) *Report {
	return &Report{
		Tool:        "xssed",
		Version:     ui.Version,
		GeneratedAt: time.Now().UTC(),
		Outcome:     out,
	}
}

// WriteJSON streams the report as indented JSON.
func WriteJSON(w io.Writer, out *scanner.Outcome) error {
	enc := jsonutil.NewStreamEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewReport(out))
}

// WriteFile writes the JSON report to path, or stdout when path is "-"
// or empty.
func WriteFile(path string, out *scanner.Outcome) error {
	if path == "" || path == "-" {
		return WriteJSON(os.Stdout, out)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}
	defer f.Close()
	if err := WriteJSON(f, out); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

// PrintSummary renders the human-readable scan summary.
func PrintSummary(w io.Writer, out *scanner.Outcome) {
	st := out.Stats

	fmt.Fprintln(w)
	fmt.Fprintln(w, ui.SectionStyle.Render("Scan Summary"))
	if out.Fingerprint != nil && out.Fingerprint.Detected {
		fmt.Fprintf(w, "  WAF: %s (confidence %.0f%%)\n",
			ui.WarningStyle.Render(out.Fingerprint.Vendor), out.Fingerprint.Confidence*100)
	}
	fmt.Fprintf(w, "  Candidates: %d   Probes: %d   Reflected: %d\n",
		st.Candidates, st.Probes, st.Reflected)
	fmt.Fprintf(w, "  %s %d   %s %d   %s %d   %s %d\n",
		ui.VerifiedStyle.Render("Verified:"), st.Verified,
		ui.FalsePositiveStyle.Render("False positives:"), st.FalsePositives,
		ui.BlockedStyle.Render("WAF blocked:"), st.WAFBlocked,
		ui.UntestedStyle.Render("Untested:"), st.Untested)
	if st.Verified+st.FalsePositives > 0 {
		fmt.Fprintf(w, "  Precision: %.0f%%\n", st.Accuracy*100)
	}
	fmt.Fprintf(w, "  Duration: %s\n", time.Duration(st.DurationMS)*time.Millisecond)

	if len(out.VerifiedXSS) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, ui.SectionStyle.Render("Verified XSS"))
		for _, co := range out.VerifiedXSS {
			sev := string(co.Severity)
			fmt.Fprintf(w, "  [%s] %s\n",
				ui.SeverityStyle(sev).Render(sev), ui.URLStyle.Render(co.Candidate))
			if v := co.Verification; v != nil {
				fmt.Fprintf(w, "        parameter=%s evidence=%s payload=%s\n",
					v.Parameter, v.Evidence, strutil.Truncate(v.Instance.Value, 80))
				if v.Screenshot != "" {
					fmt.Fprintf(w, "        screenshot=%s\n", v.Screenshot)
				}
			}
		}
	}

	if len(out.WAFBlocked) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, ui.BlockedStyle.Render(fmt.Sprintf(
			"%d candidate(s) blocked by WAF before reflection testing completed", len(out.WAFBlocked))))
	}
	if len(out.Untested) > 0 {
		reasons := map[string]int{}
		for _, co := range out.Untested {
			reasons[co.Reason]++
		}
		fmt.Fprintln(w)
		for reason, n := range reasons {
			fmt.Fprintln(w, ui.UntestedStyle.Render(fmt.Sprintf("%d candidate(s) untested (%s)", n, reason)))
		}
	}
}
