package ui

import "testing"

func TestSilentToggle(t *testing.T) {
	SetSilent(true)
	if !IsSilent() {
		t.Error("silent mode not set")
	}
	SetSilent(false)
	if IsSilent() {
		t.Error("silent mode not cleared")
	}
}

func TestNoColorToggle(t *testing.T) {
	SetNoColor(true)
	if !IsNoColor() {
		t.Error("no-color mode not set")
	}
	// Rendering with colors disabled must pass text through unchanged.
	if got := HighStyle.Render("high"); got != "high" {
		t.Errorf("render with colors off = %q", got)
	}
}

func TestSeverityStyle(t *testing.T) {
	for _, sev := range []string{"high", "medium", "low", "unknown"} {
		// Must not panic and must render the input text.
		out := SeverityStyle(sev).Render(sev)
		if out == "" {
			t.Errorf("empty render for %q", sev)
		}
	}
}
