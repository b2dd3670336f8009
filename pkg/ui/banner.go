package ui

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Version information - these can be overridden at build time via ldflags:
// go build -ldflags "-X github.com/xssed/xssed/pkg/ui.Version=1.0.0"
var (
	Version   = "1.2.0"
	BuildDate = "dev"
	Commit    = "dev"
)

// Global UI state
var (
	silentMode  bool
	noColorMode bool
	uiMu        sync.RWMutex
)

// SetSilent enables or disables silent mode (suppresses progress output).
func SetSilent(silent bool) {
	uiMu.Lock()
	defer uiMu.Unlock()
	silentMode = silent
}

// IsSilent returns whether silent mode is enabled.
func IsSilent() bool {
	uiMu.RLock()
	defer uiMu.RUnlock()
	return silentMode
}

// SetNoColor disables colored output.
func SetNoColor(noColor bool) {
	uiMu.Lock()
	defer uiMu.Unlock()
	noColorMode = noColor
	if noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsNoColor returns whether color is disabled.
func IsNoColor() bool {
	uiMu.RLock()
	defer uiMu.RUnlock()
	return noColorMode
}

// ASCII art banner
const bannerArt = `
                                __
   _  ________  ________  ____/ /
  | |/_/ ___/ / ___/ _ \/ __  /
 _>  <(__  )(__  )  __/ /_/ /
/_/|_/____//____/\___/\__,_/
`

// PrintBanner prints the application banner to stderr.
func PrintBanner() {
	if IsSilent() {
		return
	}
	for _, line := range strings.Split(bannerArt, "\n") {
		if line != "" {
			fmt.Fprintln(os.Stderr, BannerStyle.Render(line))
		}
	}
	fmt.Fprintf(os.Stderr, "        %s\n\n", VersionStyle.Render("v"+Version))
}

// Progressf prints a progress line to stderr unless silent.
func Progressf(format string, args ...any) {
	if IsSilent() {
		return
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", MutedStyle.Render("[*]"), fmt.Sprintf(format, args...))
}

// AutoDetectColor disables color when stderr is not a terminal or
// NO_COLOR is set.
func AutoDetectColor() {
	if os.Getenv("NO_COLOR") != "" || !term.IsTerminal(int(os.Stderr.Fd())) {
		SetNoColor(true)
	}
}
