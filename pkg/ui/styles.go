package ui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	// Brand colors
	Primary   = lipgloss.Color("#7D56F4") // Purple
	Secondary = lipgloss.Color("#00D4AA") // Teal

	// Severity colors
	High   = lipgloss.Color("#FF6B6B")
	Medium = lipgloss.Color("#FFD93D")
	Low    = lipgloss.Color("#6BCB77")

	// Status colors
	Success = lipgloss.Color("#00D26A")
	Warning = lipgloss.Color("#FFB800")
	Error   = lipgloss.Color("#FF3838")
	Muted   = lipgloss.Color("#6B7280")
)

// Pre-configured styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(Primary).
			Padding(0, 1)

	BannerStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	VersionStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	SectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Bold(true).
			Underline(true)

	// Finding styles keyed by outcome
	VerifiedStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	FalsePositiveStyle = lipgloss.NewStyle().
				Foreground(Muted)

	BlockedStyle = lipgloss.NewStyle().
			Foreground(Warning)

	UntestedStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Italic(true)

	HighStyle   = lipgloss.NewStyle().Foreground(High).Bold(true)
	MediumStyle = lipgloss.NewStyle().Foreground(Medium)
	LowStyle    = lipgloss.NewStyle().Foreground(Low)

	MutedStyle   = lipgloss.NewStyle().Foreground(Muted)
	SuccessStyle = lipgloss.NewStyle().Foreground(Success).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	URLStyle     = lipgloss.NewStyle().Foreground(Secondary)
)

// SeverityStyle returns the display style for a severity label.
func SeverityStyle(severity string) lipgloss.Style {
	switch severity {
	case "high":
		return HighStyle
	case "medium":
		return MediumStyle
	case "low":
		return LowStyle
	}
	return MutedStyle
}
