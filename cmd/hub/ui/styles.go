// Package ui provides the visual styling for the hub terminal client, with
// light and dark palettes chosen from the stored theme preference.
package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"engineerhub/internal/prefs"
)

// Color palette
var (
	// Light Mode Colors
	LightForeground = lipgloss.Color("#101F38")
	LightPrimary    = lipgloss.Color("#1F4E8C")
	LightAccent     = lipgloss.Color("#2E7D32")
	LightMuted      = lipgloss.Color("#6B7280")
	LightBorder     = lipgloss.Color("#D1D5DB")
	LightCard       = lipgloss.Color("#F3F4F6")

	// Dark Mode Colors
	DarkForeground = lipgloss.Color("#F2F2F2")
	DarkPrimary    = lipgloss.Color("#8AB4F8")
	DarkAccent     = lipgloss.Color("#8BC34A")
	DarkMuted      = lipgloss.Color("#9CA3AF")
	DarkBorder     = lipgloss.Color("#374151")
	DarkCard       = lipgloss.Color("#1A2536")

	// Semantic Colors (same in both modes)
	Destructive = lipgloss.Color("#E53935")
	Warning     = lipgloss.Color("#FFC107")
)

// Theme holds the current color scheme
type Theme struct {
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	Card       lipgloss.Color
	IsDark     bool
}

// LightTheme returns the light mode theme
func LightTheme() Theme {
	return Theme{
		Foreground: LightForeground,
		Primary:    LightPrimary,
		Accent:     LightAccent,
		Muted:      LightMuted,
		Border:     LightBorder,
		Card:       LightCard,
	}
}

// DarkTheme returns the dark mode theme
func DarkTheme() Theme {
	return Theme{
		Foreground: DarkForeground,
		Primary:    DarkPrimary,
		Accent:     DarkAccent,
		Muted:      DarkMuted,
		Border:     DarkBorder,
		Card:       DarkCard,
		IsDark:     true,
	}
}

// hasDarkBackground is swapped in tests; querying the terminal needs a tty.
var hasDarkBackground = lipgloss.HasDarkBackground

// ThemeFor resolves a stored preference. System follows the terminal.
func ThemeFor(t prefs.Theme) Theme {
	switch t {
	case prefs.ThemeLight:
		return LightTheme()
	case prefs.ThemeDark:
		return DarkTheme()
	default:
		if hasDarkBackground() {
			return DarkTheme()
		}
		return LightTheme()
	}
}

// Styles holds all the styled components
type Styles struct {
	Theme Theme

	// Layout
	Header lipgloss.Style
	Footer lipgloss.Style

	// Text
	Title lipgloss.Style
	Body  lipgloss.Style
	Muted lipgloss.Style
	Tag   lipgloss.Style

	// Chat
	OwnSender   lipgloss.Style
	OtherSender lipgloss.Style
	Pending     lipgloss.Style
	Prompt      lipgloss.Style

	// Status
	Error   lipgloss.Style
	Warning lipgloss.Style
	Badge   lipgloss.Style
	Divider lipgloss.Style
}

// NewStyles creates a new Styles instance with the given theme
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		Header: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Padding(0, 1).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(theme.Border),

		Footer: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Padding(0, 1),

		Title: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true),

		Body: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Tag: lipgloss.NewStyle().
			Foreground(theme.Accent),

		OwnSender: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		OtherSender: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true),

		Pending: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Italic(true),

		Prompt: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(Destructive).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(Warning),

		Badge: lipgloss.NewStyle().
			Background(theme.Card).
			Foreground(theme.Accent).
			Padding(0, 1),

		Divider: lipgloss.NewStyle().
			Foreground(theme.Border),
	}
}

// RenderDivider returns a horizontal divider.
func (s Styles) RenderDivider(width int) string {
	if width < 1 {
		width = 1
	}
	return s.Divider.Render(strings.Repeat("─", width))
}

// Markdown returns a glamour renderer matching the theme.
func (s Styles) Markdown(width int) (*glamour.TermRenderer, error) {
	style := "light"
	if s.Theme.IsDark {
		style = "dark"
	}
	if width < 20 {
		width = 20
	}
	return glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
}
