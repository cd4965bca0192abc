package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/travel-crm/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorTeal    = lipgloss.AdaptiveColor{Dark: "#38D9A9", Light: "#2C7A7B"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange  = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// Theme names accepted by the display.theme setting.
const (
	Default = "default"
	Mono    = "mono"
)

// Names lists the available themes.
var Names = []string{Default, Mono}

// Valid reports whether name is a known theme.
func Valid(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

// Theme is a resolved set of styles.
type Theme struct {
	Name string
	mono bool

	Header    lipgloss.Style
	StatusBar lipgloss.Style
	Help      lipgloss.Style
	Border    lipgloss.Style
	Banner    lipgloss.Style
	Error     lipgloss.Style
}

// New resolves a theme by name. Unknown names fall back to Default.
func New(name string) Theme {
	if !Valid(name) {
		name = Default
	}
	t := Theme{Name: name, mono: name == Mono}

	t.Header = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	t.StatusBar = lipgloss.NewStyle().Padding(0, 1)
	t.Help = lipgloss.NewStyle().Italic(true)
	t.Border = lipgloss.NewStyle().Border(lipgloss.RoundedBorder())
	t.Banner = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	t.Error = lipgloss.NewStyle().Bold(true)

	if t.mono {
		t.Header = t.Header.Reverse(true)
		t.Banner = t.Banner.Underline(true)
		return t
	}

	t.Header = t.Header.Foreground(ColorWhite).Background(ColorBlue)
	t.StatusBar = t.StatusBar.Foreground(ColorWhite).Background(ColorSubtle)
	t.Help = t.Help.Foreground(ColorGray)
	t.Border = t.Border.BorderForeground(ColorBorder)
	t.Banner = t.Banner.Foreground(ColorWhite).Background(ColorMagenta)
	t.Error = t.Error.Foreground(ColorRed)
	return t
}

// Status returns a color-coded style for a pipeline status.
func (t Theme) Status(status model.LeadStatus) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	if t.mono {
		return base
	}

	switch status {
	case model.StatusNew:
		return base.Foreground(ColorBlue)
	case model.StatusContacted:
		return base.Foreground(ColorTeal)
	case model.StatusProposalSent, model.StatusDiscussion:
		return base.Foreground(ColorMagenta)
	case model.StatusFollowUp:
		return base.Foreground(ColorYellow)
	case model.StatusWon:
		return base.Foreground(ColorGreen)
	case model.StatusLost:
		return base.Foreground(ColorRed)
	default:
		return base.Foreground(ColorGray)
	}
}

// Temperature returns a color-coded style for a lead temperature.
func (t Theme) Temperature(temp model.Temperature) lipgloss.Style {
	base := lipgloss.NewStyle()
	if t.mono {
		return base
	}

	switch temp {
	case model.TemperatureHot:
		return base.Foreground(ColorOrange)
	case model.TemperatureWarm:
		return base.Foreground(ColorYellow)
	case model.TemperatureCold:
		return base.Foreground(ColorBlue)
	default:
		return base.Foreground(ColorGray)
	}
}
