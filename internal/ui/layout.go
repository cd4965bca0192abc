// Package ui holds the screen frame shared by the board views.
package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/travel-crm/internal/theme"
)

// Frame splits the terminal into a title bar, a body and a hint bar.
type Frame struct {
	Width  int
	Height int
	Theme  theme.Theme
}

// NewFrame creates a Frame for a terminal of the given size.
func NewFrame(th theme.Theme, width, height int) Frame {
	return Frame{Width: width, Height: height, Theme: th}
}

// BodyHeight is the number of rows left between the two bars.
func (f Frame) BodyHeight() int {
	return max(f.Height-2, 1)
}

// TitleBar renders left and right aligned text across the full width.
func (f Frame) TitleBar(left, right string) string {
	return f.bar(f.Theme.Header, left, right)
}

// HintBar renders key hints on the left and the sync state on the right.
func (f Frame) HintBar(hints, state string) string {
	return f.bar(f.Theme.StatusBar, hints, state)
}

// Compose stacks the title bar, body and hint bar. The body is padded so
// the hint bar stays on the last line.
func (f Frame) Compose(title, body, hints string) string {
	body = lipgloss.NewStyle().Height(f.BodyHeight()).Render(body)
	return lipgloss.JoinVertical(lipgloss.Left, title, body, hints)
}

func (f Frame) bar(style lipgloss.Style, left, right string) string {
	l := style.Render(left)
	r := ""
	if right != "" {
		r = style.Render(right)
	}
	gap := max(f.Width-lipgloss.Width(l)-lipgloss.Width(r), 0)
	fill := style.Width(gap).Padding(0).Render("")
	return lipgloss.JoinHorizontal(lipgloss.Top, l, fill, r)
}
