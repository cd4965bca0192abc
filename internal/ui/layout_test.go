package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"github.com/nhle/travel-crm/internal/theme"
)

func TestFrameCompose(t *testing.T) {
	f := NewFrame(theme.New("mono"), 40, 10)
	assert.Equal(t, 8, f.BodyHeight())

	title := f.TitleBar("Travel CRM", "Asha (agent)")
	assert.Equal(t, 40, lipgloss.Width(title))

	view := f.Compose(title, "body", f.HintBar("q quit", "live"))
	lines := strings.Split(view, "\n")
	assert.Len(t, lines, 10)
	assert.Contains(t, lines[0], "Travel CRM")
	assert.Contains(t, lines[9], "live")
}

func TestBodyHeightNeverZero(t *testing.T) {
	assert.Equal(t, 1, NewFrame(theme.New("mono"), 10, 1).BodyHeight())
}
