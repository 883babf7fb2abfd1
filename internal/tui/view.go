package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/handiism/soundcloud-offline/internal/download"
	"github.com/handiism/soundcloud-offline/internal/model"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF5500")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(1, 2)

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F8B500"))
)

const visibleTracks = 12

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("♫ SoundCloud Offline"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Keep your liked tracks for offline listening"))
	b.WriteString("\n\n")

	switch m.state {
	case StateLoading:
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(subtitleStyle.Render("Checking library..."))
		b.WriteString("\n")
	case StateLogin:
		b.WriteString(m.viewLogin())
	case StateBrowse:
		b.WriteString(m.viewBrowse())
	case StateError:
		b.WriteString(m.viewError())
	}

	b.WriteString("\n")
	b.WriteString(m.renderLogs())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.getHelpText()))

	return b.String()
}

func (m Model) viewLogin() string {
	var b strings.Builder

	b.WriteString(subtitleStyle.Render("Open this URL, authorize the app and paste the code:"))
	b.WriteString("\n\n")
	if m.authURL != "" {
		b.WriteString(infoStyle.Render(m.authURL))
		b.WriteString("\n\n")
	}
	b.WriteString(m.textInput.View())
	b.WriteString("\n")
	if m.loading {
		b.WriteString("\n")
		b.WriteString(m.spinner.View())
		b.WriteString(" Logging in...\n")
	}

	return b.String()
}

func (m Model) viewBrowse() string {
	var b strings.Builder

	items := m.page.Items
	b.WriteString(subtitleStyle.Render(fmt.Sprintf("Liked tracks (%d loaded", len(items))))
	if m.page.HasNextPage() {
		b.WriteString(subtitleStyle.Render(", more available)"))
	} else {
		b.WriteString(subtitleStyle.Render(")"))
	}
	b.WriteString("\n\n")

	if len(items) == 0 {
		b.WriteString(dimStyle.Render("  No liked tracks"))
		b.WriteString("\n")
		return b.String()
	}

	selected := m.selectedIndex()
	start, end := window(selected, len(items), visibleTracks)
	for i := start; i < end; i++ {
		line := fmt.Sprintf("%s %s", m.badge(items[i]), trackLine(items[i]))
		if i == selected {
			b.WriteString(selectedStyle.Render("› " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	if m.loading {
		b.WriteString(m.spinner.View())
		b.WriteString(" Loading more...\n")
	}

	if track := m.current(); track != nil {
		if p, ok := m.app.Downloads.Progress(track.ID); ok {
			b.WriteString("\n")
			b.WriteString(m.progress.ViewAs(p))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(infoStyle.Render(fmt.Sprintf("Offline: %d track(s) | Active downloads: %d",
		len(m.app.Downloads.Downloaded()), len(m.app.Downloads.Jobs()))))
	b.WriteString("\n")

	return b.String()
}

func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString(errorStyle.Render("✗ Error occurred:"))
	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(boxStyle.Render(m.err.Error()))
	}
	b.WriteString("\n")

	return b.String()
}

// badge shows the download state of a track.
func (m Model) badge(track *model.Track) string {
	state, ok := m.app.Downloads.State(track.ID)
	if !ok {
		return dimStyle.Render("[ ]")
	}
	switch state {
	case download.StateCompleted:
		return successStyle.Render("[✓]")
	case download.StatePending, download.StateRunning:
		return infoStyle.Render("[↓]")
	case download.StateFailed:
		return errorStyle.Render("[✗]")
	default:
		return dimStyle.Render("[ ]")
	}
}

func (m Model) renderLogs() string {
	var b strings.Builder

	for _, log := range m.logs {
		var style lipgloss.Style
		prefix := "•"
		switch log.Level {
		case download.LevelError:
			style = errorStyle
			prefix = "✗"
		case download.LevelWarning:
			style = warningStyle
			prefix = "!"
		case download.LevelSuccess:
			style = successStyle
			prefix = "✓"
		case download.LevelInfo:
			style = infoStyle
			prefix = "›"
		default:
			style = dimStyle
		}
		b.WriteString(style.Render(prefix + " " + log.Message))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) getHelpText() string {
	switch m.state {
	case StateLogin:
		return "enter: log in • esc: quit"
	case StateBrowse:
		return "↑/↓: select • d: download • a: download all • c: cancel • x: remove • n: more • v: verbose • L: log out • q: quit"
	case StateError:
		return "q: quit"
	}
	return "ctrl+c: quit"
}

func trackLine(t *model.Track) string {
	d := int(t.Duration)
	return fmt.Sprintf("%s - %s (%d:%02d)", t.Artist, t.Title, d/60, d%60)
}

// window returns the [start, end) range of n items to show so that
// selected stays visible.
func window(selected, n, size int) (int, int) {
	if n <= size {
		return 0, n
	}
	start := max(selected-size/2, 0)
	end := start + size
	if end > n {
		end = n
		start = n - size
	}
	return start, end
}
