package presenter

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rmacdonaldsmith/tasknotify-go/pkg/notify"
)

var accentColors = map[string]lipgloss.AdaptiveColor{
	"primary": {Light: "#0d6efd", Dark: "#6ea8fe"},
	"warning": {Light: "#997404", Dark: "#ffda6a"},
	"danger":  {Light: "#b02a37", Dark: "#ea868f"},
}

var (
	colorMuted      = lipgloss.AdaptiveColor{Light: "#6c757d", Dark: "#adb5bd"}
	colorControlBg  = lipgloss.AdaptiveColor{Light: "#eeeeee", Dark: "#161616"}
	colorSelectedBg = lipgloss.AdaptiveColor{Light: "#e9e9e9", Dark: "#262626"}
	colorSelectedFg = lipgloss.AdaptiveColor{Light: "#1f1f1f", Dark: "#f8f8f8"}
)

func accent(c notify.Class) lipgloss.AdaptiveColor {
	if col, ok := accentColors[c.Accent]; ok {
		return col
	}
	return accentColors["primary"]
}

func styleMuted() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(colorMuted)
}

func boxWidth(width int) int {
	if width <= 0 {
		return 48
	}
	return min(width, 60)
}

// renderToast draws one notification as a bordered box tinted by its severity
func renderToast(width int, n notify.Notification, fading bool) string {
	c := notify.ClassFor(n.Severity)
	col := accent(c)
	w := boxWidth(width)

	title := lipgloss.NewStyle().Bold(true).Foreground(col).Render(n.Title)
	lines := []string{title}
	if n.Text != "" {
		lines = append(lines, n.Text)
	}
	if n.HasDetails() {
		details := styleMuted().
			Width(w - 4).
			Render(strings.TrimSpace(n.Details))
		lines = append(lines, "", details)
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(col).
		Padding(0, 1).
		Width(w - 2)
	if fading {
		box = box.Faint(true).BorderForeground(colorMuted)
	}
	return box.Render(strings.Join(lines, "\n"))
}

// renderConfirmModal draws a blocking dialog with its two buttons
func renderConfirmModal(width int, spec DialogSpec, confirmFocused bool) string {
	w := boxWidth(width)

	btnBase := lipgloss.NewStyle().
		Padding(0, 1).
		Background(colorControlBg)
	btnActive := btnBase.
		Foreground(colorSelectedFg).
		Background(colorSelectedBg).
		Bold(true)

	confirm := btnBase.Render(spec.Confirm)
	cancel := btnBase.Render(spec.Cancel)
	if confirmFocused {
		confirm = btnActive.Render(spec.Confirm)
	} else {
		cancel = btnActive.Render(spec.Cancel)
	}
	controls := lipgloss.JoinHorizontal(lipgloss.Top, confirm, " ", cancel)

	help := styleMuted().Render("y/n: answer   tab: focus   enter: select")
	content := strings.Join([]string{
		lipgloss.NewStyle().Bold(true).Render(spec.Title),
		"",
		lipgloss.NewStyle().Width(w - 4).Render(spec.Body),
		"",
		controls,
		"",
		help,
	}, "\n")

	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		Padding(0, 1).
		Width(w - 2).
		Render(content)
}
