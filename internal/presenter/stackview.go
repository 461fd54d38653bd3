package presenter

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

type regionChangedMsg struct{}

// StackView is a bubbletea model that renders a StackRegion live.
// x closes the oldest toast; q quits.
type StackView struct {
	region  *StackRegion
	changes chan struct{}
	width   int

	// Header is printed above the stack
	Header string
	// Status, when set, is rendered below the header on every frame
	Status func() string
}

// NewStackView creates a view of region and subscribes to its changes
func NewStackView(region *StackRegion, header string) *StackView {
	v := &StackView{
		region:  region,
		changes: make(chan struct{}, 1),
		Header:  header,
	}
	region.OnChange(func() {
		select {
		case v.changes <- struct{}{}:
		default:
		}
	})
	return v
}

func (v *StackView) waitForChange() tea.Msg {
	<-v.changes
	return regionChangedMsg{}
}

// Init implements tea.Model
func (v *StackView) Init() tea.Cmd {
	return v.waitForChange
}

// Update implements tea.Model
func (v *StackView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case regionChangedMsg:
		return v, v.waitForChange
	case tea.WindowSizeMsg:
		v.width = msg.Width
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return v, tea.Quit
		case "x":
			v.closeOldest()
		}
	}
	return v, nil
}

func (v *StackView) closeOldest() {
	for _, el := range v.region.Elements() {
		if t, ok := el.(*Toast); ok {
			t.Close()
			return
		}
	}
}

// View implements tea.Model
func (v *StackView) View() string {
	var b strings.Builder
	if v.Header != "" {
		b.WriteString(v.Header)
		b.WriteString("\n")
	}
	if v.Status != nil {
		b.WriteString(styleMuted().Render(v.Status()))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(v.region.View(v.width))
	b.WriteString("\n")
	b.WriteString(styleMuted().Render("x: close oldest   q: quit"))
	return b.String()
}
