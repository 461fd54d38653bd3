package presenter

import (
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
)

// ErrInterrupted is returned when the user quits a dialog without answering
var ErrInterrupted = errors.New("dialog interrupted")

type dialogModel struct {
	spec  DialogSpec
	opts  DialogOptions
	width int

	confirmFocused bool
	answered       bool
	answer         bool
	interrupted    bool
}

func newDialogModel(m *Modal) dialogModel {
	return dialogModel{
		spec:           m.Spec(),
		opts:           m.Options(),
		confirmFocused: true,
	}
}

func (m dialogModel) Init() tea.Cmd {
	return nil
}

func (m dialogModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "y", "Y":
			return m.decide(true)
		case "n", "N":
			return m.decide(false)
		case "tab", "shift+tab", "left", "right", "h", "l":
			m.confirmFocused = !m.confirmFocused
			return m, nil
		case "enter", " ":
			return m.decide(m.confirmFocused)
		case "esc":
			// keyboard dismissal is only honoured for non-blocking dialogs
			if m.opts.Keyboard {
				return m.decide(false)
			}
			return m, nil
		case "ctrl+c":
			m.interrupted = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m dialogModel) decide(answer bool) (tea.Model, tea.Cmd) {
	m.answered = true
	m.answer = answer
	return m, tea.Quit
}

func (m dialogModel) View() string {
	if m.answered || m.interrupted {
		return ""
	}
	return renderConfirmModal(m.width, m.spec, m.confirmFocused) + "\n"
}

// TerminalDialog presents modals as an interactive terminal prompt
type TerminalDialog struct {
	In     io.Reader
	Out    io.Writer
	Logger zerolog.Logger

	// Interrupted is called when the user quits without answering
	Interrupted func()
}

// Ask runs the prompt for m and returns the answer
func (d *TerminalDialog) Ask(m *Modal) (bool, error) {
	var opts []tea.ProgramOption
	if d.In != nil {
		opts = append(opts, tea.WithInput(d.In))
	}
	if d.Out != nil {
		opts = append(opts, tea.WithOutput(d.Out))
	}

	final, err := tea.NewProgram(newDialogModel(m), opts...).Run()
	if err != nil {
		return false, err
	}
	dm, ok := final.(dialogModel)
	if !ok || !dm.answered {
		return false, ErrInterrupted
	}
	return dm.answer, nil
}

// Present implements Surface
func (d *TerminalDialog) Present(m *Modal, answer func(ConfirmResult)) {
	ok, err := d.Ask(m)
	if err != nil {
		d.Logger.Warn().Err(err).Str("target", m.Target()).Msg("dialog closed without an answer")
		if d.Interrupted != nil {
			d.Interrupted()
		}
		return
	}
	answer(ConfirmResult{Answer: ok})
}
