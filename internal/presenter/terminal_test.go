package presenter

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func testModal(opts DialogOptions) *Modal {
	return &Modal{
		target: "delete-task",
		spec:   DialogSpec{Title: "Delete task?", Body: "Sure?", Confirm: "Yes", Cancel: "No"},
		opts:   opts,
	}
}

func press(m tea.Model, key tea.KeyMsg) (dialogModel, tea.Cmd) {
	next, cmd := m.Update(key)
	return next.(dialogModel), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestDialogModel_Keys(t *testing.T) {
	t.Run("y_answers_yes", func(t *testing.T) {
		m, cmd := press(newDialogModel(testModal(BlockingOptions())), runes("y"))
		assert.True(t, m.answered)
		assert.True(t, m.answer)
		assert.NotNil(t, cmd)
	})

	t.Run("n_answers_no", func(t *testing.T) {
		m, _ := press(newDialogModel(testModal(BlockingOptions())), runes("n"))
		assert.True(t, m.answered)
		assert.False(t, m.answer)
	})

	t.Run("tab_then_enter_selects_cancel", func(t *testing.T) {
		m, _ := press(newDialogModel(testModal(BlockingOptions())), tea.KeyMsg{Type: tea.KeyTab})
		assert.False(t, m.confirmFocused)
		m, _ = press(m, tea.KeyMsg{Type: tea.KeyEnter})
		assert.True(t, m.answered)
		assert.False(t, m.answer)
	})

	t.Run("escape_ignored_when_blocking", func(t *testing.T) {
		m, cmd := press(newDialogModel(testModal(BlockingOptions())), tea.KeyMsg{Type: tea.KeyEsc})
		assert.False(t, m.answered)
		assert.Nil(t, cmd)
		assert.Contains(t, m.View(), "Delete task?")
	})

	t.Run("escape_cancels_when_keyboard_allowed", func(t *testing.T) {
		m, _ := press(newDialogModel(testModal(DialogOptions{Keyboard: true})), tea.KeyMsg{Type: tea.KeyEsc})
		assert.True(t, m.answered)
		assert.False(t, m.answer)
	})

	t.Run("ctrl_c_interrupts", func(t *testing.T) {
		m, _ := press(newDialogModel(testModal(BlockingOptions())), tea.KeyMsg{Type: tea.KeyCtrlC})
		assert.True(t, m.interrupted)
		assert.False(t, m.answered)
		assert.Empty(t, m.View())
	})
}
