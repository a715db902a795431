package views

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/stmbot/internal/dialogue"
	"github.com/tgienger/stmbot/internal/ui/styles"
)

// Button is an inline keyboard button holding an encoded action token
type Button struct {
	Label string
	Token string
}

// Message is one chat message
type Message struct {
	Ref      dialogue.MessageRef
	FromUser bool
	Text     string
	Rows     [][]Button
}

func (m Message) buttons() []Button {
	var out []Button
	for _, row := range m.Rows {
		out = append(out, row...)
	}
	return out
}

// Transcript is the chat history. Only the newest keyboard is focusable,
// older keyboards render dimmed.
type Transcript struct {
	messages []Message
	cursor   int
	styles   *styles.Styles
}

func NewTranscript(s *styles.Styles) *Transcript {
	return &Transcript{styles: s}
}

// Messages returns a copy of the history
func (t *Transcript) Messages() []Message {
	return append([]Message(nil), t.messages...)
}

func (t *Transcript) Append(m Message) {
	t.messages = append(t.messages, m)
	t.cursor = 0
}

// Replace swaps the content of the message with ref, keeping its position.
// It reports false when ref is gone.
func (t *Transcript) Replace(ref dialogue.MessageRef, m Message) bool {
	for i := range t.messages {
		if t.messages[i].Ref == ref {
			m.Ref = ref
			t.messages[i] = m
			t.cursor = 0
			return true
		}
	}
	return false
}

// Remove deletes every message whose ref is listed
func (t *Transcript) Remove(refs ...dialogue.MessageRef) {
	if len(refs) == 0 {
		return
	}
	drop := make(map[dialogue.MessageRef]bool, len(refs))
	for _, ref := range refs {
		drop[ref] = true
	}
	kept := t.messages[:0]
	for _, m := range t.messages {
		if !drop[m.Ref] {
			kept = append(kept, m)
		}
	}
	t.messages = kept
	t.clampCursor()
}

// active is the index of the newest bot message with buttons, or -1
func (t *Transcript) active() int {
	for i := len(t.messages) - 1; i >= 0; i-- {
		m := t.messages[i]
		if !m.FromUser && len(m.Rows) > 0 {
			return i
		}
	}
	return -1
}

// Move shifts the button cursor, wrapping around
func (t *Transcript) Move(delta int) {
	i := t.active()
	if i < 0 {
		return
	}
	n := len(t.messages[i].buttons())
	t.cursor = ((t.cursor+delta)%n + n) % n
}

func (t *Transcript) clampCursor() {
	i := t.active()
	if i < 0 {
		t.cursor = 0
		return
	}
	if n := len(t.messages[i].buttons()); t.cursor >= n {
		t.cursor = n - 1
	}
}

// Selected returns the focused button and the message it belongs to
func (t *Transcript) Selected() (Message, Button, bool) {
	i := t.active()
	if i < 0 {
		return Message{}, Button{}, false
	}
	buttons := t.messages[i].buttons()
	return t.messages[i], buttons[t.cursor], true
}

// Render draws the history at width
func (t *Transcript) Render(width int) string {
	s := t.styles
	active := t.active()
	width = max(width, 20)

	blocks := make([]string, 0, len(t.messages))
	for i, m := range t.messages {
		if m.FromUser {
			blocks = append(blocks, s.UserMessage.Width(width).Align(lipgloss.Right).Render(m.Text))
			continue
		}

		body := m.Text
		if len(m.Rows) > 0 {
			body += "\n" + t.renderRows(m, i == active)
		}
		blocks = append(blocks, s.BotMessage.Width(width-2).Render(body))
	}
	return strings.Join(blocks, "\n")
}

func (t *Transcript) renderRows(m Message, focusable bool) string {
	s := t.styles
	idx := 0
	rows := make([]string, 0, len(m.Rows))
	for _, row := range m.Rows {
		cells := make([]string, 0, len(row))
		for _, b := range row {
			style := s.ButtonStale
			if focusable {
				style = s.Button
				if idx == t.cursor {
					style = s.ButtonFocused
				}
			}
			cells = append(cells, style.Render(b.Label))
			idx++
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
