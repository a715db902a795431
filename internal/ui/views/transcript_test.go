package views

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgienger/stmbot/internal/dialogue"
	"github.com/tgienger/stmbot/internal/ui/styles"
)

func menu(ref string, labels ...string) Message {
	m := Message{Ref: dialogueRef(ref), Text: "menu " + ref}
	for _, l := range labels {
		m.Rows = append(m.Rows, []Button{{Label: l, Token: "1|h"}})
	}
	return m
}

func TestSelectedFollowsNewestKeyboard(t *testing.T) {
	tr := NewTranscript(styles.NewStyles())
	_, _, ok := tr.Selected()
	assert.False(t, ok)

	tr.Append(menu("a", "one", "two"))
	tr.Append(Message{Ref: "u1", FromUser: true, Text: "hi"})
	m, b, ok := tr.Selected()
	require.True(t, ok)
	assert.Equal(t, dialogueRef("a"), m.Ref)
	assert.Equal(t, "one", b.Label)

	tr.Append(menu("b", "x", "y", "z"))
	tr.Move(-1)
	m, b, _ = tr.Selected()
	assert.Equal(t, dialogueRef("b"), m.Ref)
	assert.Equal(t, "z", b.Label)

	tr.Move(2)
	_, b, _ = tr.Selected()
	assert.Equal(t, "y", b.Label)
}

func TestRemoveClampsCursor(t *testing.T) {
	tr := NewTranscript(styles.NewStyles())
	tr.Append(menu("a", "one"))
	tr.Append(menu("b", "x", "y", "z"))
	tr.Move(2)

	tr.Remove("b", "missing")
	m, b, ok := tr.Selected()
	require.True(t, ok)
	assert.Equal(t, dialogueRef("a"), m.Ref)
	assert.Equal(t, "one", b.Label)

	tr.Remove("a")
	assert.Empty(t, tr.Messages())
	_, _, ok = tr.Selected()
	assert.False(t, ok)
}

func TestReplaceKeepsPosition(t *testing.T) {
	tr := NewTranscript(styles.NewStyles())
	tr.Append(menu("a", "one"))
	tr.Append(Message{Ref: "u", FromUser: true, Text: "typed"})

	assert.True(t, tr.Replace("a", Message{Ref: "ignored", Text: "edited"}))
	msgs := tr.Messages()
	assert.Equal(t, dialogueRef("a"), msgs[0].Ref)
	assert.Equal(t, "edited", msgs[0].Text)

	assert.False(t, tr.Replace("gone", Message{Text: "x"}))
}

func TestRenderShowsTextAndLabels(t *testing.T) {
	tr := NewTranscript(styles.NewStyles())
	tr.Append(menu("a", "🟣 Write report"))
	tr.Append(Message{Ref: "u", FromUser: true, Text: "Work"})

	out := tr.Render(60)
	assert.Contains(t, out, "menu a")
	assert.Contains(t, out, "🟣 Write report")
	assert.Contains(t, out, "Work")
}

func dialogueRef(s string) dialogue.MessageRef { return dialogue.MessageRef(s) }
