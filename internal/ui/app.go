package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tgienger/stmbot/internal/action"
	"github.com/tgienger/stmbot/internal/bot"
	"github.com/tgienger/stmbot/internal/dialogue"
	"github.com/tgienger/stmbot/internal/models"
	"github.com/tgienger/stmbot/internal/ui/keys"
	"github.com/tgienger/stmbot/internal/ui/styles"
	"github.com/tgienger/stmbot/internal/ui/views"
)

// Dispatcher handles chat events. *bot.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev bot.Event) bot.Response
}

// responseMsg carries a dispatcher result back into Update
type responseMsg struct {
	origin dialogue.MessageRef
	resp   bot.Response
}

// PromptExpired tells the app that the prompt shown in Anchor timed out
type PromptExpired struct {
	Anchor dialogue.MessageRef
}

// chrome is the number of lines around the transcript
const chrome = 7

// App is a terminal chat with the bot for a single owner
type App struct {
	ctx        context.Context
	dispatcher Dispatcher
	owner      models.Owner
	log        *zap.Logger

	transcript *views.Transcript
	viewport   viewport.Model
	input      textinput.Model
	help       help.Model
	keys       keys.KeyMap
	styles     *styles.Styles

	notice string
	width  int
	height int
}

// NewApp creates the chat. A nil logger discards logs.
func NewApp(ctx context.Context, d Dispatcher, owner models.Owner, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	s := styles.NewStyles()

	input := textinput.New()
	input.Placeholder = "Message"
	input.CharLimit = 256
	input.Focus()

	return &App{
		ctx:        ctx,
		dispatcher: d,
		owner:      owner,
		log:        log,
		transcript: views.NewTranscript(s),
		viewport:   viewport.New(styles.MaxWidth, 20),
		input:      input,
		help:       help.New(),
		keys:       keys.DefaultKeyMap(),
		styles:     s,
	}
}

func newRef() dialogue.MessageRef {
	return dialogue.MessageRef(uuid.NewString())
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		a.dispatch(bot.Start{Owner: a.owner}, ""),
	)
}

func (a *App) dispatch(ev bot.Event, origin dialogue.MessageRef) tea.Cmd {
	return func() tea.Msg {
		return responseMsg{origin: origin, resp: a.dispatcher.Dispatch(a.ctx, ev)}
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.viewport.Width = styles.ContentWidth(msg.Width)
		a.viewport.Height = max(msg.Height-chrome, 3)
		a.input.Width = max(styles.ContentWidth(msg.Width)-8, 10)
		a.refresh()
		return a, nil

	case responseMsg:
		a.apply(msg)
		return a, nil

	case PromptExpired:
		a.transcript.Remove(msg.Anchor)
		a.notice = bot.NoticeExpired
		a.refresh()
		return a, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, a.keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, a.keys.Help):
			a.help.ShowAll = !a.help.ShowAll
			return a, nil
		case key.Matches(msg, a.keys.Prev):
			a.transcript.Move(-1)
			a.refresh()
			return a, nil
		case key.Matches(msg, a.keys.Next):
			a.transcript.Move(1)
			a.refresh()
			return a, nil
		case key.Matches(msg, a.keys.Clear):
			a.input.Reset()
			return a, nil
		case key.Matches(msg, a.keys.Scroll):
			var cmd tea.Cmd
			a.viewport, cmd = a.viewport.Update(msg)
			return a, cmd
		case key.Matches(msg, a.keys.Enter):
			if strings.TrimSpace(a.input.Value()) != "" {
				return a, a.sendText()
			}
			return a, a.press()
		}
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// sendText posts the input as a user message
func (a *App) sendText() tea.Cmd {
	ref := newRef()
	text := a.input.Value()
	a.transcript.Append(views.Message{Ref: ref, FromUser: true, Text: text})
	a.input.Reset()
	a.notice = ""
	a.refresh()
	return a.dispatch(bot.TextInput{Owner: a.owner, Text: text, Ref: ref}, ref)
}

// press activates the focused button
func (a *App) press() tea.Cmd {
	m, b, ok := a.transcript.Selected()
	if !ok {
		return nil
	}
	a.notice = ""
	return a.dispatch(bot.Interaction{Owner: a.owner, Token: b.Token, Ref: m.Ref}, m.Ref)
}

func (a *App) apply(msg responseMsg) {
	resp := msg.resp
	a.transcript.Remove(resp.Cleanup...)

	if resp.View != nil {
		if !resp.Edit || !a.transcript.Replace(msg.origin, a.toMessage(msg.origin, *resp.View)) {
			a.transcript.Append(a.toMessage(newRef(), *resp.View))
		}
	}
	a.notice = resp.Notice
	a.refresh()
}

// toMessage encodes the actions of v into button tokens
func (a *App) toMessage(ref dialogue.MessageRef, v bot.View) views.Message {
	m := views.Message{Ref: ref, Text: v.Text}
	for _, row := range v.Rows {
		cells := make([]views.Button, 0, len(row))
		for _, b := range row {
			token, err := action.Encode(b.Action)
			if err != nil {
				a.log.Error("dropping button", zap.String("label", b.Label), zap.Error(err))
				continue
			}
			cells = append(cells, views.Button{Label: b.Label, Token: token})
		}
		if len(cells) > 0 {
			m.Rows = append(m.Rows, cells)
		}
	}
	return m
}

func (a *App) refresh() {
	a.viewport.SetContent(a.transcript.Render(a.viewport.Width))
	a.viewport.GotoBottom()
}

func (a *App) View() string {
	s := a.styles
	width := styles.ContentWidth(a.width)
	if width == 0 {
		width = styles.MaxWidth
	}

	title := s.TitleBar.Render(
		s.Title.Render("stm") + s.TitleMuted.Render(fmt.Sprintf(" · chat %d", a.owner)))

	notice := ""
	if a.notice != "" {
		notice = s.Notice.Render(a.notice)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		title,
		a.viewport.View(),
		notice,
		s.InputFocused.Width(width-2).Render(a.input.View()),
		s.Help.Render(a.help.View(a.keys)),
	)
	return styles.CenterView(content, a.width, a.height)
}
