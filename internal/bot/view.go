package bot

import (
	"github.com/tgienger/stmbot/internal/action"
	"github.com/tgienger/stmbot/internal/dialogue"
)

// Button is one menu entry
type Button struct {
	Label  string
	Action action.Action
}

// View is a platform independent screen: text plus menu rows
type View struct {
	Text string
	Rows [][]Button
}

// Buttons returns the menu entries in display order
func (v View) Buttons() []Button {
	var out []Button
	for _, row := range v.Rows {
		out = append(out, row...)
	}
	return out
}

// NoticeExpired accompanies the removal of a prompt that timed out
const NoticeExpired = "The prompt expired"

// Response is what the transport should do after an event
type Response struct {
	// View is rendered when non-nil
	View *View
	// Edit replaces the message the interaction came from instead of sending a new one
	Edit bool
	// Notice is a short acknowledgement shown next to the pressed button
	Notice string
	// Cleanup lists messages the transport should remove
	Cleanup []dialogue.MessageRef
}

func (r Response) withCleanup(refs ...dialogue.MessageRef) Response {
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		dup := false
		for _, have := range r.Cleanup {
			if have == ref {
				dup = true
				break
			}
		}
		if !dup {
			r.Cleanup = append(r.Cleanup, ref)
		}
	}
	return r
}

func editTo(v View, notice string) Response {
	return Response{View: &v, Edit: true, Notice: notice}
}

func sendNew(v View) Response {
	return Response{View: &v}
}
