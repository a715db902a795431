package gateway

import (
	"fmt"

	"github.com/tgienger/stmbot/internal/action"
	"github.com/tgienger/stmbot/internal/bot"
	"github.com/tgienger/stmbot/internal/dialogue"
	"github.com/tgienger/stmbot/internal/models"
)

// Inbound message types
const (
	TypeStart       = "start"
	TypeText        = "text"
	TypeInteraction = "interaction"
)

// Outbound message types
const (
	TypeResponse = "response"
	TypeExpired  = "expired"
	TypeError    = "error"
)

// Inbound is a client frame. Ref is the client's own message for text and
// the bot message the button belongs to for interactions.
type Inbound struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Token string `json:"token,omitempty"`
	Ref   string `json:"ref,omitempty"`
}

type Button struct {
	Label string `json:"label"`
	Token string `json:"token"`
}

type View struct {
	Text string     `json:"text"`
	Rows [][]Button `json:"rows,omitempty"`
}

// Outbound is a server frame. With Edit set, View replaces the message Ref;
// otherwise View is a new message identified by Ref.
type Outbound struct {
	Type    string   `json:"type"`
	Ref     string   `json:"ref,omitempty"`
	Edit    bool     `json:"edit,omitempty"`
	View    *View    `json:"view,omitempty"`
	Notice  string   `json:"notice,omitempty"`
	Cleanup []string `json:"cleanup,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func (in Inbound) event(owner models.Owner) (bot.Event, error) {
	ref := dialogue.MessageRef(in.Ref)
	switch in.Type {
	case TypeStart:
		return bot.Start{Owner: owner, Ref: ref}, nil
	case TypeText:
		return bot.TextInput{Owner: owner, Text: in.Text, Ref: ref}, nil
	case TypeInteraction:
		return bot.Interaction{Owner: owner, Token: in.Token, Ref: ref}, nil
	}
	return nil, fmt.Errorf("unknown message type %q", in.Type)
}

// outbound renders resp. newRef names a view sent as a new message.
func outbound(resp bot.Response, origin dialogue.MessageRef, newRef func() string) (Outbound, error) {
	out := Outbound{Type: TypeResponse, Notice: resp.Notice}
	for _, ref := range resp.Cleanup {
		out.Cleanup = append(out.Cleanup, string(ref))
	}
	if resp.View == nil {
		return out, nil
	}

	v := &View{Text: resp.View.Text}
	for _, row := range resp.View.Rows {
		cells := make([]Button, 0, len(row))
		for _, b := range row {
			token, err := action.Encode(b.Action)
			if err != nil {
				return Outbound{}, fmt.Errorf("encode button %q: %w", b.Label, err)
			}
			cells = append(cells, Button{Label: b.Label, Token: token})
		}
		v.Rows = append(v.Rows, cells)
	}
	out.View = v

	if resp.Edit && origin != "" {
		out.Edit = true
		out.Ref = string(origin)
	} else {
		out.Ref = newRef()
	}
	return out, nil
}
