package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tgienger/stmbot/internal/dialogue"
	"github.com/tgienger/stmbot/internal/models"
)

// Event is an inbound interaction from a transport
type Event interface {
	EventOwner() models.Owner
}

// Start is the first-contact command (/start)
type Start struct {
	Owner models.Owner
	Ref   dialogue.MessageRef
}

// TextInput is a typed message
type TextInput struct {
	Owner models.Owner
	Text  string
	Ref   dialogue.MessageRef
}

// Interaction is a pressed button carrying an action token
type Interaction struct {
	Owner models.Owner
	Token string
	// Ref is the message the button belongs to
	Ref dialogue.MessageRef
}

func (e Start) EventOwner() models.Owner       { return e.Owner }
func (e TextInput) EventOwner() models.Owner   { return e.Owner }
func (e Interaction) EventOwner() models.Owner { return e.Owner }

// Dispatcher feeds events to a Handler, one at a time per owner
type Dispatcher struct {
	handler  *Handler
	dialogue *dialogue.Engine
	log      *zap.Logger

	mu    sync.Mutex
	locks map[models.Owner]*ownerLock
}

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

// NewDispatcher creates a dispatcher for handler
func NewDispatcher(handler *Handler) *Dispatcher {
	return &Dispatcher{
		handler:  handler,
		dialogue: handler.dialogue,
		log:      handler.log,
		locks:    make(map[models.Owner]*ownerLock),
	}
}

// lock serializes work for one owner and returns the matching unlock
func (d *Dispatcher) lock(owner models.Owner) func() {
	d.mu.Lock()
	l, ok := d.locks[owner]
	if !ok {
		l = &ownerLock{}
		d.locks[owner] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, owner)
		}
		d.mu.Unlock()
	}
}

// Dispatch handles ev and never panics
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (resp Response) {
	owner := ev.EventOwner()
	unlock := d.lock(owner)
	defer unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("handler panic",
				zap.Int64("owner", int64(owner)),
				zap.String("event", fmt.Sprintf("%T", ev)),
				zap.Any("panic", r),
				zap.Stack("stack"))
			resp = Response{View: ptr(failureView())}
		}
		d.log.Debug("event handled",
			zap.Int64("owner", int64(owner)),
			zap.String("event", fmt.Sprintf("%T", ev)),
			zap.Duration("took", time.Since(start)))
	}()

	switch ev := ev.(type) {
	case Start:
		return d.handler.Start(ctx, ev.Owner, ev.Ref)
	case TextInput:
		return d.handler.Text(ctx, ev.Owner, ev.Text, ev.Ref)
	case Interaction:
		return d.handler.Interaction(ctx, ev.Owner, ev.Token, ev.Ref)
	}

	d.log.Warn("unknown event type", zap.String("event", fmt.Sprintf("%T", ev)))
	return Response{}
}

// ExpiredPrompt is a prompt dropped by the sweeper
type ExpiredPrompt struct {
	Owner models.Owner
	Slot  dialogue.Slot
}

// SweepExpired drops timed-out prompts every interval until ctx is done.
// onExpired receives each dropped prompt so its anchor can be cleaned up.
func (d *Dispatcher) SweepExpired(ctx context.Context, interval time.Duration, onExpired func(ExpiredPrompt)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for owner, slot := range d.dialogue.Sweep() {
				d.log.Info("prompt expired",
					zap.Int64("owner", int64(owner)),
					zap.Stringer("state", slot.State))
				if onExpired != nil {
					onExpired(ExpiredPrompt{Owner: owner, Slot: slot})
				}
			}
		}
	}
}
