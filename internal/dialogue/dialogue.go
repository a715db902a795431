// Package dialogue keeps the one pending prompt each owner may have.
//
// An owner is Idle until an action asks for free text (a name, a comment).
// The engine then stores what the answer is for and where the prompt was
// shown. The next text input takes the slot and completes it; a cancel
// clears it. Every operation on one owner's slot is atomic, so a slot can be
// taken at most once.
package dialogue

import (
	"sync"
	"time"

	"github.com/tgienger/stmbot/internal/models"
)

// State is what the owner is expected to type next
type State int

const (
	Idle State = iota
	AwaitingTaskName
	AwaitingProjectName
	AwaitingTaskRename
	AwaitingProjectRename
	AwaitingComment
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingTaskName:
		return "awaiting_task_name"
	case AwaitingProjectName:
		return "awaiting_project_name"
	case AwaitingTaskRename:
		return "awaiting_task_rename"
	case AwaitingProjectRename:
		return "awaiting_project_rename"
	case AwaitingComment:
		return "awaiting_comment"
	}
	return "unknown"
}

// MessageRef identifies a message on the transport
type MessageRef string

// Context is what a completion handler needs to finish the prompt
type Context struct {
	ProjectID int64
	TaskID    int64
	Position  models.Position
	// Anchor is the prompt message, removed once the prompt is answered or cancelled
	Anchor MessageRef
}

// Slot is a pending prompt
type Slot struct {
	State   State
	Context Context
	Entered time.Time
}

// Engine holds at most one slot per owner
type Engine struct {
	mu    sync.Mutex
	slots map[models.Owner]Slot
	ttl   time.Duration
	now   func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithTTL makes slots older than ttl behave as Idle. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.ttl = ttl }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine with every owner Idle
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		slots: make(map[models.Owner]Slot),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) expired(s Slot) bool {
	return e.ttl > 0 && e.now().Sub(s.Entered) >= e.ttl
}

// Enter stores a pending prompt for owner. A prompt that was already pending
// is replaced and returned so its anchor can be cleaned up, expired or not.
func (e *Engine) Enter(owner models.Owner, state State, ctx Context) (replaced *Slot) {
	if state == Idle {
		e.Clear(owner)
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if prev, ok := e.slots[owner]; ok {
		replaced = &prev
	}
	e.slots[owner] = Slot{State: state, Context: ctx, Entered: e.now()}
	return replaced
}

// Peek returns the live pending prompt without removing it. An expired slot
// is left for Take or Sweep to report.
func (e *Engine) Peek(owner models.Owner) (Slot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.slots[owner]
	if !ok || e.expired(s) {
		return Slot{}, false
	}
	return s, true
}

// State returns the owner's current state
func (e *Engine) State(owner models.Owner) State {
	s, ok := e.Peek(owner)
	if !ok {
		return Idle
	}
	return s.State
}

// Take removes and returns the pending prompt. Only one caller can take a given slot.
// ok reports a live slot. A slot that outlived the ttl is removed as well and
// returned with expired set: it must not be completed, but its anchor is still
// on screen.
func (e *Engine) Take(owner models.Owner) (s Slot, ok, expired bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, found := e.slots[owner]
	if !found {
		return Slot{}, false, false
	}
	delete(e.slots, owner)
	if e.expired(s) {
		return s, false, true
	}
	return s, true, false
}

// Clear discards the pending prompt, returning it if there was one
func (e *Engine) Clear(owner models.Owner) (Slot, bool) {
	s, ok, expired := e.Take(owner)
	return s, ok || expired
}

// Sweep drops every expired slot and returns them keyed by owner
func (e *Engine) Sweep() map[models.Owner]Slot {
	e.mu.Lock()
	defer e.mu.Unlock()

	var swept map[models.Owner]Slot
	for owner, s := range e.slots {
		if !e.expired(s) {
			continue
		}
		if swept == nil {
			swept = make(map[models.Owner]Slot)
		}
		swept[owner] = s
		delete(e.slots, owner)
	}
	return swept
}

// Len returns the number of owners with a live prompt
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, s := range e.slots {
		if !e.expired(s) {
			n++
		}
	}
	return n
}
