// Package events provides the explorer's typed event bus and an SSE
// broadcaster fed from it.
//
// Bus delivery is synchronous: Emit calls every handler of the channel in
// registration order before returning. Handlers may subscribe or dispose
// during delivery; a handler registered during delivery first sees the next
// event, a handler disposed during delivery is skipped if not yet called.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/fruitsalade/explorer/internal/metrics"
	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/tree"
)

// SwitchEvent is emitted after the active workspace changed.
type SwitchEvent struct {
	Previous  string
	Workspace string
}

// OpenEvent is emitted after a file was opened and revealed.
type OpenEvent struct {
	Workspace string
	Path      string
}

// ToggleEvent is emitted after a folder's open flag changed.
type ToggleEvent struct {
	Workspace string
	Path      string
	Open      bool
}

// MoveEvent is emitted after a move or rename completed.
type MoveEvent struct {
	Workspace string
	From      string
	To        string
	Rewrites  []tree.Rewrite
}

// ChangeOp names a membership change.
type ChangeOp string

const (
	ChangeAdd    ChangeOp = "add"
	ChangeRemove ChangeOp = "remove"
)

// ChangeEvent is emitted after nodes were added or removed.
type ChangeEvent struct {
	Workspace string
	Op        ChangeOp
	Path      string
	Kind      models.Kind
	// Removed lists every removed path for ChangeRemove, deepest first.
	Removed []string
}

// Disposer detaches a handler. Dispose may be called any number of times.
type Disposer interface {
	Dispose()
}

type subscription struct {
	once   sync.Once
	alive  atomic.Bool
	detach func()
}

func (s *subscription) Dispose() {
	s.once.Do(func() {
		s.alive.Store(false)
		s.detach()
	})
}

type handlerEntry[T any] struct {
	id  uint64
	sub *subscription
	fn  func(T)
}

// channel is one typed, ordered list of handlers.
type channel[T any] struct {
	name string
	mu   sync.Mutex
	next uint64
	subs []handlerEntry[T]
}

func (c *channel[T]) subscribe(fn func(T)) Disposer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	id := c.next
	sub := &subscription{}
	sub.alive.Store(true)
	sub.detach = func() { c.remove(id) }
	c.subs = append(c.subs, handlerEntry[T]{id: id, sub: sub, fn: fn})
	return sub
}

func (c *channel[T]) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, h := range c.subs {
		if h.id == id {
			c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
			return
		}
	}
}

func (c *channel[T]) emit(ev T) {
	c.mu.Lock()
	handlers := make([]handlerEntry[T], len(c.subs))
	copy(handlers, c.subs)
	c.mu.Unlock()

	metrics.RecordEvent(c.name)
	for _, h := range handlers {
		if h.sub.alive.Load() {
			h.fn(ev)
		}
	}
}

func (c *channel[T]) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Bus holds the explorer's named event channels.
type Bus struct {
	switched channel[SwitchEvent]
	opened   channel[OpenEvent]
	toggled  channel[ToggleEvent]
	moved    channel[MoveEvent]
	changed  channel[ChangeEvent]
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		switched: channel[SwitchEvent]{name: TypeSwitch},
		opened:   channel[OpenEvent]{name: TypeOpen},
		toggled:  channel[ToggleEvent]{name: TypeToggle},
		moved:    channel[MoveEvent]{name: TypeMove},
		changed:  channel[ChangeEvent]{name: TypeChange},
	}
}

// OnDidSwitchWorkspace registers fn for workspace switches.
func (b *Bus) OnDidSwitchWorkspace(fn func(SwitchEvent)) Disposer {
	return b.switched.subscribe(fn)
}

// OnDidOpenFile registers fn for file opens.
func (b *Bus) OnDidOpenFile(fn func(OpenEvent)) Disposer {
	return b.opened.subscribe(fn)
}

// OnDidToggleFolder registers fn for folder toggles.
func (b *Bus) OnDidToggleFolder(fn func(ToggleEvent)) Disposer {
	return b.toggled.subscribe(fn)
}

// OnDidMove registers fn for completed moves and renames.
func (b *Bus) OnDidMove(fn func(MoveEvent)) Disposer {
	return b.moved.subscribe(fn)
}

// OnDidChangeTree registers fn for node additions and removals.
func (b *Bus) OnDidChangeTree(fn func(ChangeEvent)) Disposer {
	return b.changed.subscribe(fn)
}

// EmitSwitch delivers a switch event.
func (b *Bus) EmitSwitch(ev SwitchEvent) { b.switched.emit(ev) }

// EmitOpen delivers an open event.
func (b *Bus) EmitOpen(ev OpenEvent) { b.opened.emit(ev) }

// EmitToggle delivers a toggle event.
func (b *Bus) EmitToggle(ev ToggleEvent) { b.toggled.emit(ev) }

// EmitMove delivers a move event.
func (b *Bus) EmitMove(ev MoveEvent) { b.moved.emit(ev) }

// EmitChange delivers a change event.
func (b *Bus) EmitChange(ev ChangeEvent) { b.changed.emit(ev) }

// Count returns the total number of registered handlers.
func (b *Bus) Count() int {
	return b.switched.count() + b.opened.count() + b.toggled.count() +
		b.moved.count() + b.changed.count()
}

// DisposeAll disposes every disposer in ds.
func DisposeAll(ds ...Disposer) {
	for _, d := range ds {
		if d != nil {
			d.Dispose()
		}
	}
}
