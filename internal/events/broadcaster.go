package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fruitsalade/explorer/internal/metrics"
)

// Wire event types.
const (
	TypeSwitch = "switch"
	TypeOpen   = "open"
	TypeToggle = "toggle"
	TypeMove   = "move"
	TypeChange = "change"
)

const subscriberBuffer = 64

// Event is the wire form of a bus event, streamed over SSE.
type Event struct {
	Type      string   `json:"type"`
	Workspace string   `json:"workspace"`
	Path      string   `json:"path,omitempty"`
	From      string   `json:"from,omitempty"`
	To        string   `json:"to,omitempty"`
	Op        string   `json:"op,omitempty"`
	Open      *bool    `json:"open,omitempty"`
	Paths     []string `json:"paths,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// Broadcaster manages SSE subscribers and publishes events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe adds a new subscriber and returns its event channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(int64(n))
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Unsubscribing
// twice is a no-op.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(int64(n))
}

// Publish sends an event to all subscribers. Non-blocking: drops events
// for slow consumers.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			metrics.RecordSSEDrop()
		}
	}
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// MarshalEvent serializes an event to JSON.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// Bridge forwards every bus event to the broadcaster. Disposing the result
// detaches all forwarding handlers.
func Bridge(bus *Bus, b *Broadcaster) Disposer {
	ds := []Disposer{
		bus.OnDidSwitchWorkspace(func(ev SwitchEvent) {
			b.Publish(Event{Type: TypeSwitch, Workspace: ev.Workspace, From: ev.Previous})
		}),
		bus.OnDidOpenFile(func(ev OpenEvent) {
			b.Publish(Event{Type: TypeOpen, Workspace: ev.Workspace, Path: ev.Path})
		}),
		bus.OnDidToggleFolder(func(ev ToggleEvent) {
			open := ev.Open
			b.Publish(Event{Type: TypeToggle, Workspace: ev.Workspace, Path: ev.Path, Open: &open})
		}),
		bus.OnDidMove(func(ev MoveEvent) {
			b.Publish(Event{Type: TypeMove, Workspace: ev.Workspace, From: ev.From, To: ev.To})
		}),
		bus.OnDidChangeTree(func(ev ChangeEvent) {
			b.Publish(Event{Type: TypeChange, Workspace: ev.Workspace, Op: string(ev.Op), Path: ev.Path, Paths: ev.Removed})
		}),
	}
	return &group{ds: ds}
}

type group struct {
	once sync.Once
	ds   []Disposer
}

func (g *group) Dispose() {
	g.once.Do(func() { DisposeAll(g.ds...) })
}
