package events

import (
	"testing"
)

func TestBusDeliveryOrder(t *testing.T) {
	b := NewBus()
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		b.OnDidOpenFile(func(OpenEvent) { order = append(order, i) })
	}
	b.EmitOpen(OpenEvent{Workspace: "ws", Path: "a.txt"})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("delivery order = %v, want [1 2 3]", order)
	}
}

func TestBusDisposeIdempotent(t *testing.T) {
	b := NewBus()
	calls := 0
	d := b.OnDidToggleFolder(func(ToggleEvent) { calls++ })
	other := b.OnDidToggleFolder(func(ToggleEvent) {})

	d.Dispose()
	d.Dispose()
	if b.Count() != 1 {
		t.Fatalf("Count = %d after dispose, want 1", b.Count())
	}

	b.EmitToggle(ToggleEvent{Path: "src/", Open: true})
	if calls != 0 {
		t.Errorf("disposed handler called %d times", calls)
	}
	other.Dispose()
	if b.Count() != 0 {
		t.Errorf("Count = %d, want 0", b.Count())
	}
}

func TestBusReentrantSubscribe(t *testing.T) {
	b := NewBus()
	lateCalls := 0
	var late Disposer
	b.OnDidSwitchWorkspace(func(SwitchEvent) {
		if late == nil {
			late = b.OnDidSwitchWorkspace(func(SwitchEvent) { lateCalls++ })
		}
	})

	b.EmitSwitch(SwitchEvent{Workspace: "a"})
	if lateCalls != 0 {
		t.Error("handler registered during delivery saw the in-flight event")
	}
	b.EmitSwitch(SwitchEvent{Workspace: "b"})
	if lateCalls != 1 {
		t.Errorf("late handler calls = %d, want 1", lateCalls)
	}
}

func TestBusDisposeDuringDelivery(t *testing.T) {
	b := NewBus()
	secondCalls := 0
	var second Disposer
	b.OnDidMove(func(MoveEvent) { second.Dispose() })
	second = b.OnDidMove(func(MoveEvent) { secondCalls++ })

	b.EmitMove(MoveEvent{From: "a", To: "b"})
	if secondCalls != 0 {
		t.Errorf("handler disposed mid-delivery was called %d times", secondCalls)
	}
}

func TestBridge(t *testing.T) {
	bus := NewBus()
	bc := NewBroadcaster()
	ch := bc.Subscribe()
	defer bc.Unsubscribe(ch)

	d := Bridge(bus, bc)
	bus.EmitToggle(ToggleEvent{Workspace: "ws", Path: "src/", Open: true})
	bus.EmitChange(ChangeEvent{Workspace: "ws", Op: ChangeRemove, Path: "A/", Removed: []string{"A/x", "A/"}})

	first := <-ch
	if first.Type != TypeToggle || first.Open == nil || !*first.Open || first.Path != "src/" {
		t.Errorf("toggle event = %+v", first)
	}
	second := <-ch
	if second.Type != TypeChange || second.Op != "remove" || len(second.Paths) != 2 {
		t.Errorf("change event = %+v", second)
	}

	d.Dispose()
	d.Dispose()
	if bus.Count() != 0 {
		t.Errorf("bridge left %d handlers", bus.Count())
	}
}
