package workspace

import (
	"context"
	"time"

	"github.com/fruitsalade/explorer/internal/events"
	"github.com/fruitsalade/explorer/internal/metrics"
	"github.com/fruitsalade/explorer/internal/move"
	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/tree"
	"github.com/fruitsalade/explorer/pkg/vpath"
)

// emitter collects event deliveries to run once the lock is released.
type emitter []func()

func (e *emitter) add(fn func()) { *e = append(*e, fn) }

func (e emitter) run() {
	for _, fn := range e {
		fn()
	}
}

// mutation reports what a mutating operation changed.
type mutation struct {
	emit    emitter
	persist bool
}

// apply runs fn against the active workspace under the write lock, saves
// the tree when fn changed membership, then delivers fn's events.
func (m *Manager) apply(ctx context.Context, op string, fn func(ws string, t *tree.Tree, c *mutation) error) error {
	m.mu.Lock()
	ws, t, err := m.activeLocked()
	if err != nil {
		m.mu.Unlock()
		metrics.RecordTreeOperation(op, err)
		return models.NewPathError(op, "", err)
	}
	var c mutation
	err = fn(ws, t, &c)
	if err == nil && c.persist {
		m.saveLocked(ctx, ws, t)
		metrics.SetTreeSize(ws, t.Len())
	}
	m.mu.Unlock()

	// Move operations are counted by the engine.
	if op != "drop" && op != "move" && op != "rename" {
		metrics.RecordTreeOperation(op, err)
	}
	if err != nil {
		return err
	}
	c.emit.run()
	return nil
}

// resolve maps a raw argument to an existing canonical path using the
// manager's rules.
func (m *Manager) resolve(t *tree.Tree, raw string) (string, error) {
	p, _, err := m.rules.NormalizeAny(raw)
	if err != nil {
		return "", err
	}
	return t.Resolve(p)
}

// Rules returns the path rules applied to every workspace.
func (m *Manager) Rules() vpath.Rules {
	return m.rules
}

// AddFile creates a file. Its parent folder must exist.
func (m *Manager) AddFile(ctx context.Context, path string) (string, error) {
	return m.add(ctx, path, models.KindFile)
}

// AddFolder creates a folder. Its parent folder must exist.
func (m *Manager) AddFolder(ctx context.Context, path string) (string, error) {
	return m.add(ctx, path, models.KindFolder)
}

func (m *Manager) add(ctx context.Context, raw string, kind models.Kind) (string, error) {
	var added string
	err := m.apply(ctx, "add", func(ws string, t *tree.Tree, c *mutation) error {
		p, err := m.rules.Normalize(raw, kind)
		if err != nil {
			return err
		}
		if err := t.Add(p, kind); err != nil {
			return err
		}
		added = p
		c.persist = true
		c.emit.add(func() {
			m.bus.EmitChange(events.ChangeEvent{Workspace: ws, Op: events.ChangeAdd, Path: p, Kind: kind})
		})
		return nil
	})
	return added, err
}

// Delete removes a node and its subtree. It returns the removed paths,
// deepest first.
func (m *Manager) Delete(ctx context.Context, path string) ([]string, error) {
	var removed []string
	err := m.apply(ctx, "delete", func(ws string, t *tree.Tree, c *mutation) error {
		p, err := m.resolve(t, path)
		if err != nil {
			return err
		}
		n, _ := t.Get(p)
		if removed, err = t.Remove(p); err != nil {
			return err
		}
		c.persist = true
		c.emit.add(func() {
			m.bus.EmitChange(events.ChangeEvent{
				Workspace: ws, Op: events.ChangeRemove, Path: p, Kind: n.Kind, Removed: removed,
			})
		})
		return nil
	})
	return removed, err
}

// Drop moves source into the folder destination, as a drag-and-drop does.
func (m *Manager) Drop(ctx context.Context, source, destination string) (move.Result, error) {
	return m.relocate(ctx, "drop", func(ws string, t *tree.Tree) (move.Result, error) {
		return m.engine.Drop(ws, t, source, destination)
	})
}

// Move moves source to the full path target.
func (m *Manager) Move(ctx context.Context, source, target string) (move.Result, error) {
	return m.relocate(ctx, "move", func(ws string, t *tree.Tree) (move.Result, error) {
		return m.engine.MoveTo(ws, t, source, target, move.Options{})
	})
}

// Rename gives source a new name in its current folder.
func (m *Manager) Rename(ctx context.Context, source, newName string) (move.Result, error) {
	return m.relocate(ctx, "rename", func(ws string, t *tree.Tree) (move.Result, error) {
		return m.engine.Rename(ws, t, source, newName, move.Options{})
	})
}

func (m *Manager) relocate(ctx context.Context, op string, fn func(ws string, t *tree.Tree) (move.Result, error)) (move.Result, error) {
	var res move.Result
	err := m.apply(ctx, op, func(ws string, t *tree.Tree, c *mutation) error {
		var err error
		if res, err = fn(ws, t); err != nil || res.NoOp {
			return err
		}
		c.persist = true
		c.emit.add(func() {
			m.bus.EmitMove(events.MoveEvent{Workspace: ws, From: res.From, To: res.To, Rewrites: res.Rewrites})
		})
		return nil
	})
	return res, err
}

// Toggle flips a folder between open and closed and returns the new state.
func (m *Manager) Toggle(ctx context.Context, path string) (bool, error) {
	var open bool
	err := m.apply(ctx, "toggle", func(ws string, t *tree.Tree, c *mutation) error {
		p, err := m.resolve(t, path)
		if err != nil {
			return err
		}
		if open, err = t.Toggle(p); err != nil {
			return err
		}
		c.emit.add(func() {
			m.bus.EmitToggle(events.ToggleEvent{Workspace: ws, Path: p, Open: open})
		})
		return nil
	})
	return open, err
}

// Select handles a click on a node: both the primary and the context
// selection move to it.
func (m *Manager) Select(ctx context.Context, path string) error {
	return m.apply(ctx, "select", func(_ string, t *tree.Tree, _ *mutation) error {
		p, err := m.resolve(t, path)
		if err != nil {
			return err
		}
		t.SetSelected(p)
		t.SetContextSelected(p)
		return nil
	})
}

// ContextSelect moves only the context-menu selection.
func (m *Manager) ContextSelect(ctx context.Context, path string) error {
	return m.apply(ctx, "context_select", func(_ string, t *tree.Tree, _ *mutation) error {
		p, err := m.resolve(t, path)
		if err != nil {
			return err
		}
		return t.SetContextSelected(p)
	})
}

// ClearContextSelect clears the context-menu selection.
func (m *Manager) ClearContextSelect(ctx context.Context) error {
	return m.apply(ctx, "context_clear", func(_ string, t *tree.Tree, _ *mutation) error {
		t.ClearContextSelected()
		return nil
	})
}

// OpenFile reveals a file: its ancestors are opened, it becomes the
// selection, the context selection is cleared and DidOpenFile is emitted.
func (m *Manager) OpenFile(ctx context.Context, path string) (string, error) {
	var opened string
	err := m.apply(ctx, "open", func(ws string, t *tree.Tree, c *mutation) error {
		p, err := m.reveal(t, path)
		if err != nil {
			return err
		}
		opened = p
		m.scheduleRevealLocked(ws, p)
		c.emit.add(func() {
			m.bus.EmitOpen(events.OpenEvent{Workspace: ws, Path: p})
		})
		return nil
	})
	return opened, err
}

// SwitchAndOpen switches to name and then opens path in it. No other
// switch can run between the two steps, so the reveal always lands on the
// freshly switched tree.
func (m *Manager) SwitchAndOpen(ctx context.Context, name, path string) (string, error) {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()
	if err := m.switchTo(ctx, name); err != nil {
		return "", err
	}
	return m.OpenFile(ctx, path)
}

func (m *Manager) reveal(t *tree.Tree, raw string) (string, error) {
	p, err := m.resolve(t, raw)
	if err != nil {
		return "", err
	}
	if n, _ := t.Get(p); n.Kind != models.KindFile {
		return "", models.NewPathError("open", p, models.ErrInvalidKind)
	}
	if err := t.OpenAncestors(p); err != nil {
		return "", err
	}
	t.SetSelected(p)
	t.ClearContextSelected()
	return p, nil
}

// scheduleRevealLocked arms the optional second reveal pass. It is skipped
// if the workspace was switched away or the file is gone by then.
func (m *Manager) scheduleRevealLocked(ws, p string) {
	if m.revealRepeat <= 0 {
		return
	}
	if m.revealer != nil {
		m.revealer.Stop()
	}
	m.revealer = time.AfterFunc(m.revealRepeat, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.hasActive || m.active != ws {
			return
		}
		t := m.trees[ws]
		if !t.Exists(p) {
			return
		}
		t.OpenAncestors(p)
		t.SetSelected(p)
	})
}
