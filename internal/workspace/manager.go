// Package workspace owns the named workspace trees and the active
// workspace.
//
// A Manager is the single writer for all of its trees. Every mutation runs
// under the manager lock, is validated in full before the tree changes, and
// is persisted through the store after it succeeds. Events are delivered
// after the lock is released, before the mutating call returns.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fruitsalade/explorer/internal/events"
	"github.com/fruitsalade/explorer/internal/logging"
	"github.com/fruitsalade/explorer/internal/metrics"
	"github.com/fruitsalade/explorer/internal/move"
	"github.com/fruitsalade/explorer/internal/persist"
	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/tree"
	"github.com/fruitsalade/explorer/pkg/vpath"
)

// Option configures a Manager.
type Option func(*Manager)

// WithRules sets the path rules applied to every path argument.
func WithRules(r vpath.Rules) Option {
	return func(m *Manager) { m.rules = r }
}

// WithRevealRepeat re-applies the reveal of an opened file once more after
// d. Zero disables the second pass.
func WithRevealRepeat(d time.Duration) Option {
	return func(m *Manager) { m.revealRepeat = d }
}

// Manager holds the workspaces of one explorer session.
type Manager struct {
	// switchMu serializes workspace switches; it is always taken before mu.
	switchMu sync.Mutex

	mu        sync.RWMutex
	trees     map[string]*tree.Tree
	active    string
	hasActive bool
	dirty     map[string]bool
	revealer  *time.Timer

	store        persist.Store
	bus          *events.Bus
	engine       *move.Engine
	rules        vpath.Rules
	revealRepeat time.Duration

	tasks *queue
}

// NewManager creates a manager with no active workspace. bus may be nil.
func NewManager(store persist.Store, bus *events.Bus, opts ...Option) *Manager {
	if bus == nil {
		bus = events.NewBus()
	}
	m := &Manager{
		trees: make(map[string]*tree.Tree),
		dirty: make(map[string]bool),
		store: store,
		bus:   bus,
		rules: vpath.Default,
		tasks: newQueue(),
	}
	for _, opt := range opts {
		opt(m)
	}
	// Move events are emitted by the manager once the lock is released.
	m.engine = move.New(nil, m.rules)
	return m
}

// Bus returns the event bus the manager emits on.
func (m *Manager) Bus() *events.Bus {
	return m.bus
}

// Do schedules fn to run after the current operation. Event handlers use it
// to call back into mutating methods. Tasks run one at a time, in order.
func (m *Manager) Do(fn func()) {
	m.tasks.push(fn)
}

// Close stops background work and flushes dirty workspaces.
func (m *Manager) Close(ctx context.Context) error {
	m.tasks.close()
	m.mu.Lock()
	if m.revealer != nil {
		m.revealer.Stop()
	}
	m.mu.Unlock()
	return m.Flush(ctx)
}

// ─── Workspace lifecycle ──────────────────────────────────────────────────────

// SwitchTo makes name the active workspace, loading it from the store or
// creating it. The outgoing workspace is saved first. The incoming tree has
// every folder collapsed and no selection. A second switch waits for the
// first to finish.
func (m *Manager) SwitchTo(ctx context.Context, name string) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()
	return m.switchTo(ctx, name)
}

func (m *Manager) switchTo(ctx context.Context, name string) error {
	start := time.Now()
	if err := persist.ValidateWorkspaceName(name); err != nil {
		return err
	}

	m.mu.Lock()
	prev := ""
	if m.hasActive {
		prev = m.active
		m.saveLocked(ctx, prev, m.trees[prev])
	}
	t, err := m.loadLocked(ctx, name)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	t.CollapseAll()
	t.ClearSelection()
	m.active, m.hasActive = name, true
	m.mu.Unlock()

	metrics.RecordWorkspaceSwitch(time.Since(start))
	logging.Info("switched workspace",
		logging.String("previous", prev),
		logging.Workspace(name),
		logging.Duration("duration", time.Since(start)),
	)
	m.bus.EmitSwitch(events.SwitchEvent{Previous: prev, Workspace: name})
	return nil
}

// loadLocked returns the cached tree of name, loading or creating it.
func (m *Manager) loadLocked(ctx context.Context, name string) (*tree.Tree, error) {
	if t, ok := m.trees[name]; ok {
		return t, nil
	}
	snap, err := m.store.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load workspace %s: %w", name, err)
	}
	t, err := tree.FromSnapshot(snap, m.rules)
	if err != nil {
		return nil, fmt.Errorf("rebuild workspace %s: %w", name, err)
	}
	m.trees[name] = t
	metrics.SetWorkspacesLoaded(len(m.trees))
	metrics.SetTreeSize(name, t.Len())
	if snap.IsEmpty() {
		m.saveLocked(ctx, name, t)
	}
	return t, nil
}

// Create registers an empty workspace without switching to it.
func (m *Manager) Create(ctx context.Context, name string) error {
	if err := persist.ValidateWorkspaceName(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	exists, err := m.existsLocked(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return models.NewPathError("create", name, models.ErrAlreadyExists)
	}
	t := tree.NewWithRules(m.rules)
	if err := m.store.Save(ctx, t.Snapshot(name)); err != nil {
		return fmt.Errorf("create workspace %s: %w", name, err)
	}
	m.trees[name] = t
	metrics.SetWorkspacesLoaded(len(m.trees))
	logging.Info("created workspace", logging.Workspace(name))
	return nil
}

// Remove deletes a workspace. Removing the active workspace switches to the
// first remaining workspace by name, or leaves none active.
func (m *Manager) Remove(ctx context.Context, name string) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	m.mu.Lock()
	exists, err := m.existsLocked(ctx, name)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if !exists {
		m.mu.Unlock()
		return models.NewPathError("remove", name, models.ErrWorkspaceNotFound)
	}
	if err := m.store.Delete(ctx, name); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("remove workspace %s: %w", name, err)
	}
	delete(m.trees, name)
	delete(m.dirty, name)
	metrics.ForgetWorkspace(name)
	metrics.SetWorkspacesLoaded(len(m.trees))
	metrics.SetDirtyWorkspaces(len(m.dirty))

	wasActive := m.hasActive && m.active == name
	if wasActive {
		m.active, m.hasActive = "", false
	}
	m.mu.Unlock()
	logging.Info("removed workspace", logging.Workspace(name))

	if !wasActive {
		return nil
	}
	names, err := m.List(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		m.bus.EmitSwitch(events.SwitchEvent{Previous: name})
		return nil
	}
	return m.switchTo(ctx, names[0])
}

func (m *Manager) existsLocked(ctx context.Context, name string) (bool, error) {
	if _, ok := m.trees[name]; ok {
		return true, nil
	}
	names, err := m.store.List(ctx)
	if err != nil {
		return false, fmt.Errorf("list workspaces: %w", err)
	}
	// Store listings follow the backend's collation, not byte order.
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// List returns every known workspace, stored or loaded, sorted by name.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	stored, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	seen := make(map[string]bool, len(stored))
	for _, n := range stored {
		seen[n] = true
	}
	m.mu.RLock()
	for n := range m.trees {
		seen[n] = true
	}
	m.mu.RUnlock()

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Active returns the name of the active workspace.
func (m *Manager) Active() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active, m.hasActive
}

// ActiveTree returns the active workspace's tree. The tree must not be
// mutated directly, and reading it concurrently with manager calls needs
// View instead.
func (m *Manager) ActiveTree() (*tree.Tree, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, t, err := m.activeLocked()
	return t, err
}

// View calls fn with the active workspace under the read lock.
func (m *Manager) View(fn func(workspace string, t *tree.Tree) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ws, t, err := m.activeLocked()
	if err != nil {
		return err
	}
	return fn(ws, t)
}

func (m *Manager) activeLocked() (string, *tree.Tree, error) {
	if !m.hasActive {
		return "", nil, models.ErrNoActiveWorkspace
	}
	return m.active, m.trees[m.active], nil
}

// ─── Persistence ──────────────────────────────────────────────────────────────

// saveLocked writes the snapshot of t. A failure is logged and leaves the
// workspace dirty; the next save or Flush retries it.
func (m *Manager) saveLocked(ctx context.Context, name string, t *tree.Tree) {
	if t == nil {
		return
	}
	if err := m.store.Save(ctx, t.Snapshot(name)); err != nil {
		m.dirty[name] = true
		logging.Warn("workspace save failed",
			logging.Workspace(name),
			logging.Err(err),
		)
	} else {
		delete(m.dirty, name)
	}
	metrics.SetDirtyWorkspaces(len(m.dirty))
}

// Flush saves every workspace whose last save failed.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name := range m.dirty {
		if err := m.store.Save(ctx, m.trees[name].Snapshot(name)); err != nil {
			errs = append(errs, fmt.Errorf("flush workspace %s: %w", name, err))
			continue
		}
		delete(m.dirty, name)
	}
	metrics.SetDirtyWorkspaces(len(m.dirty))
	return errors.Join(errs...)
}

// Dirty returns the workspaces with unsaved changes, sorted.
func (m *Manager) Dirty() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.dirty))
	for n := range m.dirty {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
