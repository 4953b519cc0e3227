package workspace

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fruitsalade/explorer/internal/events"
	"github.com/fruitsalade/explorer/internal/persist"
	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/tree"
	"github.com/fruitsalade/explorer/pkg/vpath"
)

// failingStore fails every Save while fail is set.
type failingStore struct {
	*persist.MemoryStore
	fail atomic.Bool
}

func (s *failingStore) Save(ctx context.Context, snap *models.Snapshot) error {
	if s.fail.Load() {
		return errors.New("store unavailable")
	}
	return s.MemoryStore.Save(ctx, snap)
}

// collatedStore lists workspaces in reverse byte order, as a database with
// a locale collation may.
type collatedStore struct {
	*persist.MemoryStore
}

func (s collatedStore) List(ctx context.Context) ([]string, error) {
	names, err := s.MemoryStore.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func newManager(t *testing.T, opts ...Option) (*Manager, *persist.MemoryStore) {
	t.Helper()
	store := persist.NewMemory()
	m := NewManager(store, events.NewBus(), opts...)
	t.Cleanup(func() { m.Close(context.Background()) })
	return m, store
}

func seed(t *testing.T, m *Manager, paths ...string) {
	t.Helper()
	ctx := context.Background()
	for _, p := range paths {
		var err error
		if vpath.IsFolder(p) {
			_, err = m.AddFolder(ctx, p)
		} else {
			_, err = m.AddFile(ctx, p)
		}
		if err != nil {
			t.Fatalf("seed %q: %v", p, err)
		}
	}
}

func activeTree(t *testing.T, m *Manager) *tree.Tree {
	t.Helper()
	tr, err := m.ActiveTree()
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestNoActiveWorkspace(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	if _, err := m.ActiveTree(); !errors.Is(err, models.ErrNoActiveWorkspace) {
		t.Errorf("ActiveTree err = %v", err)
	}
	if _, err := m.AddFile(ctx, "a.txt"); !errors.Is(err, models.ErrNoActiveWorkspace) {
		t.Errorf("AddFile err = %v", err)
	}
	if _, err := m.OpenFile(ctx, "a.txt"); !errors.Is(err, models.ErrNoActiveWorkspace) {
		t.Errorf("OpenFile err = %v", err)
	}
	if _, err := m.Sections(); !errors.Is(err, models.ErrNoActiveWorkspace) {
		t.Errorf("Sections err = %v", err)
	}
	if _, ok := m.Active(); ok {
		t.Error("Active reported a workspace")
	}
}

func TestSwitchCollapsesAndClears(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()

	var switches []events.SwitchEvent
	m.Bus().OnDidSwitchWorkspace(func(ev events.SwitchEvent) { switches = append(switches, ev) })

	if err := m.SwitchTo(ctx, "one"); err != nil {
		t.Fatal(err)
	}
	seed(t, m, "src/", "src/lib/", "src/lib/a.rs")
	if _, err := m.OpenFile(ctx, "src/lib/a.rs"); err != nil {
		t.Fatal(err)
	}
	if !activeTree(t, m).IsOpen("src/lib/") {
		t.Fatal("reveal did not open ancestors")
	}

	if err := m.SwitchTo(ctx, "two"); err != nil {
		t.Fatal(err)
	}
	if err := m.SwitchTo(ctx, "one"); err != nil {
		t.Fatal(err)
	}

	tr := activeTree(t, m)
	if tr.IsOpen("src/") || tr.IsOpen("src/lib/") {
		t.Error("folders still open after switch")
	}
	if _, ok := tr.Selected(); ok {
		t.Error("selection survived switch")
	}
	if !tr.Exists("src/lib/a.rs") {
		t.Error("membership lost across switch")
	}

	want := []events.SwitchEvent{
		{Previous: "", Workspace: "one"},
		{Previous: "one", Workspace: "two"},
		{Previous: "two", Workspace: "one"},
	}
	if !reflect.DeepEqual(switches, want) {
		t.Errorf("switch events = %+v", switches)
	}

	snap, err := store.Load(ctx, "one")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Entries) != 3 {
		t.Errorf("stored entries = %+v", snap.Entries)
	}
	names, _ := m.List(ctx)
	if !reflect.DeepEqual(names, []string{"one", "two"}) {
		t.Errorf("List = %q", names)
	}
}

func TestSwitchLoadsFromStore(t *testing.T) {
	store := persist.NewMemory()
	ctx := context.Background()
	store.Save(ctx, &models.Snapshot{Workspace: "saved", Entries: []models.Entry{
		{Path: "tests/", Kind: models.KindFolder},
		{Path: "tests/a.test.ts", Kind: models.KindFile},
	}})

	m := NewManager(store, nil)
	defer m.Close(ctx)
	if err := m.SwitchTo(ctx, "saved"); err != nil {
		t.Fatal(err)
	}
	if !activeTree(t, m).Exists("tests/a.test.ts") {
		t.Error("snapshot not loaded")
	}
	if err := m.SwitchTo(ctx, "bad/name"); !errors.Is(err, models.ErrInvalidWorkspaceName) {
		t.Errorf("invalid name err = %v", err)
	}
	if ws, _ := m.Active(); ws != "saved" {
		t.Errorf("failed switch changed active to %q", ws)
	}
}

func TestSwitchAndOpen(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	m.SwitchTo(ctx, "other")
	m.SwitchTo(ctx, "target")
	seed(t, m, "client/", "client/deep/", "client/deep/run.ts")
	m.SwitchTo(ctx, "other")

	var order []string
	m.Bus().OnDidSwitchWorkspace(func(ev events.SwitchEvent) { order = append(order, "switch:"+ev.Workspace) })
	m.Bus().OnDidOpenFile(func(ev events.OpenEvent) { order = append(order, "open:"+ev.Path) })

	p, err := m.SwitchAndOpen(ctx, "target", "client/deep/run.ts")
	if err != nil {
		t.Fatal(err)
	}
	if p != "client/deep/run.ts" {
		t.Errorf("opened %q", p)
	}
	tr := activeTree(t, m)
	if !tr.IsOpen("client/") || !tr.IsOpen("client/deep/") {
		t.Error("ancestors not open after switch-and-open")
	}
	if sel, _ := tr.Selected(); sel != "client/deep/run.ts" {
		t.Errorf("selected = %q", sel)
	}
	if !reflect.DeepEqual(order, []string{"switch:target", "open:client/deep/run.ts"}) {
		t.Errorf("event order = %q", order)
	}
}

func TestOpenFile(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	m.SwitchTo(ctx, "ws")
	seed(t, m, "src/", "src/main.rs", "src/util.rs")

	if err := m.Select(ctx, "src/util.rs"); err != nil {
		t.Fatal(err)
	}
	tr := activeTree(t, m)
	if p, _ := tr.ContextSelected(); p != "src/util.rs" {
		t.Errorf("click did not set context selection: %q", p)
	}

	var opened []events.OpenEvent
	m.Bus().OnDidOpenFile(func(ev events.OpenEvent) { opened = append(opened, ev) })
	if _, err := m.OpenFile(ctx, "/src//main.rs"); err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.ContextSelected(); ok {
		t.Error("open did not clear context selection")
	}
	if p, _ := tr.Selected(); p != "src/main.rs" {
		t.Errorf("selected = %q", p)
	}
	if len(opened) != 1 || opened[0] != (events.OpenEvent{Workspace: "ws", Path: "src/main.rs"}) {
		t.Errorf("open events = %+v", opened)
	}

	if _, err := m.OpenFile(ctx, "src/"); !errors.Is(err, models.ErrInvalidKind) {
		t.Errorf("open folder err = %v", err)
	}
	if _, err := m.OpenFile(ctx, "src/missing.rs"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("open missing err = %v", err)
	}
	if len(opened) != 1 {
		t.Error("failed opens emitted events")
	}
}

func TestRevealRepeat(t *testing.T) {
	m, _ := newManager(t, WithRevealRepeat(50*time.Millisecond))
	ctx := context.Background()
	m.SwitchTo(ctx, "ws")
	seed(t, m, "a/", "a/b/", "a/b/c.txt")

	if _, err := m.OpenFile(ctx, "a/b/c.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Toggle(ctx, "a/b/"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		var open bool
		m.View(func(_ string, tr *tree.Tree) error {
			open = tr.IsOpen("a/b/")
			return nil
		})
		if open {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("second reveal pass did not run")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCreateAndRemove(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	for _, name := range []string{"charlie", "alpha", "bravo"} {
		if err := m.Create(ctx, name); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Create(ctx, "alpha"); !errors.Is(err, models.ErrAlreadyExists) {
		t.Errorf("duplicate create err = %v", err)
	}
	if err := m.Remove(ctx, "zulu"); !errors.Is(err, models.ErrWorkspaceNotFound) {
		t.Errorf("remove unknown err = %v", err)
	}

	m.SwitchTo(ctx, "bravo")
	if err := m.Remove(ctx, "bravo"); err != nil {
		t.Fatal(err)
	}
	if ws, ok := m.Active(); !ok || ws != "alpha" {
		t.Errorf("fallback = %q, %v", ws, ok)
	}

	if err := m.Remove(ctx, "charlie"); err != nil {
		t.Fatal(err)
	}
	if ws, _ := m.Active(); ws != "alpha" {
		t.Errorf("removing inactive workspace changed active to %q", ws)
	}

	var last events.SwitchEvent
	m.Bus().OnDidSwitchWorkspace(func(ev events.SwitchEvent) { last = ev })
	if err := m.Remove(ctx, "alpha"); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Active(); ok {
		t.Error("workspace still active after removing the last one")
	}
	if last != (events.SwitchEvent{Previous: "alpha"}) {
		t.Errorf("switch event = %+v", last)
	}
	names, _ := m.List(ctx)
	if len(names) != 0 {
		t.Errorf("List = %q", names)
	}
}

func TestSerializedSwitches(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []events.SwitchEvent
	m.Bus().OnDidSwitchWorkspace(func(ev events.SwitchEvent) {
		mu.Lock()
		seen = append(seen, ev)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := m.SwitchTo(ctx, fmt.Sprintf("ws%d", i%4)); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	if len(seen) != 20 {
		t.Fatalf("got %d switch events", len(seen))
	}
	// Each switch starts from where the previous one ended.
	for i := 1; i < len(seen); i++ {
		if seen[i].Previous != seen[i-1].Workspace {
			t.Fatalf("switch %d: previous %q, want %q", i, seen[i].Previous, seen[i-1].Workspace)
		}
	}
	if ws, _ := m.Active(); ws != seen[len(seen)-1].Workspace {
		t.Errorf("active %q, last event %q", ws, seen[len(seen)-1].Workspace)
	}
}

func TestSaveFailureKeepsTree(t *testing.T) {
	store := &failingStore{MemoryStore: persist.NewMemory()}
	m := NewManager(store, nil)
	ctx := context.Background()
	defer m.Close(ctx)

	m.SwitchTo(ctx, "ws")
	store.fail.Store(true)

	if _, err := m.AddFolder(ctx, "src/"); err != nil {
		t.Fatalf("mutation failed with the store down: %v", err)
	}
	if !activeTree(t, m).Exists("src/") {
		t.Error("in-memory tree lost the change")
	}
	if got := m.Dirty(); !reflect.DeepEqual(got, []string{"ws"}) {
		t.Errorf("Dirty = %q", got)
	}
	if err := m.Flush(ctx); err == nil {
		t.Error("Flush succeeded with the store down")
	}

	store.fail.Store(false)
	if err := m.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if len(m.Dirty()) != 0 {
		t.Error("workspace still dirty after flush")
	}
	snap, _ := store.Load(ctx, "ws")
	if len(snap.Entries) != 1 || snap.Entries[0].Path != "src/" {
		t.Errorf("stored = %+v", snap.Entries)
	}
}

func TestMoveThroughManager(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()
	m.SwitchTo(ctx, "ws")
	seed(t, m, "A/", "A/x.txt", "A/B/", "C/")

	var moves []events.MoveEvent
	m.Bus().OnDidMove(func(ev events.MoveEvent) { moves = append(moves, ev) })

	if _, err := m.Drop(ctx, "A/", "C/"); err != nil {
		t.Fatal(err)
	}
	res, err := m.Drop(ctx, "C/A/", "C/")
	if err != nil || !res.NoOp {
		t.Errorf("parent drop = %+v, %v", res, err)
	}
	if _, err := m.Drop(ctx, "C/", "C/A/B/"); !errors.Is(err, models.ErrCyclicMove) {
		t.Errorf("cyclic drop err = %v", err)
	}
	if _, err := m.Rename(ctx, "C/A/x.txt", "y.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Move(ctx, "C/A/y.txt", "z.txt"); err != nil {
		t.Fatal(err)
	}

	if len(moves) != 3 {
		t.Errorf("got %d move events, want 3", len(moves))
	}
	snap, _ := store.Load(ctx, "ws")
	var got []string
	for _, e := range snap.Entries {
		got = append(got, e.Path)
	}
	want := []string{"C/", "C/A/", "C/A/B/", "z.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("stored = %q, want %q", got, want)
	}
}

func TestDeleteEmitsChange(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	m.SwitchTo(ctx, "ws")

	var changes []events.ChangeEvent
	m.Bus().OnDidChangeTree(func(ev events.ChangeEvent) { changes = append(changes, ev) })
	seed(t, m, "src/", "src/a.rs")

	removed, err := m.Delete(ctx, "src")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(removed, []string{"src/a.rs", "src/"}) {
		t.Errorf("removed = %q", removed)
	}
	if len(changes) != 3 || changes[2].Op != events.ChangeRemove || changes[2].Kind != models.KindFolder {
		t.Errorf("changes = %+v", changes)
	}
}

func TestDoRunsAfterHandler(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	m.SwitchTo(ctx, "ws")

	done := make(chan error, 1)
	m.Bus().OnDidChangeTree(func(ev events.ChangeEvent) {
		if ev.Path != "src/" {
			return
		}
		m.Do(func() {
			_, err := m.AddFile(ctx, "src/main.rs")
			done <- err
		})
	})
	seed(t, m, "src/")

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("deferred task did not run")
	}
	if !activeTree(t, m).Exists("src/main.rs") {
		t.Error("deferred add missing")
	}
}

func TestFoldCaseRules(t *testing.T) {
	m, _ := newManager(t, WithRules(vpath.Rules{FoldCase: true}))
	ctx := context.Background()
	m.SwitchTo(ctx, "ws")

	p, err := m.AddFolder(ctx, "SRC")
	if err != nil {
		t.Fatal(err)
	}
	if p != "src/" {
		t.Errorf("added %q", p)
	}
	if _, err := m.AddFolder(ctx, "Src/"); !errors.Is(err, models.ErrAlreadyExists) {
		t.Errorf("case variant err = %v", err)
	}
}

func TestRulesApplyToEveryOperation(t *testing.T) {
	rules := WithRules(vpath.Rules{FoldCase: true, Reserved: []string{"AUX"}})
	m, store := newManager(t, rules)
	ctx := context.Background()
	if err := m.SwitchTo(ctx, "ws"); err != nil {
		t.Fatal(err)
	}
	seed(t, m, "SRC/", "SRC/Main.rs", "Lib/", "Lib/Util/", "Docs/", "Docs/Guide.md")

	steps := []struct {
		name    string
		run     func() error
		wantErr error
	}{
		{"select", func() error { return m.Select(ctx, "SRC/Main.rs") }, nil},
		{"context select", func() error { return m.ContextSelect(ctx, "LIB/UTIL/") }, nil},
		{"toggle", func() error { _, err := m.Toggle(ctx, "LIB"); return err }, nil},
		{"drop", func() error { _, err := m.Drop(ctx, "SRC/Main.rs", "Lib/"); return err }, nil},
		{"move", func() error { _, err := m.Move(ctx, "LIB/MAIN.RS", "Lib/Util/Entry.rs"); return err }, nil},
		{"rename folder", func() error { _, err := m.Rename(ctx, "SRC/", "Code"); return err }, nil},
		{"rename reserved", func() error { _, err := m.Rename(ctx, "Code/", "aux"); return err }, models.ErrInvalidPath},
		{"drop case twin", func() error { _, err := m.Drop(ctx, "DOCS/", "CODE/"); return err }, nil},
		{"move onto case variant", func() error { _, err := m.Move(ctx, "Code/Docs/Guide.md", "CODE/docs/GUIDE.MD"); return err }, nil},
		{"open", func() error { _, err := m.OpenFile(ctx, "LIB/util/ENTRY.RS"); return err }, nil},
		{"delete", func() error { _, err := m.Delete(ctx, "Code/DOCS"); return err }, nil},
		{"add reserved", func() error { _, err := m.AddFile(ctx, "Aux"); return err }, models.ErrInvalidPath},
	}
	for _, step := range steps {
		err := step.run()
		if step.wantErr == nil && err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if step.wantErr != nil && !errors.Is(err, step.wantErr) {
			t.Fatalf("%s: err = %v, want %v", step.name, err, step.wantErr)
		}
		if err := activeTree(t, m).Check(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
	}

	tr := activeTree(t, m)
	var paths []string
	for _, n := range tr.Nodes() {
		paths = append(paths, n.Path)
	}
	want := []string{"code/", "lib/", "lib/util/", "lib/util/entry.rs"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
	if sel, _ := tr.Selected(); sel != "lib/util/entry.rs" {
		t.Errorf("selected = %q", sel)
	}

	// A workspace loaded from the store keeps resolving mixed-case input.
	reloaded := NewManager(store, nil, rules)
	defer reloaded.Close(ctx)
	if err := reloaded.SwitchTo(ctx, "ws"); err != nil {
		t.Fatal(err)
	}
	if _, err := reloaded.Rename(ctx, "LIB/Util/Entry.RS", "Start.rs"); err != nil {
		t.Fatalf("rename after reload: %v", err)
	}
	if !activeTree(t, reloaded).Exists("lib/util/start.rs") {
		t.Error("renamed file missing")
	}
}

func TestSections(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	m.SwitchTo(ctx, "ws")
	seed(t, m, "src/", "docs/", "assets/", "README.md")

	if _, err := m.AddSection(ctx, SectionTests); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddSection(ctx, SectionOther); !errors.Is(err, models.ErrInvalidTarget) {
		t.Errorf("AddSection(Other) err = %v", err)
	}

	groups, err := m.Sections()
	if err != nil {
		t.Fatal(err)
	}
	want := []SectionGroup{
		{Section: SectionProgram, Root: "src/", Present: true, Action: "build", Folders: []string{"src/"}},
		{Section: SectionClient, Root: "client/", Folders: []string{}},
		{Section: SectionTests, Root: "tests/", Present: true, Action: "test", Folders: []string{"tests/"}},
		{Section: SectionOther, Present: true, Folders: []string{"assets/", "docs/"}, Files: []string{"README.md"}},
	}
	if !reflect.DeepEqual(groups, want) {
		t.Errorf("Sections =\n%+v\nwant\n%+v", groups, want)
	}

	if sec, ok := ParseSection("client"); !ok || sec != SectionClient {
		t.Errorf("ParseSection = %q, %v", sec, ok)
	}
}

// TestRandomOperationsKeepInvariants drives the manager with random
// operations and checks the tree after each one.
func TestRandomOperationsKeepInvariants(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	m.SwitchTo(ctx, "ws")
	rng := rand.New(rand.NewSource(42))

	names := []string{"a", "b", "c", "d"}
	pick := func(tr *tree.Tree) string {
		nodes := tr.Nodes()
		if len(nodes) == 0 {
			return ""
		}
		return nodes[rng.Intn(len(nodes))].Path
	}
	folder := func(tr *tree.Tree) string {
		var folders []string
		for _, n := range tr.Nodes() {
			if n.Kind == models.KindFolder {
				folders = append(folders, n.Path)
			}
		}
		folders = append(folders, "")
		return folders[rng.Intn(len(folders))]
	}

	for i := 0; i < 500; i++ {
		tr := activeTree(t, m)
		name := names[rng.Intn(len(names))]
		switch rng.Intn(6) {
		case 0:
			m.AddFolder(ctx, folder(tr)+name)
		case 1:
			m.AddFile(ctx, folder(tr)+name+".txt")
		case 2:
			if p := pick(tr); p != "" {
				m.Delete(ctx, p)
			}
		case 3:
			if p := pick(tr); p != "" {
				m.Drop(ctx, p, folder(tr))
			}
		case 4:
			if p := pick(tr); p != "" {
				m.Rename(ctx, p, name)
			}
		case 5:
			if p := pick(tr); p != "" {
				m.Select(ctx, p)
			}
		}
		if err := tr.Check(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
}

func TestCreateExistingWithUnsortedListing(t *testing.T) {
	ctx := context.Background()
	store := collatedStore{persist.NewMemory()}
	for _, snap := range []*models.Snapshot{
		{Workspace: "alpha", Entries: []models.Entry{{Path: "keep.txt", Kind: models.KindFile}}},
		{Workspace: "beta"},
		{Workspace: "gamma"},
	} {
		if err := store.Save(ctx, snap); err != nil {
			t.Fatal(err)
		}
	}
	m := NewManager(store, nil)
	defer m.Close(ctx)

	if err := m.Create(ctx, "alpha"); !errors.Is(err, models.ErrAlreadyExists) {
		t.Fatalf("Create(alpha) err = %v, want ErrAlreadyExists", err)
	}
	snap, err := store.Load(ctx, "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Entries) != 1 {
		t.Errorf("alpha entries = %v, want keep.txt preserved", snap.Entries)
	}
	if err := m.Remove(ctx, "gamma"); err != nil {
		t.Errorf("Remove(gamma): %v", err)
	}
}
