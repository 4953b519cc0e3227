// Package tree provides the in-memory, path-keyed store of one workspace.
//
// A Tree holds every node of a workspace indexed by canonical path, plus an
// adjacency map from each folder to its direct children. Both are updated
// together by every mutation, so listing a folder never scans the whole
// workspace. Mutations validate fully before touching state: a failed call
// leaves the tree unchanged.
//
// A Tree is not safe for concurrent use; the workspace manager serializes
// access.
package tree

import (
	"fmt"
	"sort"

	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/vpath"
)

// Rewrite records a path change caused by a move.
type Rewrite struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type cursor struct {
	path string
	set  bool
}

// Tree is the store of one workspace.
type Tree struct {
	nodes    map[string]*models.Node
	children map[string]map[string]struct{}
	rules    vpath.Rules

	selected    cursor
	ctxSelected cursor
}

// New returns a tree holding only the root folder, using the default path
// rules.
func New() *Tree {
	return NewWithRules(vpath.Default)
}

// NewWithRules returns an empty tree whose raw path arguments are
// normalized with rules.
func NewWithRules(rules vpath.Rules) *Tree {
	t := &Tree{
		nodes:    make(map[string]*models.Node),
		children: make(map[string]map[string]struct{}),
		rules:    rules,
	}
	t.nodes[vpath.Root] = &models.Node{Path: vpath.Root, Kind: models.KindFolder, IsOpen: true}
	t.children[vpath.Root] = make(map[string]struct{})
	return t
}

// FromSnapshot rebuilds a tree from persisted entries. Missing ancestor
// folders are created; open flags start closed.
func FromSnapshot(snap *models.Snapshot, rules vpath.Rules) (*Tree, error) {
	t := NewWithRules(rules)
	if snap.IsEmpty() {
		return t, nil
	}
	entries := make([]models.Entry, len(snap.Entries))
	copy(entries, snap.Entries)
	sort.Slice(entries, func(i, j int) bool {
		return vpath.Depth(entries[i].Path) < vpath.Depth(entries[j].Path)
	})
	for _, e := range entries {
		if err := t.AddAll(e.Path, e.Kind); err != nil {
			return nil, fmt.Errorf("load %s: %w", e.Path, err)
		}
	}
	return t, nil
}

// Snapshot returns the persisted form of the tree, entries sorted by path.
func (t *Tree) Snapshot(workspace string) *models.Snapshot {
	snap := &models.Snapshot{Workspace: workspace, Entries: make([]models.Entry, 0, t.Len())}
	for p, n := range t.nodes {
		if p == vpath.Root {
			continue
		}
		snap.Entries = append(snap.Entries, models.Entry{Path: p, Kind: n.Kind})
	}
	sort.Slice(snap.Entries, func(i, j int) bool {
		return snap.Entries[i].Path < snap.Entries[j].Path
	})
	return snap
}

// Rules returns the path rules the tree normalizes with.
func (t *Tree) Rules() vpath.Rules {
	return t.rules
}

// Len returns the number of nodes, not counting the root.
func (t *Tree) Len() int {
	return len(t.nodes) - 1
}

// Resolve maps a raw path to the canonical path of an existing node. A path
// without a trailing separator also matches a folder of that name.
func (t *Tree) Resolve(raw string) (string, error) {
	p, kind, err := t.rules.NormalizeAny(raw)
	if err != nil {
		return "", err
	}
	if _, ok := t.nodes[p]; ok {
		return p, nil
	}
	if kind == models.KindFile {
		if _, ok := t.nodes[p+vpath.Sep]; ok {
			return p + vpath.Sep, nil
		}
	}
	return "", models.NewPathError("resolve", raw, models.ErrNotFound)
}

// Get returns a copy of the node at p.
func (t *Tree) Get(p string) (models.Node, bool) {
	n, ok := t.nodes[p]
	if !ok {
		return models.Node{}, false
	}
	return *n, true
}

// Exists reports whether a node exists at canonical path p.
func (t *Tree) Exists(p string) bool {
	_, ok := t.nodes[p]
	return ok
}

// IsFolder reports whether p is an existing folder.
func (t *Tree) IsFolder(p string) bool {
	n, ok := t.nodes[p]
	return ok && n.Kind == models.KindFolder
}

// ListChildren returns the direct children of a folder, files and folders
// separately, each sorted by item name.
func (t *Tree) ListChildren(folder string) (files, folders []string, err error) {
	p, err := t.Resolve(folder)
	if err != nil {
		return nil, nil, models.NewPathError("list", folder, models.ErrNotFound)
	}
	if !t.IsFolder(p) {
		return nil, nil, models.NewPathError("list", folder, models.ErrNotFound)
	}
	for child := range t.children[p] {
		if t.nodes[child].Kind == models.KindFolder {
			folders = append(folders, child)
		} else {
			files = append(files, child)
		}
	}
	sortByName(files)
	sortByName(folders)
	return files, folders, nil
}

func sortByName(paths []string) {
	sort.Slice(paths, func(i, j int) bool {
		a, b := vpath.ItemName(paths[i]), vpath.ItemName(paths[j])
		if a == b {
			return paths[i] < paths[j]
		}
		return a < b
	})
}

// Add creates a node. The parent folder must exist.
func (t *Tree) Add(raw string, kind models.Kind) error {
	p, err := t.rules.Normalize(raw, kind)
	if err != nil {
		return err
	}
	if p == vpath.Root {
		return models.NewPathError("add", raw, models.ErrAlreadyExists)
	}
	if err := t.checkFree("add", p); err != nil {
		return err
	}
	parent, _ := vpath.Parent(p)
	if !t.IsFolder(parent) {
		return models.NewPathError("add", p, models.ErrNotFound)
	}
	t.insert(p, kind)
	return nil
}

// AddAll creates a node and any missing ancestor folders. It is a no-op if
// a node of the same kind already exists at the path.
func (t *Tree) AddAll(raw string, kind models.Kind) error {
	p, err := t.rules.Normalize(raw, kind)
	if err != nil {
		return err
	}
	if n, ok := t.nodes[p]; ok {
		if n.Kind != kind {
			return models.NewPathError("add", p, models.ErrAlreadyExists)
		}
		return nil
	}
	if err := t.checkFree("add", p); err != nil {
		return err
	}
	ancestors := vpath.Ancestors(p)
	for i := len(ancestors) - 1; i >= 0; i-- {
		a := ancestors[i]
		if t.IsFolder(a) {
			continue
		}
		if err := t.checkFree("add", a); err != nil {
			return err
		}
	}
	for i := len(ancestors) - 1; i >= 0; i-- {
		if !t.Exists(ancestors[i]) {
			t.insert(ancestors[i], models.KindFolder)
		}
	}
	t.insert(p, kind)
	return nil
}

// checkFree fails if p, or p in the other kind's form, is taken. A file
// "a" and a folder "a/" cannot coexist.
func (t *Tree) checkFree(op, p string) error {
	if t.Exists(p) {
		return models.NewPathError(op, p, models.ErrAlreadyExists)
	}
	if t.Exists(twin(p)) {
		return models.NewPathError(op, p, models.ErrAlreadyExists)
	}
	return nil
}

// twin returns the path of the same name with the other kind.
func twin(p string) string {
	if vpath.IsFolder(p) {
		return p[:len(p)-1]
	}
	return p + vpath.Sep
}

func (t *Tree) insert(p string, kind models.Kind) {
	t.nodes[p] = &models.Node{Path: p, Kind: kind}
	if kind == models.KindFolder {
		t.children[p] = make(map[string]struct{})
	}
	parent, _ := vpath.Parent(p)
	t.children[parent][p] = struct{}{}
}

// Remove deletes a node and, for folders, its whole subtree. It returns the
// removed paths, deepest first.
func (t *Tree) Remove(raw string) ([]string, error) {
	p, err := t.Resolve(raw)
	if err != nil {
		return nil, err
	}
	if p == vpath.Root {
		return nil, models.NewPathError("remove", raw, models.ErrInvalidPath)
	}
	removed := t.subtree(p)
	for i := len(removed) - 1; i >= 0; i-- {
		q := removed[i]
		delete(t.nodes, q)
		delete(t.children, q)
		parent, _ := vpath.Parent(q)
		if set, ok := t.children[parent]; ok {
			delete(set, q)
		}
		t.dropCursors(q)
	}
	out := make([]string, len(removed))
	for i := range removed {
		out[i] = removed[len(removed)-1-i]
	}
	return out, nil
}

// subtree returns p and its descendants, parents before children.
func (t *Tree) subtree(p string) []string {
	out := []string{p}
	for i := 0; i < len(out); i++ {
		for child := range t.children[out[i]] {
			out = append(out, child)
		}
	}
	return out
}

func (t *Tree) dropCursors(p string) {
	if t.selected.set && t.selected.path == p {
		t.selected = cursor{}
	}
	if t.ctxSelected.set && t.ctxSelected.path == p {
		t.ctxSelected = cursor{}
	}
}

// Toggle flips the open flag of a folder and returns the new state.
func (t *Tree) Toggle(raw string) (bool, error) {
	p, err := t.Resolve(raw)
	if err != nil {
		return false, err
	}
	n := t.nodes[p]
	if n.Kind != models.KindFolder {
		return false, models.NewPathError("toggle", p, models.ErrInvalidKind)
	}
	n.IsOpen = !n.IsOpen
	return n.IsOpen, nil
}

// IsOpen reports whether p is an open folder. The root is always open.
func (t *Tree) IsOpen(p string) bool {
	n, ok := t.nodes[p]
	return ok && n.IsOpen
}

// CollapseAll closes every folder. Membership is unaffected.
func (t *Tree) CollapseAll() {
	for p, n := range t.nodes {
		if n.Kind == models.KindFolder && p != vpath.Root {
			n.IsOpen = false
		}
	}
}

// OpenAncestors opens every folder containing p so that p is visible.
func (t *Tree) OpenAncestors(raw string) error {
	p, err := t.Resolve(raw)
	if err != nil {
		return err
	}
	for _, a := range vpath.Ancestors(p) {
		t.nodes[a].IsOpen = true
	}
	return nil
}

// SetSelected moves the primary selection cursor to p.
func (t *Tree) SetSelected(raw string) error {
	p, err := t.Resolve(raw)
	if err != nil {
		return err
	}
	t.selected = cursor{path: p, set: true}
	return nil
}

// Selected returns the primary selection.
func (t *Tree) Selected() (string, bool) {
	return t.selected.path, t.selected.set
}

// SetContextSelected moves the context-menu cursor to p.
func (t *Tree) SetContextSelected(raw string) error {
	p, err := t.Resolve(raw)
	if err != nil {
		return err
	}
	t.ctxSelected = cursor{path: p, set: true}
	return nil
}

// ContextSelected returns the context-menu selection.
func (t *Tree) ContextSelected() (string, bool) {
	return t.ctxSelected.path, t.ctxSelected.set
}

// ClearContextSelected clears the context-menu cursor.
func (t *Tree) ClearContextSelected() {
	t.ctxSelected = cursor{}
}

// ClearSelection clears both cursors.
func (t *Tree) ClearSelection() {
	t.selected = cursor{}
	t.ctxSelected = cursor{}
}

// Relocate moves the node at from, with its subtree, to to. Both must be
// canonical and of the same kind. Open flags and cursors follow the moved
// nodes. Callers wanting user-facing policy (drop rules, name checks) use
// the move package; Relocate only guards the tree invariants.
func (t *Tree) Relocate(from, to string) ([]Rewrite, error) {
	if from == vpath.Root || to == vpath.Root {
		return nil, models.NewPathError("relocate", from, models.ErrInvalidPath)
	}
	if !t.Exists(from) {
		return nil, models.NewPathError("relocate", from, models.ErrNotFound)
	}
	if vpath.IsFolder(from) != vpath.IsFolder(to) {
		return nil, models.NewPathError("relocate", to, models.ErrInvalidKind)
	}
	if from == to {
		return nil, nil
	}
	if vpath.IsAncestor(from, to) {
		return nil, models.NewPathError("relocate", to, models.ErrCyclicMove)
	}
	if err := t.checkFree("relocate", to); err != nil {
		return nil, err
	}
	parent, _ := vpath.Parent(to)
	if !t.IsFolder(parent) {
		return nil, models.NewPathError("relocate", to, models.ErrNotFound)
	}

	moved := t.subtree(from)
	rewrites := make([]Rewrite, len(moved))
	old := make([]*models.Node, len(moved))
	for i, p := range moved {
		rewrites[i] = Rewrite{From: p, To: vpath.Rebase(p, from, to)}
		old[i] = t.nodes[p]
	}

	oldParent, _ := vpath.Parent(from)
	delete(t.children[oldParent], from)
	for _, p := range moved {
		delete(t.nodes, p)
		delete(t.children, p)
	}
	for i, rw := range rewrites {
		t.nodes[rw.To] = &models.Node{Path: rw.To, Kind: old[i].Kind, IsOpen: old[i].IsOpen}
		if old[i].Kind == models.KindFolder {
			t.children[rw.To] = make(map[string]struct{})
		}
		p, _ := vpath.Parent(rw.To)
		t.children[p][rw.To] = struct{}{}
	}

	for _, rw := range rewrites {
		if t.selected.set && t.selected.path == rw.From {
			t.selected.path = rw.To
		}
		if t.ctxSelected.set && t.ctxSelected.path == rw.From {
			t.ctxSelected.path = rw.To
		}
	}
	return rewrites, nil
}

// Nodes returns copies of all nodes except the root, sorted by path.
func (t *Tree) Nodes() []models.Node {
	out := make([]models.Node, 0, t.Len())
	for p, n := range t.nodes {
		if p != vpath.Root {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Walk visits every node below folder in display order: folders first, then
// files, each sorted by name. Returning a non-nil error stops the walk.
func (t *Tree) Walk(folder string, fn func(n models.Node, depth int) error) error {
	p, err := t.Resolve(folder)
	if err != nil {
		return err
	}
	return t.walk(p, fn)
}

func (t *Tree) walk(folder string, fn func(n models.Node, depth int) error) error {
	files, folders, err := t.ListChildren(folder)
	if err != nil {
		return err
	}
	for _, f := range folders {
		if err := fn(*t.nodes[f], vpath.Depth(f)); err != nil {
			return err
		}
		if err := t.walk(f, fn); err != nil {
			return err
		}
	}
	for _, f := range files {
		if err := fn(*t.nodes[f], vpath.Depth(f)); err != nil {
			return err
		}
	}
	return nil
}

// Check verifies the tree invariants.
func (t *Tree) Check() error {
	root, ok := t.nodes[vpath.Root]
	if !ok || root.Kind != models.KindFolder {
		return fmt.Errorf("root folder missing")
	}
	for p, n := range t.nodes {
		if n.Path != p {
			return fmt.Errorf("node %q indexed under %q", n.Path, p)
		}
		if vpath.KindOf(p) != n.Kind {
			return fmt.Errorf("node %q has kind %v", p, n.Kind)
		}
		if p != vpath.Root && t.Exists(twin(p)) {
			return fmt.Errorf("node %q collides with %q", p, twin(p))
		}
		_, hasSet := t.children[p]
		if hasSet != (n.Kind == models.KindFolder) {
			return fmt.Errorf("node %q child set mismatch", p)
		}
		if p == vpath.Root {
			continue
		}
		parent, _ := vpath.Parent(p)
		if !t.IsFolder(parent) {
			return fmt.Errorf("node %q orphaned: parent %q missing", p, parent)
		}
		if _, listed := t.children[parent][p]; !listed {
			return fmt.Errorf("node %q not listed under %q", p, parent)
		}
	}
	for folder, set := range t.children {
		if !t.IsFolder(folder) {
			return fmt.Errorf("child set for missing folder %q", folder)
		}
		for child := range set {
			parent, _ := vpath.Parent(child)
			if !t.Exists(child) || parent != folder {
				return fmt.Errorf("folder %q lists stray child %q", folder, child)
			}
		}
	}
	for _, c := range []cursor{t.selected, t.ctxSelected} {
		if c.set && !t.Exists(c.path) {
			return fmt.Errorf("cursor references missing %q", c.path)
		}
	}
	return nil
}
