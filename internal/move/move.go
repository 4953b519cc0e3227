// Package move validates and applies rename and move operations on a
// workspace tree.
//
// Drag-and-drop and rename share one path: the caller's input is reduced to
// a full destination path which is checked against the collision and cycle
// rules, then applied to the tree in one step. A rejected move never touches
// the tree.
package move

import (
	"github.com/fruitsalade/explorer/internal/events"
	"github.com/fruitsalade/explorer/internal/metrics"
	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/tree"
	"github.com/fruitsalade/explorer/pkg/vpath"
)

// Options adjusts validation.
type Options struct {
	// SkipNameValidation skips the item-name rules for trusted internal
	// callers (drops keep the source's existing name). Collisions are still
	// rejected.
	SkipNameValidation bool
}

// Result describes a completed move.
type Result struct {
	From     string         `json:"from"`
	To       string         `json:"to"`
	Rewrites []tree.Rewrite `json:"rewrites,omitempty"`
	// NoOp is set when the source already was at the destination.
	NoOp bool `json:"no_op,omitempty"`
}

// Engine applies moves and emits completion events.
type Engine struct {
	bus   *events.Bus
	rules vpath.Rules
}

// New creates an engine. bus may be nil.
func New(bus *events.Bus, rules vpath.Rules) *Engine {
	return &Engine{bus: bus, rules: rules}
}

// Drop moves source into the folder destination, keeping its name.
// Dropping onto itself or onto its current parent is a no-op.
func (e *Engine) Drop(workspace string, t *tree.Tree, source, destination string) (Result, error) {
	res, err := e.drop(workspace, t, source, destination)
	metrics.RecordTreeOperation("drop", err)
	return res, err
}

func (e *Engine) drop(workspace string, t *tree.Tree, source, destination string) (Result, error) {
	from, err := e.resolve(t, source)
	if err != nil {
		return Result{}, err
	}
	to, _, err := e.rules.NormalizeAny(destination)
	if err != nil {
		return Result{}, err
	}
	if resolved, rerr := t.Resolve(to); rerr == nil {
		to = resolved
	}
	if from == to {
		return Result{From: from, To: from, NoOp: true}, nil
	}
	if !t.IsFolder(to) {
		return Result{}, models.NewPathError("move", destination, models.ErrInvalidTarget)
	}

	candidate, err := e.rules.Append(to, vpath.ItemName(from), vpath.KindOf(from))
	if err != nil {
		return Result{}, err
	}
	return e.apply(workspace, t, from, candidate, Options{SkipNameValidation: true})
}

// MoveTo moves source to the full path target. The target's parent folder
// must exist.
func (e *Engine) MoveTo(workspace string, t *tree.Tree, source, target string, opts Options) (Result, error) {
	res, err := e.moveTo(workspace, t, source, target, opts)
	metrics.RecordTreeOperation("move", err)
	return res, err
}

func (e *Engine) moveTo(workspace string, t *tree.Tree, source, target string, opts Options) (Result, error) {
	from, err := e.resolve(t, source)
	if err != nil {
		return Result{}, err
	}
	to, err := e.rules.Normalize(target, vpath.KindOf(from))
	if err != nil {
		return Result{}, err
	}
	return e.apply(workspace, t, from, to, opts)
}

// Rename gives source a new name within its current folder.
func (e *Engine) Rename(workspace string, t *tree.Tree, source, newName string, opts Options) (Result, error) {
	res, err := e.rename(workspace, t, source, newName, opts)
	metrics.RecordTreeOperation("rename", err)
	return res, err
}

func (e *Engine) rename(workspace string, t *tree.Tree, source, newName string, opts Options) (Result, error) {
	from, err := e.resolve(t, source)
	if err != nil {
		return Result{}, err
	}
	if from == vpath.Root {
		return Result{}, models.NewPathError("rename", source, models.ErrInvalidPath)
	}
	if !opts.SkipNameValidation {
		if err := e.rules.ValidateName(newName); err != nil {
			return Result{}, err
		}
	}
	parent, _ := vpath.Parent(from)
	to, err := e.rules.Append(parent, newName, vpath.KindOf(from))
	if err != nil {
		return Result{}, err
	}
	return e.apply(workspace, t, from, to, opts)
}

// resolve normalizes raw with the engine's rules and maps it to an
// existing node.
func (e *Engine) resolve(t *tree.Tree, raw string) (string, error) {
	p, _, err := e.rules.NormalizeAny(raw)
	if err != nil {
		return "", err
	}
	return t.Resolve(p)
}

// apply runs the shared checks and relocates from to to.
func (e *Engine) apply(workspace string, t *tree.Tree, from, to string, opts Options) (Result, error) {
	if from == vpath.Root || to == vpath.Root {
		return Result{}, models.NewPathError("move", from, models.ErrInvalidPath)
	}
	if from == to {
		return Result{From: from, To: to, NoOp: true}, nil
	}
	if !opts.SkipNameValidation {
		if err := e.rules.ValidateName(vpath.ItemName(to)); err != nil {
			return Result{}, err
		}
	}
	if t.Exists(to) || t.Exists(twinOf(to)) {
		return Result{}, models.NewPathError("move", to, models.ErrAlreadyExists)
	}
	if vpath.IsAncestor(from, to) {
		return Result{}, models.NewPathError("move", to, models.ErrCyclicMove)
	}
	parent, _ := vpath.Parent(to)
	if !t.IsFolder(parent) {
		return Result{}, models.NewPathError("move", to, models.ErrInvalidTarget)
	}

	rewrites, err := t.Relocate(from, to)
	if err != nil {
		return Result{}, err
	}
	metrics.RecordMovedNodes(len(rewrites))

	res := Result{From: from, To: to, Rewrites: rewrites}
	if e.bus != nil {
		e.bus.EmitMove(events.MoveEvent{Workspace: workspace, From: from, To: to, Rewrites: rewrites})
	}
	return res, nil
}

func twinOf(p string) string {
	if vpath.IsFolder(p) {
		return p[:len(p)-1]
	}
	return p + vpath.Sep
}
