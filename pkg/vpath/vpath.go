// Package vpath parses and manipulates workspace-relative virtual paths.
//
// A canonical path is slash-delimited and relative to the workspace root:
// no leading slash, no empty, "." or ".." segments, no trailing slash on
// files and exactly one trailing slash on folders. The root itself is the
// empty string. Two paths are equal iff their canonical forms are equal.
package vpath

import (
	"strings"
	"unicode"

	"github.com/fruitsalade/explorer/pkg/models"
)

// Root is the canonical path of the workspace root.
const Root = ""

// Sep is the path separator.
const Sep = "/"

const maxNameLen = 255

// disallowed holds characters rejected in item names.
const disallowed = `\<>:"|?*`

// Rules configures normalization.
type Rules struct {
	// FoldCase lower-cases every segment.
	FoldCase bool
	// Reserved names are rejected as path segments (compared after folding).
	Reserved []string
}

// Default is used by the package-level functions.
var Default = Rules{}

// Normalize returns the canonical form of raw for a node of the given kind.
func Normalize(raw string, kind models.Kind) (string, error) {
	return Default.Normalize(raw, kind)
}

// NormalizeAny infers the kind from a trailing separator and normalizes.
func NormalizeAny(raw string) (string, models.Kind, error) {
	return Default.NormalizeAny(raw)
}

// Normalize returns the canonical form of raw for a node of the given kind.
func (r Rules) Normalize(raw string, kind models.Kind) (string, error) {
	segs := make([]string, 0, strings.Count(raw, Sep)+1)
	for _, seg := range strings.Split(raw, Sep) {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(segs) == 0 {
				return "", models.NewPathError("normalize", raw, models.ErrInvalidPath)
			}
			segs = segs[:len(segs)-1]
			continue
		}
		if r.FoldCase {
			seg = strings.ToLower(seg)
		}
		if r.isReserved(seg) {
			return "", models.NewPathError("normalize", raw, models.ErrInvalidPath)
		}
		segs = append(segs, seg)
	}

	if len(segs) == 0 {
		if kind == models.KindFolder {
			return Root, nil
		}
		return "", models.NewPathError("normalize", raw, models.ErrInvalidPath)
	}

	p := strings.Join(segs, Sep)
	if kind == models.KindFolder {
		p += Sep
	}
	return p, nil
}

// NormalizeAny infers the kind from a trailing separator and normalizes.
// An empty or all-separator input resolves to the root folder.
func (r Rules) NormalizeAny(raw string) (string, models.Kind, error) {
	kind := models.KindFile
	last := raw[strings.LastIndex(raw, Sep)+1:]
	if last == "" || last == "." || last == ".." {
		kind = models.KindFolder
	}
	p, err := r.Normalize(raw, kind)
	return p, kind, err
}

func (r Rules) isReserved(seg string) bool {
	for _, name := range r.Reserved {
		if r.FoldCase {
			name = strings.ToLower(name)
		}
		if seg == name {
			return true
		}
	}
	return false
}

// IsEqual compares two canonical paths.
func IsEqual(a, b string) bool {
	return a == b
}

// IsFolder reports whether p is a canonical folder path (or the root).
func IsFolder(p string) bool {
	return p == Root || strings.HasSuffix(p, Sep)
}

// KindOf returns the kind encoded in a canonical path.
func KindOf(p string) models.Kind {
	if IsFolder(p) {
		return models.KindFolder
	}
	return models.KindFile
}

// Parent returns the folder containing p. The root has no parent.
func Parent(p string) (string, bool) {
	if p == Root {
		return Root, false
	}
	trimmed := strings.TrimSuffix(p, Sep)
	i := strings.LastIndex(trimmed, Sep)
	if i < 0 {
		return Root, true
	}
	return trimmed[:i+1], true
}

// Depth returns the number of segments from the root (root = 0).
func Depth(p string) int {
	if p == Root {
		return 0
	}
	return strings.Count(strings.TrimSuffix(p, Sep), Sep) + 1
}

// ItemName returns the last segment of p without a trailing separator.
func ItemName(p string) string {
	trimmed := strings.TrimSuffix(p, Sep)
	if i := strings.LastIndex(trimmed, Sep); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// Append joins segment onto base and normalizes the result.
func Append(base, segment string, kind models.Kind) (string, error) {
	return Default.Append(base, segment, kind)
}

// Append joins segment onto base and normalizes the result.
func (r Rules) Append(base, segment string, kind models.Kind) (string, error) {
	if base == Root {
		return r.Normalize(segment, kind)
	}
	return r.Normalize(strings.TrimSuffix(base, Sep)+Sep+segment, kind)
}

// Ancestors returns the folders containing p, nearest first, ending with
// the root.
func Ancestors(p string) []string {
	var out []string
	for {
		parent, ok := Parent(p)
		if !ok {
			return out
		}
		out = append(out, parent)
		p = parent
	}
}

// IsAncestor reports whether folder anc strictly contains p.
func IsAncestor(anc, p string) bool {
	if anc == Root {
		return p != Root
	}
	return IsFolder(anc) && p != anc && strings.HasPrefix(p, anc)
}

// Rebase replaces the from prefix of p with to. p must equal from or be a
// descendant of it.
func Rebase(p, from, to string) string {
	if p == from {
		return to
	}
	return to + strings.TrimPrefix(p, from)
}

// ValidateName checks an item name supplied by a user, e.g. on rename.
func ValidateName(name string) error {
	return Default.ValidateName(name)
}

// ValidateName checks an item name supplied by a user, e.g. on rename.
func (r Rules) ValidateName(name string) error {
	invalid := models.NewPathError("validate name", name, models.ErrInvalidPath)
	if name == "" || name == "." || name == ".." || len(name) > maxNameLen {
		return invalid
	}
	if strings.TrimSpace(name) != name {
		return invalid
	}
	for _, c := range name {
		if c == '/' || unicode.IsControl(c) || strings.ContainsRune(disallowed, c) {
			return invalid
		}
	}
	check := name
	if r.FoldCase {
		check = strings.ToLower(check)
	}
	if r.isReserved(check) {
		return invalid
	}
	return nil
}
