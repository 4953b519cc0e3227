// Package models contains the data types shared by the explorer packages.
package models

import "time"

// Kind distinguishes files from folders.
type Kind int

const (
	KindFile Kind = iota
	KindFolder
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindFolder:
		return "folder"
	default:
		return "unknown"
	}
}

// ParseKind parses "file" or "folder" (also "dir").
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "file", "f":
		return KindFile, true
	case "folder", "dir", "d":
		return KindFolder, true
	default:
		return KindFile, false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, ok := ParseKind(string(b))
	if !ok {
		return &PathError{Op: "kind", Path: string(b), Err: ErrInvalidKind}
	}
	*k = parsed
	return nil
}

// Node represents a file or folder in a workspace.
type Node struct {
	Path   string `json:"path"`
	Kind   Kind   `json:"kind"`
	IsOpen bool   `json:"is_open,omitempty"`
}

// IsDir reports whether the node is a folder.
func (n *Node) IsDir() bool {
	return n.Kind == KindFolder
}

// Entry is one persisted (path, kind) pair.
type Entry struct {
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
}

// Snapshot is the serializable form of a workspace tree. Open flags and
// selection are session-only and never part of a snapshot.
type Snapshot struct {
	Workspace string    `json:"workspace"`
	Entries   []Entry   `json:"entries"`
	SavedAt   time.Time `json:"saved_at,omitempty"`
}

// IsEmpty reports whether the snapshot holds no entries.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.Entries) == 0
}

// ViewNode is a rendered, nested view of a tree used by the UI layer.
type ViewNode struct {
	Path            string      `json:"path"`
	Name            string      `json:"name"`
	Kind            Kind        `json:"kind"`
	Depth           int         `json:"depth"`
	IsOpen          bool        `json:"is_open,omitempty"`
	Selected        bool        `json:"selected,omitempty"`
	ContextSelected bool        `json:"ctx_selected,omitempty"`
	Children        []*ViewNode `json:"children,omitempty"`
}
