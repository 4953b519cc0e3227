package workspace

import (
	"context"
	"strings"

	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/tree"
)

// Section is a display group of top-level folders.
type Section string

const (
	SectionProgram Section = "Program"
	SectionClient  Section = "Client"
	SectionTests   Section = "Tests"
	SectionOther   Section = "Other"
)

var sectionRoots = map[Section]string{
	SectionProgram: "src/",
	SectionClient:  "client/",
	SectionTests:   "tests/",
}

// Actions run by the command-execution collaborator on a section root.
var sectionActions = map[Section]string{
	SectionProgram: "build",
	SectionClient:  "run",
	SectionTests:   "test",
}

// ParseSection parses a section name, case-insensitively.
func ParseSection(s string) (Section, bool) {
	for _, sec := range []Section{SectionProgram, SectionClient, SectionTests, SectionOther} {
		if strings.EqualFold(s, string(sec)) {
			return sec, true
		}
	}
	return "", false
}

// SectionRoot returns the well-known folder of a section. Other has none.
func SectionRoot(s Section) (string, bool) {
	root, ok := sectionRoots[s]
	return root, ok
}

// SectionGroup lists the top-level entries shown under one section.
type SectionGroup struct {
	Section Section `json:"section"`
	// Root is the section's well-known folder; empty for Other.
	Root string `json:"root,omitempty"`
	// Present reports whether Root exists. The UI offers "Add" when false.
	Present bool `json:"present"`
	// Action is what the section button runs once Root exists.
	Action  string   `json:"action,omitempty"`
	Folders []string `json:"folders"`
	Files   []string `json:"files,omitempty"`
}

// Sections groups the top-level entries of the active workspace into
// Program, Client, Tests and Other, in that order.
func (m *Manager) Sections() ([]SectionGroup, error) {
	var groups []SectionGroup
	err := m.View(func(_ string, t *tree.Tree) error {
		var err error
		groups, err = sections(t)
		return err
	})
	return groups, err
}

func sections(t *tree.Tree) ([]SectionGroup, error) {
	files, folders, err := t.ListChildren("")
	if err != nil {
		return nil, err
	}

	var groups []SectionGroup
	known := make(map[string]bool)
	for _, sec := range []Section{SectionProgram, SectionClient, SectionTests} {
		root := sectionRoots[sec]
		g := SectionGroup{Section: sec, Root: root, Folders: []string{}}
		if t.IsFolder(root) {
			g.Present = true
			g.Action = sectionActions[sec]
			g.Folders = append(g.Folders, root)
		}
		known[root] = true
		groups = append(groups, g)
	}

	other := SectionGroup{Section: SectionOther, Present: true, Folders: []string{}, Files: files}
	for _, f := range folders {
		if !known[f] {
			other.Folders = append(other.Folders, f)
		}
	}
	return append(groups, other), nil
}

// AddSection creates the well-known folder of a section.
func (m *Manager) AddSection(ctx context.Context, s Section) (string, error) {
	root, ok := SectionRoot(s)
	if !ok {
		return "", models.NewPathError("add_section", string(s), models.ErrInvalidTarget)
	}
	return m.AddFolder(ctx, root)
}
