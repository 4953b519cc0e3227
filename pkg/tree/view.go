package tree

import (
	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/vpath"
)

// View renders the subtree under folder as nested view nodes carrying open
// flags, depth and cursor markers.
func (t *Tree) View(folder string) (*models.ViewNode, error) {
	p, err := t.Resolve(folder)
	if err != nil {
		return nil, err
	}
	return t.view(p)
}

func (t *Tree) view(p string) (*models.ViewNode, error) {
	n := t.nodes[p]
	v := &models.ViewNode{
		Path:            p,
		Name:            vpath.ItemName(p),
		Kind:            n.Kind,
		Depth:           vpath.Depth(p),
		IsOpen:          n.IsOpen,
		Selected:        t.selected.set && t.selected.path == p,
		ContextSelected: t.ctxSelected.set && t.ctxSelected.path == p,
	}
	if n.Kind != models.KindFolder {
		return v, nil
	}
	files, folders, err := t.ListChildren(p)
	if err != nil {
		return nil, err
	}
	for _, f := range folders {
		child, err := t.view(f)
		if err != nil {
			return nil, err
		}
		v.Children = append(v.Children, child)
	}
	for _, f := range files {
		child, err := t.view(f)
		if err != nil {
			return nil, err
		}
		v.Children = append(v.Children, child)
	}
	return v, nil
}

// CountNodes counts the nodes of a view, including v itself.
func CountNodes(v *models.ViewNode) int {
	if v == nil {
		return 0
	}
	count := 1
	for _, child := range v.Children {
		count += CountNodes(child)
	}
	return count
}
