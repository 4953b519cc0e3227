package api

import (
	"net/http"

	"github.com/fruitsalade/explorer/internal/workspace"
	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/tree"
	"github.com/fruitsalade/explorer/pkg/vpath"
)

// ─── Workspaces ─────────────────────────────────────────────────────────────

type workspacesResponse struct {
	Workspaces []string `json:"workspaces"`
	Active     string   `json:"active,omitempty"`
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	names, err := s.manager.List(r.Context())
	if err != nil {
		s.sendOpError(w, r, err)
		return
	}
	active, _ := s.manager.Active()
	s.sendJSON(w, r, http.StatusOK, workspacesResponse{Workspaces: names, Active: active})
}

func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.manager.Create(r.Context(), req.Name); err != nil {
		s.sendOpError(w, r, err)
		return
	}
	s.sendJSON(w, r, http.StatusCreated, map[string]string{"name": req.Name})
}

func (s *Server) handleRemoveWorkspace(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Remove(r.Context(), r.PathValue("name")); err != nil {
		s.sendOpError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSwitch switches the active workspace. With an "open" path in the
// body the file is revealed in the same step.
func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Open string `json:"open"`
	}
	if r.ContentLength > 0 {
		if err := decode(r, &req); err != nil {
			s.sendError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	name := r.PathValue("name")
	var err error
	if req.Open != "" {
		_, err = s.manager.SwitchAndOpen(r.Context(), name, req.Open)
	} else {
		err = s.manager.SwitchTo(r.Context(), name)
	}
	if err != nil {
		s.sendOpError(w, r, err)
		return
	}
	s.sendJSON(w, r, http.StatusOK, map[string]string{"active": name, "opened": req.Open})
}

// ─── Tree reads ─────────────────────────────────────────────────────────────

type treeResponse struct {
	Workspace       string           `json:"workspace"`
	Root            *models.ViewNode `json:"root"`
	Count           int              `json:"count"`
	Selected        string           `json:"selected,omitempty"`
	ContextSelected string           `json:"ctx_selected,omitempty"`
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	var resp treeResponse
	err := s.manager.View(func(ws string, t *tree.Tree) error {
		p, err := t.Resolve(r.URL.Query().Get("path"))
		if err != nil {
			return err
		}
		root, err := t.View(p)
		if err != nil {
			return err
		}
		resp = treeResponse{Workspace: ws, Root: root, Count: tree.CountNodes(root)}
		resp.Selected, _ = t.Selected()
		resp.ContextSelected, _ = t.ContextSelected()
		return nil
	})
	if err != nil {
		s.sendOpError(w, r, err)
		return
	}
	s.sendJSON(w, r, http.StatusOK, resp)
}

type childrenResponse struct {
	Path    string   `json:"path"`
	Depth   int      `json:"depth"`
	Folders []string `json:"folders"`
	Files   []string `json:"files"`
}

func (s *Server) handleChildren(w http.ResponseWriter, r *http.Request) {
	var resp childrenResponse
	err := s.manager.View(func(_ string, t *tree.Tree) error {
		raw := r.URL.Query().Get("path")
		p, _, err := t.Rules().NormalizeAny(raw)
		if err != nil {
			return err
		}
		if p != vpath.Root && !vpath.IsFolder(p) {
			p += vpath.Sep
		}
		files, folders, err := t.ListChildren(p)
		if err != nil {
			return err
		}
		resp = childrenResponse{Path: p, Depth: vpath.Depth(p), Folders: folders, Files: files}
		return nil
	})
	if err != nil {
		s.sendOpError(w, r, err)
		return
	}
	if resp.Files == nil {
		resp.Files = []string{}
	}
	if resp.Folders == nil {
		resp.Folders = []string{}
	}
	s.sendJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleSections(w http.ResponseWriter, r *http.Request) {
	groups, err := s.manager.Sections()
	if err != nil {
		s.sendOpError(w, r, err)
		return
	}
	s.sendJSON(w, r, http.StatusOK, map[string]any{"sections": groups})
}

// ─── Tree writes ────────────────────────────────────────────────────────────

type pathRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
		Kind string `json:"kind"`
	}
	if err := decode(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	kind := vpath.KindOf(req.Path)
	if req.Kind != "" {
		k, ok := models.ParseKind(req.Kind)
		if !ok {
			s.sendError(w, http.StatusBadRequest, "kind must be file or folder")
			return
		}
		kind = k
	}

	var (
		p   string
		err error
	)
	if kind == models.KindFolder {
		p, err = s.manager.AddFolder(r.Context(), req.Path)
	} else {
		p, err = s.manager.AddFile(r.Context(), req.Path)
	}
	if err != nil {
		s.sendOpError(w, r, err)
		return
	}
	s.sendJSON(w, r, http.StatusCreated, map[string]string{"path": p, "kind": kind.String()})
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	removed, err := s.manager.Delete(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		s.sendOpError(w, r, err)
		return
	}
	s.sendJSON(w, r, http.StatusOK, map[string]any{"removed": removed})
}

// handleMove accepts either a drop ({"source", "destination"} folder) or a
// full-path move ({"source", "target"}).
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source      string `json:"source"`
		Destination string `json:"destination"`
		Target      string `json:"target"`
	}
	if err := decode(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Destination != "" && req.Target != "" {
		s.sendError(w, http.StatusBadRequest, "set either destination or target")
		return
	}

	var err error
	var res any
	if req.Target != "" {
		res, err = s.manager.Move(r.Context(), req.Source, req.Target)
	} else {
		res, err = s.manager.Drop(r.Context(), req.Source, req.Destination)
	}
	if err != nil {
		s.sendOpError(w, r, err)
		return
	}
	s.sendJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := s.manager.Rename(r.Context(), req.Path, req.Name)
	if err != nil {
		s.sendOpError(w, r, err)
		return
	}
	s.sendJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := decode(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	open, err := s.manager.Toggle(r.Context(), req.Path)
	if err != nil {
		s.sendOpError(w, r, err)
		return
	}
	s.sendJSON(w, r, http.StatusOK, map[string]any{"path": req.Path, "open": open})
}

// handleSelect handles clicks ({"path"}), context-menu targets
// ({"path", "context": true}) and clearing the context target
// ({"clear": true}).
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path    string `json:"path"`
		Context bool   `json:"context"`
		Clear   bool   `json:"clear"`
	}
	if err := decode(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var err error
	switch {
	case req.Clear:
		err = s.manager.ClearContextSelect(r.Context())
	case req.Context:
		err = s.manager.ContextSelect(r.Context(), req.Path)
	default:
		err = s.manager.Select(r.Context(), req.Path)
	}
	if err != nil {
		s.sendOpError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := decode(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := s.manager.OpenFile(r.Context(), req.Path)
	if err != nil {
		s.sendOpError(w, r, err)
		return
	}
	s.sendJSON(w, r, http.StatusOK, map[string]string{"path": p})
}

func (s *Server) handleAddSection(w http.ResponseWriter, r *http.Request) {
	sec, ok := workspace.ParseSection(r.PathValue("section"))
	if !ok {
		s.sendError(w, http.StatusNotFound, "unknown section: "+r.PathValue("section"))
		return
	}
	p, err := s.manager.AddSection(r.Context(), sec)
	if err != nil {
		s.sendOpError(w, r, err)
		return
	}
	s.sendJSON(w, r, http.StatusCreated, map[string]string{"section": string(sec), "path": p})
}
