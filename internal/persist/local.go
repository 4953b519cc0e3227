package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fruitsalade/explorer/pkg/models"
)

const snapshotExt = ".json"

// LocalStore keeps one JSON document per workspace under a root directory.
type LocalStore struct {
	root string
}

// NewLocal creates a local store rooted at root, creating the directory if
// needed.
func NewLocal(root string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("local storage path is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat root path %s: %w", root, err)
		}
		if err := os.MkdirAll(root, 0755); err != nil {
			return nil, fmt.Errorf("create root path %s: %w", root, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", root)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) file(workspace string) string {
	return filepath.Join(s.root, workspace+snapshotExt)
}

func (s *LocalStore) Load(_ context.Context, workspace string) (snap *models.Snapshot, err error) {
	defer func(start time.Time) { observe("local", "load", start, err) }(time.Now())
	if err := ValidateWorkspaceName(workspace); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.file(workspace))
	if os.IsNotExist(err) {
		return emptySnapshot(workspace), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read workspace %s: %w", workspace, err)
	}
	snap = &models.Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("decode workspace %s: %w", workspace, err)
	}
	snap.Workspace = workspace
	return snap, nil
}

// Save writes the snapshot to a temp file, then renames it into place.
func (s *LocalStore) Save(_ context.Context, snap *models.Snapshot) (err error) {
	defer func(start time.Time) { observe("local", "save", start, err) }(time.Now())
	if err := ValidateWorkspaceName(snap.Workspace); err != nil {
		return err
	}

	out := cloneSnapshot(snap)
	if out.SavedAt.IsZero() {
		out.SavedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode workspace %s: %w", snap.Workspace, err)
	}

	tmp, err := os.CreateTemp(s.root, ".explorer-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", snap.Workspace, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", snap.Workspace, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", snap.Workspace, err)
	}
	if err := os.Rename(tmpName, s.file(snap.Workspace)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", snap.Workspace, err)
	}
	return nil
}

func (s *LocalStore) Delete(_ context.Context, workspace string) (err error) {
	defer func(start time.Time) { observe("local", "delete", start, err) }(time.Now())
	if err := ValidateWorkspaceName(workspace); err != nil {
		return err
	}
	if err := os.Remove(s.file(workspace)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete workspace %s: %w", workspace, err)
	}
	return nil
}

func (s *LocalStore) List(_ context.Context) (names []string, err error) {
	defer func(start time.Time) { observe("local", "list", start, err) }(time.Now())
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.root, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(name, snapshotExt))
	}
	sort.Strings(names)
	return names, nil
}

func (s *LocalStore) Type() string { return "local" }

func (s *LocalStore) Close() error { return nil }
