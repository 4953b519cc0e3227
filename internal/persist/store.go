// Package persist stores workspace snapshots.
//
// A Store holds one snapshot per named workspace. Backends cover an
// in-process map, JSON files on local disk, PostgreSQL, SQLite and S3
// compatible object storage. Open session state (open flags, selection)
// never reaches a store.
package persist

import (
	"context"
	"errors"
	"time"

	"github.com/fruitsalade/explorer/internal/metrics"
	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/vpath"
)

// Store is the persistence collaborator of the workspace manager.
type Store interface {
	// Load returns the snapshot of workspace. An unknown workspace yields
	// an empty snapshot, not an error.
	Load(ctx context.Context, workspace string) (*models.Snapshot, error)

	// Save replaces the stored snapshot of snap.Workspace. Saving an empty
	// snapshot registers the workspace.
	Save(ctx context.Context, snap *models.Snapshot) error

	// Delete removes a workspace. Deleting an unknown workspace is not an
	// error.
	Delete(ctx context.Context, workspace string) error

	// List returns the stored workspace names in sorted order.
	List(ctx context.Context) ([]string, error)

	// Type returns the backend identifier ("memory", "local", "postgres",
	// "sqlite", "s3").
	Type() string

	// Close releases any resources held by the store.
	Close() error
}

// ValidateWorkspaceName checks that name can be used as a workspace key in
// every backend.
func ValidateWorkspaceName(name string) error {
	if err := vpath.ValidateName(name); err != nil {
		return models.NewPathError("workspace", name, models.ErrInvalidWorkspaceName)
	}
	return nil
}

func emptySnapshot(workspace string) *models.Snapshot {
	return &models.Snapshot{Workspace: workspace, Entries: []models.Entry{}}
}

func cloneSnapshot(s *models.Snapshot) *models.Snapshot {
	out := &models.Snapshot{Workspace: s.Workspace, SavedAt: s.SavedAt}
	out.Entries = append(make([]models.Entry, 0, len(s.Entries)), s.Entries...)
	return out
}

func observe(backend, op string, start time.Time, err error) {
	ok := err == nil || errors.Is(err, models.ErrWorkspaceNotFound)
	metrics.RecordStoreOperation(backend, op, time.Since(start), ok)
}
