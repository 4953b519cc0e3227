package persist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/explorer/pkg/models"
)

func sample(name string) *models.Snapshot {
	return &models.Snapshot{
		Workspace: name,
		Entries: []models.Entry{
			{Path: "src/", Kind: models.KindFolder},
			{Path: "src/main.rs", Kind: models.KindFile},
			{Path: "tests/", Kind: models.KindFolder},
		},
	}
}

// exerciseStore runs the behavior every backend must share.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	snap, err := s.Load(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, "unknown", snap.Workspace)
	assert.True(t, snap.IsEmpty())

	require.NoError(t, s.Save(ctx, sample("beta")))
	require.NoError(t, s.Save(ctx, &models.Snapshot{Workspace: "alpha"}))

	names, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)

	got, err := s.Load(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, sample("beta").Entries, got.Entries)

	// Save replaces rather than merges.
	require.NoError(t, s.Save(ctx, &models.Snapshot{
		Workspace: "beta",
		Entries:   []models.Entry{{Path: "notes.txt", Kind: models.KindFile}},
	}))
	got, err = s.Load(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, []models.Entry{{Path: "notes.txt", Kind: models.KindFile}}, got.Entries)

	require.NoError(t, s.Delete(ctx, "beta"))
	require.NoError(t, s.Delete(ctx, "beta"))
	names, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, names)

	err = s.Save(ctx, &models.Snapshot{Workspace: "../escape"})
	assert.ErrorIs(t, err, models.ErrInvalidWorkspaceName)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemoryStoreCopies(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	snap := sample("ws")
	require.NoError(t, s.Save(ctx, snap))

	snap.Entries[0].Path = "changed/"
	got, err := s.Load(ctx, "ws")
	require.NoError(t, err)
	assert.Equal(t, "src/", got.Entries[0].Path)
}

func TestLocalStore(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestLocalStoreCreatesRoot(t *testing.T) {
	root := t.TempDir() + "/nested/workspaces"
	s, err := NewLocal(root)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), sample("ws")))
	assert.FileExists(t, root+"/ws.json")
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "sqlite", s.Type())
	exerciseStore(t, s)
}

func TestPlaceholderRewrite(t *testing.T) {
	pg := &SQLStore{dialect: "postgres"}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.q("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &SQLStore{dialect: "sqlite"}
	assert.Equal(t, "WHERE x = ?", lite.q("WHERE x = ?"))
}

type flakyStore struct {
	*MemoryStore
	failures int
	calls    int
	err      error
}

func (f *flakyStore) Save(ctx context.Context, snap *models.Snapshot) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return f.MemoryStore.Save(ctx, snap)
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1}
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{MemoryStore: NewMemory(), failures: 2, err: errors.New("connection reset")}
	s := WithRetry(flaky, fastRetry(3))

	require.NoError(t, s.Save(ctx, sample("ws")))
	assert.Equal(t, 3, flaky.calls)
	assert.Equal(t, "memory", s.Type())

	flaky = &flakyStore{MemoryStore: NewMemory(), failures: 5, err: errors.New("connection reset")}
	s = WithRetry(flaky, fastRetry(2))
	assert.EqualError(t, s.Save(ctx, sample("ws")), "connection reset")
	assert.Equal(t, 2, flaky.calls)
}

func TestWithRetryPermanent(t *testing.T) {
	flaky := &flakyStore{
		MemoryStore: NewMemory(),
		failures:    5,
		err:         models.NewPathError("workspace", "x", models.ErrInvalidWorkspaceName),
	}
	s := WithRetry(flaky, fastRetry(4))
	err := s.Save(context.Background(), sample("ws"))
	assert.ErrorIs(t, err, models.ErrInvalidWorkspaceName)
	assert.Equal(t, 1, flaky.calls)
}

func TestWithRetryCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	flaky := &flakyStore{MemoryStore: NewMemory(), failures: 5, err: errors.New("timeout")}
	s := WithRetry(flaky, RetryConfig{MaxAttempts: 5, InitialWait: time.Hour})
	assert.ErrorIs(t, s.Save(ctx, sample("ws")), context.Canceled)
	assert.Equal(t, 1, flaky.calls)
}
