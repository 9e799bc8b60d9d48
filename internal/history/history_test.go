package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })
	return s
}

func TestRecordAndList(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	e, err := s.Record(ctx, Entry{Email: "a@example.com", Filename: "uploads/redacted_1.pdf", Format: "page-document", Digest: "abc", CreatedAt: created})
	require.NoError(t, err)
	assert.NotZero(t, e.ID)

	_, err = s.Record(ctx, Entry{Email: "a@example.com", Filename: "uploads/redacted_2.png", CreatedAt: created.Add(time.Minute)})
	require.NoError(t, err)
	_, err = s.Record(ctx, Entry{Email: "b@example.com", Filename: "uploads/redacted_3.png"})
	require.NoError(t, err)

	entries, err := s.List(ctx, "a@example.com")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, e, entries[0])
	assert.Equal(t, "uploads/redacted_2.png", entries[1].Filename)

	entries, err = s.List(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	require.NoError(t, s.Ping(ctx))
}

func TestDelete(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.Record(ctx, Entry{Email: "a@example.com", Filename: "f1"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "a@example.com", "f1"))
	require.ErrorIs(t, s.Delete(ctx, "a@example.com", "f1"), ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, "b@example.com", "f1"), ErrNotFound)
}

func TestDeleteAll(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	for _, name := range []string{"f1", "f2"} {
		_, err := s.Record(ctx, Entry{Email: "a@example.com", Filename: name})
		require.NoError(t, err)
	}
	_, err := s.Record(ctx, Entry{Email: "b@example.com", Filename: "f3"})
	require.NoError(t, err)

	removed, err := s.DeleteAll(ctx, "a@example.com")
	require.NoError(t, err)
	require.Len(t, removed, 2)
	assert.Equal(t, "f1", removed[0].Filename)

	entries, err := s.List(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = s.List(ctx, "b@example.com")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Record(context.Background(), Entry{Email: "a@example.com", Filename: "f1"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	entries, err := s.List(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
