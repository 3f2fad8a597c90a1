package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Receipt_cfg.sqlite")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.sqlite")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		s.Close()
	}
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.sqlite")
	require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite database, not even close"), 0o644))

	_, err := Open(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestPutGet_RoundTrip(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	rec := &Record{
		ID:       "42",
		Class:    "Receipt",
		ConfigID: "cfg-1",
		Data: map[string]any{
			"_id":    "42",
			"_class": "Receipt",
			"total":  12.5,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.Put(ctx, rec))

	got, ok, err := s.Get(ctx, "42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Receipt", got.Class)
	assert.Equal(t, "cfg-1", got.ConfigID)
	assert.Equal(t, 12.5, got.Data["total"])
	assert.WithinDuration(t, now, got.CreatedAt, time.Millisecond)
}

func TestPut_UpsertKeepsCreatedAt(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	created := time.Now().UTC().Add(-time.Hour)
	rec := &Record{ID: "1", Class: "Box", Data: map[string]any{"v": 1.0}, CreatedAt: created, UpdatedAt: created}
	require.NoError(t, s.Put(ctx, rec))

	rec.Data["v"] = 2.0
	rec.UpdatedAt = time.Now().UTC()
	require.NoError(t, s.Put(ctx, rec))

	got, ok, err := s.Get(ctx, "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2.0, got.Data["v"])
	assert.WithinDuration(t, created, got.CreatedAt, time.Millisecond)
}

func TestGet_Missing(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	defer s.Close()

	got, ok, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestDeleteAndKeys(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, s.Put(ctx, &Record{ID: id, Class: "Box", Data: map[string]any{}, CreatedAt: now, UpdatedAt: now}))
	}

	require.NoError(t, s.Delete(ctx, "b"))
	require.NoError(t, s.Delete(ctx, "missing")) // no-op

	ids, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids)

	ok, err := s.Has(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Has(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)
}
