package kvstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key returns ErrNotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "span_cache_version")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "promptBuilder.spanLabelingCache.v2", []byte(`[["k",{}]]`)))

		got, err := store.Get(ctx, "promptBuilder.spanLabelingCache.v2")
		require.NoError(t, err)
		assert.Equal(t, `[["k",{}]]`, string(got))
	})

	t.Run("set overwrites", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "k", []byte("one")))
		require.NoError(t, store.Set(ctx, "k", []byte("two")))

		got, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "two", string(got))
	})

	t.Run("delete removes key and is idempotent", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "gone", []byte("x")))
		require.NoError(t, store.Delete(ctx, "gone"))
		require.NoError(t, store.Delete(ctx, "gone"))

		_, err := store.Get(ctx, "gone")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemory(t *testing.T) {
	runStoreContract(t, NewMemory())

	t.Run("returned slices are copies", func(t *testing.T) {
		m := NewMemory()
		ctx := context.Background()
		require.NoError(t, m.Set(ctx, "k", []byte("abc")))

		got, _ := m.Get(ctx, "k")
		got[0] = 'z'

		again, _ := m.Get(ctx, "k")
		assert.Equal(t, "abc", string(again))
	})
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "kv"))
	require.NoError(t, err)
	runStoreContract(t, store)

	t.Run("requires path", func(t *testing.T) {
		_, err := NewFileStore("")
		assert.Error(t, err)
	})
}

func TestSQLite(t *testing.T) {
	store, err := NewSQLite(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	runStoreContract(t, store)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults to memory", func(t *testing.T) {
		s, err := Open(ctx, Config{})
		require.NoError(t, err)
		assert.IsType(t, &Memory{}, s)
	})

	t.Run("file driver", func(t *testing.T) {
		s, err := Open(ctx, Config{Driver: DriverFile, Path: t.TempDir()})
		require.NoError(t, err)
		assert.IsType(t, &FileStore{}, s)
	})

	t.Run("sqlite driver", func(t *testing.T) {
		s, err := Open(ctx, Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "x.db")})
		require.NoError(t, err)
		defer func() { _ = s.Close() }()
		assert.IsType(t, &SQLite{}, s)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Open(ctx, Config{Driver: "redis"})
		assert.Error(t, err)
	})

	t.Run("postgres without dsn", func(t *testing.T) {
		_, err := Open(ctx, Config{Driver: DriverPostgres})
		assert.Error(t, err)
	})

	t.Run("s3 without bucket", func(t *testing.T) {
		_, err := Open(ctx, Config{Driver: DriverS3})
		assert.Error(t, err)
	})
}
