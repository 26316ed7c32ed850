package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/spancache/internal/fingerprint"
)

func testEntry(key string) *Entry {
	return &Entry{Key: fingerprint.Fingerprint(key), Signature: "sig-" + key}
}

func storeKeys(s *Store) []string {
	keys := []string{}
	for _, e := range s.Entries() {
		keys = append(keys, string(e.Key))
	}
	return keys
}

func TestStore_Basic(t *testing.T) {
	t.Run("put and peek item", func(t *testing.T) {
		// Arrange
		store := NewStore(3)

		// Act
		evicted := store.Put(testEntry("a1"))
		entry, ok := store.Peek("a1")

		// Assert
		assert.Empty(t, evicted)
		require.True(t, ok)
		assert.Equal(t, "sig-a1", entry.Signature)
	})

	t.Run("peek miss returns false", func(t *testing.T) {
		store := NewStore(3)

		_, ok := store.Peek("missing")

		assert.False(t, ok)
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		// Arrange
		store := NewStore(2)

		// Act
		store.Put(testEntry("a1"))
		store.Put(testEntry("a2"))
		evicted := store.Put(testEntry("a3"))

		// Assert
		assert.Equal(t, []string{"a1"}, evicted)
		assert.Equal(t, []string{"a2", "a3"}, storeKeys(store))
		assert.Equal(t, int64(1), store.Evictions())
	})

	t.Run("promote protects from eviction", func(t *testing.T) {
		// Arrange
		store := NewStore(2)
		store.Put(testEntry("a1"))
		store.Put(testEntry("a2"))

		// Act
		store.Promote("a1")
		evicted := store.Put(testEntry("a3"))

		// Assert
		assert.Equal(t, []string{"a2"}, evicted)
		assert.Equal(t, []string{"a1", "a3"}, storeKeys(store))
	})

	t.Run("replacing a key keeps one entry", func(t *testing.T) {
		store := NewStore(3)
		store.Put(testEntry("a1"))
		store.Put(testEntry("a2"))

		replacement := testEntry("a1")
		replacement.Signature = "new"
		store.Put(replacement)

		assert.Equal(t, 2, store.Len())
		assert.Equal(t, []string{"a2", "a1"}, storeKeys(store))
		entry, _ := store.Peek("a1")
		assert.Equal(t, "new", entry.Signature)
	})

	t.Run("55 inserts leave 50 entries", func(t *testing.T) {
		store := NewStore(50)

		for i := 0; i < 55; i++ {
			store.Put(testEntry(fmt.Sprintf("entry-%d", i)))
		}

		assert.Equal(t, 50, store.Len())
		_, ok := store.Peek("entry-0")
		assert.False(t, ok)
		_, ok = store.Peek("entry-54")
		assert.True(t, ok)
	})
}

func TestStore_PutOldest(t *testing.T) {
	t.Run("appends at the least recently used end", func(t *testing.T) {
		store := NewStore(3)
		store.Put(testEntry("live"))

		assert.True(t, store.PutOldest(testEntry("old1")))
		assert.True(t, store.PutOldest(testEntry("old2")))

		assert.Equal(t, []string{"old2", "old1", "live"}, storeKeys(store))
	})

	t.Run("never replaces a live entry", func(t *testing.T) {
		store := NewStore(3)
		store.Put(testEntry("a1"))

		stale := testEntry("a1")
		stale.Signature = "stale"

		assert.False(t, store.PutOldest(stale))
		entry, _ := store.Peek("a1")
		assert.Equal(t, "sig-a1", entry.Signature)
	})

	t.Run("never evicts", func(t *testing.T) {
		store := NewStore(1)
		store.Put(testEntry("a1"))

		assert.False(t, store.PutOldest(testEntry("a2")))
		assert.Equal(t, []string{"a1"}, storeKeys(store))
		assert.Zero(t, store.Evictions())
	})
}

func TestStore_DeleteAndClear(t *testing.T) {
	store := NewStore(3)
	store.Put(testEntry("a1"))
	store.Put(testEntry("a2"))

	store.Delete("a1")
	store.Delete("missing")
	assert.Equal(t, []string{"a2"}, storeKeys(store))

	store.Clear()
	assert.Zero(t, store.Len())
	assert.Empty(t, store.Entries())
}
