// Package storagetest is the conformance suite shared by storage.Backend
// implementations.
package storagetest

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/venuecache/storage"
)

// Run exercises a backend. newBackend must return an empty backend whose
// quota is limit bytes (len(key)+len(value)); limit < 0 means unbounded.
func Run(t *testing.T, newBackend func(t *testing.T, limit int64) storage.Backend) {
	t.Run("GetMissing", func(t *testing.T) {
		b := newBackend(t, -1)
		_, ok, err := b.GetItem("absent")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("SetGetOverwrite", func(t *testing.T) {
		b := newBackend(t, -1)
		require.NoError(t, b.SetItem("k", "v1"))
		require.NoError(t, b.SetItem("k", "v2"))

		v, ok, err := b.GetItem("k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "v2", v)
	})

	t.Run("RemoveIsIdempotent", func(t *testing.T) {
		b := newBackend(t, -1)
		require.NoError(t, b.SetItem("k", "v"))
		require.NoError(t, b.RemoveItem("k"))
		require.NoError(t, b.RemoveItem("k"))

		_, ok, err := b.GetItem("k")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("KeysListsEverything", func(t *testing.T) {
		b := newBackend(t, -1)
		want := []string{"a", "b:1", "b:2", "c"}
		for _, k := range want {
			require.NoError(t, b.SetItem(k, "x"))
		}
		got, err := b.Keys()
		require.NoError(t, err)
		assert.ElementsMatch(t, want, got)
	})

	t.Run("UnicodeValues", func(t *testing.T) {
		b := newBackend(t, -1)
		val := `{"data":"меню 🍜","version":"1.0.0"}`
		require.NoError(t, b.SetItem("unicode", val))
		v, ok, err := b.GetItem("unicode")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, val, v)
	})

	t.Run("QuotaExceeded", func(t *testing.T) {
		b := newBackend(t, 64)
		if _, ok := b.(storage.Sizer); !ok {
			t.Skip("backend does not report usage")
		}
		require.NoError(t, b.SetItem("small", "x"))

		err := b.SetItem("big", strings.Repeat("x", 128))
		require.Error(t, err)
		assert.True(t, errors.Is(err, storage.ErrQuotaExceeded), "want ErrQuotaExceeded, got %v", err)

		_, ok, err := b.GetItem("big")
		require.NoError(t, err)
		assert.False(t, ok, "rejected write must not be visible")
	})

	t.Run("QuotaFreedByRemove", func(t *testing.T) {
		b := newBackend(t, 64)
		s, ok := b.(storage.Sizer)
		if !ok {
			t.Skip("backend does not report usage")
		}
		payload := strings.Repeat("y", 40)
		require.NoError(t, b.SetItem("a", payload))
		require.Error(t, b.SetItem("b", payload))
		require.NoError(t, b.RemoveItem("a"))
		require.NoError(t, b.SetItem("b", payload))

		used, limit, err := s.Usage()
		require.NoError(t, err)
		assert.Equal(t, int64(64), limit)
		assert.Equal(t, int64(len("b")+len(payload)), used)
	})

	t.Run("OverwriteAccountsOldValue", func(t *testing.T) {
		b := newBackend(t, 64)
		if _, ok := b.(storage.Sizer); !ok {
			t.Skip("backend does not report usage")
		}
		for i := 0; i < 10; i++ {
			require.NoError(t, b.SetItem("k", fmt.Sprintf("%040d", i)))
		}
	})
}
