package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/venuecache/storage"
	"github.com/IvanBrykalov/venuecache/storage/storagetest"
)

func openTemp(t *testing.T, limit int64) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "kv.db"), limit)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, limit int64) storage.Backend {
		return openTemp(t, limit)
	})
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("  ", 0)
	require.Error(t, err)
}

// Reopening must keep data and skip already applied migrations.
func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")

	s, err := Open(path, 0)
	require.NoError(t, err)
	require.NoError(t, s.SetItem("k", "v"))
	require.NoError(t, s.Close())

	s, err = Open(path, 0)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	v, ok, err := s.GetItem("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestUpSection(t *testing.T) {
	got := upSection("-- +migrate Up\nCREATE TABLE x(a);\n-- +migrate Down\nDROP TABLE x;")
	assert.Equal(t, "\nCREATE TABLE x(a);\n", got)
	assert.Equal(t, "SELECT 1;", upSection("SELECT 1;"))
}
