package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, KeyJWT)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, KeyJWT, "token-1"))
	require.NoError(t, s.Set(ctx, KeyJWT, "token-2"))

	v, ok, err := s.Get(ctx, KeyJWT)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "token-2", v)

	require.NoError(t, s.Remove(ctx, KeyJWT))
	// removing a missing key is not an error
	require.NoError(t, s.Remove(ctx, KeyJWT))

	_, ok, err = s.Get(ctx, KeyJWT)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	exerciseStore(t, s)
}

func TestNamespacedIsolation(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	a := Namespaced(mem, "org-a")
	b := Namespaced(mem, "org-b")

	require.NoError(t, a.Set(ctx, KeyConversationID, "c-1"))

	_, ok, err := b.Get(ctx, KeyConversationID)
	require.NoError(t, err)
	require.False(t, ok)

	v, ok, err := a.Get(ctx, KeyConversationID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "c-1", v)

	// the underlying key carries the prefix
	raw, ok, err := mem.Get(ctx, "org-a:"+KeyConversationID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "c-1", raw)
}
