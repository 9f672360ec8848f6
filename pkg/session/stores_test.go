package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/cricket/pkg/storage"
)

func TestAdvanceCursorSemantics(t *testing.T) {
	store := storage.NewMemoryStore()
	c := CredentialStore{store: store}
	ctx := context.Background()

	c.AdvanceCursor(ctx, "10")
	require.Equal(t, "10", c.Credential().EventCursor)

	// Backward numeric moves are ignored.
	c.AdvanceCursor(ctx, "9")
	require.Equal(t, "10", c.Credential().EventCursor)

	// Empty cursors are ignored.
	c.AdvanceCursor(ctx, "")
	require.Equal(t, "10", c.Credential().EventCursor)

	// Non-numeric cursors are opaque and overwrite.
	c.AdvanceCursor(ctx, "evt-abc")
	require.Equal(t, "evt-abc", c.Credential().EventCursor)

	persisted, ok, err := store.Get(ctx, storage.KeyLastEventID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "evt-abc", persisted)
}

func TestCredentialRestoreRoundTrip(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	c := CredentialStore{store: store}
	require.NoError(t, c.SetToken(ctx, "tok-1"))
	c.AdvanceCursor(ctx, "42")
	c.Clear()
	require.True(t, c.Credential().IsZero())

	restored := CredentialStore{store: store}
	ok, err := restored.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "tok-1", restored.Credential().Token)
	require.Equal(t, "42", restored.Credential().EventCursor)
}

func TestCredentialRestoreWithoutStoredToken(t *testing.T) {
	c := CredentialStore{store: storage.NewMemoryStore()}
	ok, err := c.Restore(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRegistryAdoptReportsIdentifierChange(t *testing.T) {
	store := storage.NewMemoryStore()
	r := ConversationRegistry{store: store}
	ctx := context.Background()

	require.Equal(t, "", r.Current())

	changed, err := r.Adopt(ctx, "conv-1")
	require.NoError(t, err)
	require.False(t, changed)

	changed, err = r.Adopt(ctx, "conv-1")
	require.NoError(t, err)
	require.False(t, changed)

	changed, err = r.Adopt(ctx, "conv-2")
	require.NoError(t, err)
	require.True(t, changed)

	persisted, ok, err := store.Get(ctx, storage.KeyConversationID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "conv-2", persisted)
}
