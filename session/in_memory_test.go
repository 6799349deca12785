package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosterflow/rosterflow/core"
)

func TestInMemoryStoreCreateAndGet(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	sess, err := store.Create(ctx, "")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	loaded, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, core.StatusNew, loaded.Status)
}

func TestInMemoryStoreGetUnknown(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestInMemoryStoreSaveIsolation(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	sess, err := store.Create(ctx, "s1")
	require.NoError(t, err)
	sess.SetField("team_name", "Robins")
	require.NoError(t, store.Save(ctx, sess))

	// Mutating the caller's copy after Save must not leak into the store.
	sess.SetField("team_name", "Falcons")

	loaded, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Robins", loaded.FieldString("team_name"))
}

func TestInMemoryStoreDelete(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "s1"))
	require.NoError(t, store.Delete(ctx, "s1"), "double delete is a no-op")

	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestInMemoryStoreDeleteExpired(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	stale, err := store.Create(ctx, "stale")
	require.NoError(t, err)
	stale.Updated = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, store.Save(ctx, stale))

	_, err = store.Create(ctx, "fresh")
	require.NoError(t, err)

	removed, err := store.DeleteExpired(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = store.Get(ctx, "stale")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	_, err = store.Get(ctx, "fresh")
	assert.NoError(t, err)
}
