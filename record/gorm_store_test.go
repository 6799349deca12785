package record

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosterflow/rosterflow/core"
)

func newSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	store, err := NewGormStore("sqlite", filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGormStoreUpsertAndFind(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	id := core.Identity{GuardianName: "Dana Reyes", PlayerName: "Milo Reyes"}

	created, err := store.CreateOrUpdate(ctx, id, map[string]any{
		"team_name":      "Robins",
		"guardian_phone": "07700900123",
	})
	require.NoError(t, err)
	assert.Equal(t, "Robins", created.TeamName)
	assert.Equal(t, "07700900123", created.Extra["guardian_phone"])

	updated, err := store.CreateOrUpdate(ctx, id, map[string]any{"kit_size": "YM"})
	require.NoError(t, err)
	assert.Equal(t, "Robins", updated.TeamName, "existing columns survive a partial delta")
	assert.Equal(t, "YM", updated.KitSize)

	found, err := store.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "YM", found.KitSize)
}

func TestGormStoreFindNormalizesIdentity(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	_, err := store.CreateOrUpdate(ctx, core.Identity{GuardianName: "Dana Reyes", PlayerName: "Milo Reyes"}, nil)
	require.NoError(t, err)

	found, err := store.Find(ctx, core.Identity{GuardianName: "  DANA REYES ", PlayerName: "milo reyes"})
	require.NoError(t, err)
	assert.Equal(t, "dana reyes", found.Identity.GuardianName)

	// Punctuation variants are distinct identities.
	_, err = store.Find(ctx, core.Identity{GuardianName: "Dana-Reyes", PlayerName: "Milo Reyes"})
	assert.ErrorIs(t, err, core.ErrRecordNotFound)
}

func TestGormStoreRejectsIncompleteIdentity(t *testing.T) {
	store := newSQLiteStore(t)
	_, err := store.CreateOrUpdate(context.Background(), core.Identity{GuardianName: "Dana"}, nil)
	require.Error(t, err)
	assert.Equal(t, core.CodeValidation, core.CodeOf(err))
}

func TestGormLedgerClaimsOnce(t *testing.T) {
	ledger, err := NewGormLedger("sqlite", filepath.Join(t.TempDir(), "effects.db"))
	require.NoError(t, err)
	defer func() { _ = ledger.Close() }()

	first, err := ledger.Record(context.Background(), "save_record|dana|milo|abc")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := ledger.Record(context.Background(), "save_record|dana|milo|abc")
	require.NoError(t, err)
	assert.False(t, second)

	other, err := ledger.Record(context.Background(), "save_record|dana|milo|def")
	require.NoError(t, err)
	assert.True(t, other, "a different delta hash is a distinct effect")
}

func TestInMemoryStoreMirrorsGormBehavior(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	id := core.Identity{GuardianName: "Dana Reyes", PlayerName: "Milo Reyes"}

	_, err := store.Find(ctx, id)
	assert.ErrorIs(t, err, core.ErrRecordNotFound)

	_, err = store.CreateOrUpdate(ctx, id, map[string]any{"team_name": "Kestrels"})
	require.NoError(t, err)

	found, err := store.Find(ctx, core.Identity{GuardianName: "dana reyes", PlayerName: "MILO REYES"})
	require.NoError(t, err)
	assert.Equal(t, "Kestrels", found.TeamName)

	// Mutating a returned record must not leak into the store.
	found.TeamName = "Falcons"
	again, err := store.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Kestrels", again.TeamName)
}
