package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakeops/internal/api"
	"bakeops/internal/core"
)

func TestSnapshotStore_SaveLoadRoundTrip(t *testing.T) {
	store, err := NewSnapshotStore(filepath.Join(t.TempDir(), "snap.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	page := api.Page{
		Items: []core.Record{{
			ID:     "ret-1",
			Number: "RET-0001",
			Kind:   core.KindReturn,
			Status: core.StatusPendingApproval,
			Branch: core.Branch{ID: "branch-1", Name: "Downtown"},
			Amount: decimal.NewFromInt(120),
		}},
		Total: 42,
	}

	require.NoError(t, store.Save(ctx, "return", page))

	got, ok, err := store.Load(ctx, "return")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 42, got.Total)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "ret-1", got.Items[0].ID)
	assert.True(t, got.Items[0].Amount.Equal(decimal.NewFromInt(120)))
}

func TestSnapshotStore_SaveReplaces(t *testing.T) {
	store, err := NewSnapshotStore(filepath.Join(t.TempDir(), "snap.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "return", api.Page{Total: 1}))
	require.NoError(t, store.Save(ctx, "return", api.Page{Total: 9}))

	got, ok, err := store.Load(ctx, "return")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 9, got.Total)
}

func TestSnapshotStore_LoadMissingKey(t *testing.T) {
	store, err := NewSnapshotStore(filepath.Join(t.TempDir(), "snap.db"))
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Load(context.Background(), "orders")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshotStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")
	ctx := context.Background()

	store, err := NewSnapshotStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "return", api.Page{Total: 7}))
	require.NoError(t, store.Close())

	reopened, err := NewSnapshotStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.Load(ctx, "return")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 7, got.Total)
}
