package badger_test

import (
	"context"
	"testing"

	"github.com/aretw0/inplace/pkg/adapters/badger"
	"github.com/aretw0/inplace/pkg/domain"
	"github.com/aretw0/inplace/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerStore_Contract(t *testing.T) {
	store, err := badger.Open(badger.Config{InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	ports.RunNodeStoreContract(t, store)
}

func TestBadgerStore_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := badger.Open(badger.Config{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, domain.NewBundleNode("core", &domain.Bundle{ID: 3, SymbolicName: "core", Version: "1.0.0"}, domain.Activated).Snapshot()))
	require.NoError(t, store.Close())

	store, err = badger.Open(badger.Config{Path: dir})
	require.NoError(t, err)
	defer store.Close()

	loaded, err := store.Load(ctx, "core")
	require.NoError(t, err)
	require.NotNil(t, loaded.Bundle)
	assert.Equal(t, int64(3), loaded.Bundle.ID)
	assert.Equal(t, domain.Uninstalled, loaded.State)
}

func TestBadgerStore_RequiresPath(t *testing.T) {
	_, err := badger.Open(badger.Config{})
	assert.Error(t, err)
}
