package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreUpsertKeepsCreatedAt(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created := time.Unix(1_700_000_000, 0).UTC()
	require.NoError(t, store.Put(ctx, Entry{TxHash: "0x1", Kind: KindRedeem, Status: StatusPending, CreatedAt: created}))
	require.NoError(t, store.Put(ctx, Entry{TxHash: "0x1", Kind: KindRedeem, Status: StatusSuccess}))

	got, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, StatusSuccess, got[0].Status)
	assert.True(t, got[0].CreatedAt.Equal(created))
	assert.False(t, got[0].UpdatedAt.IsZero())
}

func TestMemoryStoreListNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0).UTC()
	for i, hash := range []string{"0xa", "0xb", "0xc"} {
		require.NoError(t, store.Put(ctx, Entry{TxHash: hash, CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	got, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0xc", got[0].TxHash)
	assert.Equal(t, "0xb", got[1].TxHash)
}

func TestFileStorePersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	entry := Entry{
		TxHash:          "0xfeed",
		Kind:            KindCollect,
		CollateralIndex: 1,
		Block:           1002,
		Status:          StatusSuccess,
	}
	require.NoError(t, store.Put(ctx, entry))

	_, err = os.Stat(path)
	require.NoError(t, err, "expected file on disk")

	store2, err := NewFileStore(path)
	require.NoError(t, err)

	got, err := store2.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, KindCollect, got[0].Kind)
	assert.Equal(t, uint64(1002), got[0].Block)
}
