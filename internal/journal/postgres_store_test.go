package journal

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStoreLifecycle(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer store.Close()

	hash := "0xtest-" + time.Now().Format("150405.000000")
	require.NoError(t, store.Put(ctx, Entry{TxHash: hash, Kind: KindRedeem, Amount: "100", Status: StatusPending}))
	require.NoError(t, store.Put(ctx, Entry{TxHash: hash, Kind: KindRedeem, Amount: "100", Block: 7, Status: StatusSuccess}))

	got, err := store.List(ctx, 0)
	require.NoError(t, err)

	var found *Entry
	for i := range got {
		if got[i].TxHash == hash {
			found = &got[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, StatusSuccess, found.Status)
	assert.Equal(t, uint64(7), found.Block)
}
