//go:build integration

package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilpool/compliance/internal/testutil"
)

func TestPostgresStore_RecordUpload(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	score := 40
	entries := []*Entry{
		{
			ID: "txn_1", TxID: "sig-1", Kind: KindDeposit,
			Amount: "1.5", Asset: "SOL", From: "addr-1", To: "pool",
			RiskScore: &score, Timestamp: time.Now().UTC(),
		},
		{
			ID: "txn_2", TxID: "sig-2", Kind: KindWithdraw,
			Amount: "0.5", Asset: "SOL", From: "pool", To: "addr-2",
			Timestamp: time.Now().UTC(),
		},
	}
	require.NoError(t, store.RecordUpload(ctx, "up_1", entries))

	// Re-recording the same entries is a no-op, not an error.
	require.NoError(t, store.RecordUpload(ctx, "up_2", entries))

	got, err := store.ListByEntity(ctx, "addr-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "txn_1", got[0].ID)
	assert.Equal(t, "1.5000000000", got[0].Amount)
	require.NotNil(t, got[0].RiskScore)
	assert.Equal(t, 40, *got[0].RiskScore)
}

func TestPostgresStore_ListByEntityMatchesBothSides(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	require.NoError(t, store.RecordUpload(ctx, "up_1", []*Entry{
		{ID: "txn_in", Kind: KindDeposit, Amount: "1", Asset: "SOL", From: "addr-1", To: "pool", Timestamp: time.Now().UTC().Add(-time.Minute)},
		{ID: "txn_out", Kind: KindWithdraw, Amount: "2", Asset: "SOL", From: "pool", To: "addr-1", Timestamp: time.Now().UTC()},
		{ID: "txn_other", Kind: KindTransfer, Amount: "3", Asset: "SOL", From: "a", To: "b", Timestamp: time.Now().UTC()},
	}))

	got, err := store.ListByEntity(ctx, "addr-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Newest first.
	assert.Equal(t, "txn_out", got[0].ID)
	assert.Equal(t, "txn_in", got[1].ID)
}
