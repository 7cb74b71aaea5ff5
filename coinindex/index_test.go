package coinindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainforge/corenode/kvstore"
	"github.com/chainforge/corenode/types"
)

func TestIndexInsertIterRemove(t *testing.T) {
	db := kvstore.NewMemory()
	idx := New(db)

	var owner types.Owner
	owner[0] = 1
	var asset types.AssetID
	asset[0] = 2
	var tx types.TxID

	for i, amount := range []uint64{300, 100, 200} {
		utxo := types.UtxoId{TxID: tx, OutputIndex: uint16(i)}
		require.NoError(t, idx.InsertCoin(owner, asset, amount, utxo))
	}

	entries, err := idx.Iter(owner, asset, Any, nil, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, []uint64{100, 200, 300}, []uint64{
		entries[0].Key.Amount(), entries[1].Key.Amount(), entries[2].Key.Amount(),
	})
	for _, e := range entries {
		require.Equal(t, TagCoin, e.Tag)
	}

	require.NoError(t, idx.Remove(entries[0].Key))
	remaining, err := idx.Iter(owner, asset, Any, nil, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 2)

	err = idx.Remove(entries[0].Key)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIndexIterFiltersByRetryability(t *testing.T) {
	db := kvstore.NewMemory()
	idx := New(db)

	var owner types.Owner
	owner[0] = 9
	var asset types.AssetID
	var nonce1, nonce2 types.Nonce
	nonce1[0] = 1
	nonce2[0] = 2

	require.NoError(t, idx.InsertMessage(owner, asset, 10, nonce1, false))
	require.NoError(t, idx.InsertMessage(owner, asset, 20, nonce2, true))

	nonRetryable, err := idx.Iter(owner, asset, OnlyNonRetryable, nil, 0)
	require.NoError(t, err)
	require.Len(t, nonRetryable, 1)
	require.False(t, nonRetryable[0].Key.Retryable())

	retryable, err := idx.Iter(owner, asset, OnlyRetryable, nil, 0)
	require.NoError(t, err)
	require.Len(t, retryable, 1)
	require.True(t, retryable[0].Key.Retryable())
}

func TestIndexScopesByOwnerAndAsset(t *testing.T) {
	db := kvstore.NewMemory()
	idx := New(db)

	var ownerA, ownerB types.Owner
	ownerA[0] = 1
	ownerB[0] = 2
	var asset types.AssetID
	var tx types.TxID

	require.NoError(t, idx.InsertCoin(ownerA, asset, 50, types.UtxoId{TxID: tx, OutputIndex: 0}))
	require.NoError(t, idx.InsertCoin(ownerB, asset, 60, types.UtxoId{TxID: tx, OutputIndex: 1}))

	entries, err := idx.Iter(ownerA, asset, Any, nil, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, uint64(50), entries[0].Key.Amount())
}
