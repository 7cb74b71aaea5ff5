package balances

import (
	"math"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/chainforge/corenode/kvstore"
	"github.com/chainforge/corenode/types"
)

func TestBalanceSumsCoinsAndMessagesForBaseAsset(t *testing.T) {
	db := kvstore.NewMemory()
	agg := New(db)

	var owner types.Owner
	owner[0] = 1
	var base types.AssetID
	base[0] = 9

	require.NoError(t, agg.SetCoinBalance(owner, base, 100))
	require.NoError(t, agg.SetMessageBalance(owner, 50))

	bal, err := agg.Balance(owner, base, base)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(150), bal)
}

func TestBalanceIgnoresMessagesForNonBaseAsset(t *testing.T) {
	db := kvstore.NewMemory()
	agg := New(db)

	var owner types.Owner
	owner[0] = 1
	var base, other types.AssetID
	base[0] = 9
	other[0] = 7

	require.NoError(t, agg.SetCoinBalance(owner, other, 30))
	require.NoError(t, agg.SetMessageBalance(owner, 999))

	bal, err := agg.Balance(owner, other, base)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(30), bal)
}

func TestBalanceOverflow(t *testing.T) {
	db := kvstore.NewMemory()
	agg := New(db)

	var owner types.Owner
	owner[0] = 1
	var base types.AssetID
	base[0] = 9

	require.NoError(t, agg.SetCoinBalance(owner, base, math.MaxUint64))
	require.NoError(t, agg.SetMessageBalance(owner, 1))

	_, err := agg.Balance(owner, base, base)
	require.ErrorIs(t, err, ErrBalanceOverflow)
}

func TestBalancesRejectsWithoutIndexation(t *testing.T) {
	db := kvstore.NewMemory()
	agg := New(db)

	var owner types.Owner
	var base types.AssetID

	_, err := agg.Balances(owner, base, nil, 0)
	require.ErrorIs(t, err, ErrIndexationDisabled)
}

func TestBalancesPaginatesByAssetWhenIndexationEnabled(t *testing.T) {
	db := kvstore.NewMemory()
	agg := New(db, WithIndexation(true))

	var owner types.Owner
	owner[0] = 3
	var assetA, assetB, base types.AssetID
	assetA[0] = 1
	assetB[0] = 2
	base[0] = 1 // base == assetA

	require.NoError(t, agg.SetCoinBalance(owner, assetA, 10))
	require.NoError(t, agg.SetCoinBalance(owner, assetB, 20))
	require.NoError(t, agg.SetMessageBalance(owner, 5))

	results, err := agg.Balances(owner, base, nil, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byAsset := map[types.AssetID]*uint256.Int{}
	for _, r := range results {
		byAsset[r.Asset] = r.Balance
	}
	require.Equal(t, uint256.NewInt(15), byAsset[assetA]) // 10 + message balance
	require.Equal(t, uint256.NewInt(20), byAsset[assetB])
}

func TestBalanceReadThroughCache(t *testing.T) {
	db := kvstore.NewMemory()
	agg := New(db, WithCacheBytes(1<<16))

	var owner types.Owner
	owner[0] = 4
	var asset types.AssetID
	asset[0] = 5

	require.NoError(t, agg.SetCoinBalance(owner, asset, 42))

	bal, err := agg.Balance(owner, asset, asset)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(42), bal)

	// A second read should hit the cache and return the same value.
	bal2, err := agg.Balance(owner, asset, asset)
	require.NoError(t, err)
	require.Equal(t, bal, bal2)
}
