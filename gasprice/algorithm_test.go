package gasprice

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/chainforge/corenode/types"
)

func TestExecPriceIncreasesWhenOverThreshold(t *testing.T) {
	cfg := testConfig()
	u := NewAlgorithmUpdaterV1(cfg)
	ub := NewUnrecordedBlocks()

	before := u.ExecGasPrice
	err := u.UpdateL2BlockData(1, 90, 100, 10, uint256.NewInt(0), ub)
	require.NoError(t, err)
	require.Greater(t, u.ExecGasPrice, before)
}

func TestExecPriceDecreasesWhenUnderThresholdButNeverBelowFloor(t *testing.T) {
	cfg := testConfig()
	cfg.MinExecGasPrice = 95
	u := NewAlgorithmUpdaterV1(cfg)
	ub := NewUnrecordedBlocks()

	err := u.UpdateL2BlockData(1, 5, 100, 10, uint256.NewInt(0), ub)
	require.NoError(t, err)
	require.GreaterOrEqual(t, u.ExecGasPrice, cfg.MinExecGasPrice)
}

func TestUpdateL2BlockDataRejectsZeroCapacity(t *testing.T) {
	u := NewAlgorithmUpdaterV1(testConfig())
	ub := NewUnrecordedBlocks()
	err := u.UpdateL2BlockData(1, 10, 0, 10, uint256.NewInt(0), ub)
	require.ErrorIs(t, err, ErrZeroCapacity)
}

func TestUpdateDaRecordDataClearsRange(t *testing.T) {
	u := NewAlgorithmUpdaterV1(testConfig())
	ub := NewUnrecordedBlocks()
	ub.Put(1, 100)
	ub.Put(2, 100)
	ub.Put(3, 100)

	err := u.UpdateDaRecordData(1, 3, 1000, uint256.NewInt(5000), ub)
	require.NoError(t, err)
	require.Equal(t, 0, ub.Cardinality())
}

func TestDaGasPriceRespectsFloor(t *testing.T) {
	cfg := testConfig()
	cfg.MinDaGasPrice = 100
	u := NewAlgorithmUpdaterV1(cfg)
	ub := NewUnrecordedBlocks()

	err := u.UpdateDaRecordData(1, 1, 1000, uint256.NewInt(1), ub)
	require.NoError(t, err)
	require.GreaterOrEqual(t, u.ScaledDaGasPrice, cfg.MinDaGasPrice*cfg.GasPriceFactor)
}

func TestDaGasPriceDecreaseIsReinedInBelowActivityThreshold(t *testing.T) {
	cfg := testConfig()
	u := NewAlgorithmUpdaterV1(cfg)
	u.ScaledDaGasPrice = 1000
	u.latestDaCostPerByte = 10
	ub := NewUnrecordedBlocks()
	for h := uint32(1); h <= 100; h++ {
		ub.Put(types.BlockHeight(h), 100)
	}

	// Clearing 1 of 100 outstanding heights is well under
	// BlockActivityThreshold (20%); a falling price must be capped to
	// DecreaseRangeSize (4%) rather than the wider
	// MaxDaGasPriceChangePercent (20%).
	err := u.UpdateDaRecordData(1, 1, 1000, uint256.NewInt(20000), ub)
	require.NoError(t, err)

	maxDrop := uint64(1000) * cfg.DecreaseRangeSize / 100
	require.GreaterOrEqual(t, u.ScaledDaGasPrice, uint64(1000)-maxDrop)
}

func TestSharedV1AlgorithmPublishesUpdates(t *testing.T) {
	initial := AlgorithmV1{ExecGasPrice: 10, ScaledDaGasPrice: 0, GasPriceFactor: 1}
	shared := NewSharedV1Algorithm(initial)
	require.Equal(t, uint64(10), shared.NextGasPrice())

	shared.Update(AlgorithmV1{ExecGasPrice: 20, ScaledDaGasPrice: 0, GasPriceFactor: 1})
	require.Equal(t, uint64(20), shared.NextGasPrice())
}

func TestUnrecordedBlocksTracksCardinality(t *testing.T) {
	ub := NewUnrecordedBlocks()
	require.Equal(t, 0, ub.Cardinality())
	ub.Put(types.BlockHeight(1), 10)
	ub.Put(types.BlockHeight(2), 20)
	require.Equal(t, 2, ub.Cardinality())
	require.True(t, ub.Contains(1))
	ub.Remove(1)
	require.Equal(t, 1, ub.Cardinality())
	require.False(t, ub.Contains(1))
}
