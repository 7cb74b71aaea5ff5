package gasprice

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/chainforge/corenode/types"
)

// ErrZeroCapacity is returned when a normal L2 block reports zero gas
// capacity, the precondition spec.md requires checked before any
// storage transaction is opened.
var ErrZeroCapacity = errors.New("gasprice: block gas capacity must be non-zero")

// V1AlgorithmConfig is the enumerated V1 algorithm configuration from
// spec.md §6, field-for-field.
type V1AlgorithmConfig struct {
	NewExecGasPrice                 uint64
	MinExecGasPrice                 uint64
	ExecGasPriceChangePercent       uint64
	L2BlockFullnessThresholdPercent uint64
	GasPriceFactor                  uint64 // non-zero
	MinDaGasPrice                   uint64
	MaxDaGasPriceChangePercent      uint64
	DaPComponent                    int64
	DaDComponent                    int64
	NormalRangeSize                 uint64
	CappedRangeSize                 uint64
	DecreaseRangeSize               uint64
	BlockActivityThreshold          uint64
	DaPollInterval                  *uint64 // seconds, nil for default
}

// AlgorithmV1 is an immutable snapshot of the exec/DA price pair,
// published to SharedV1Algorithm readers.
type AlgorithmV1 struct {
	ExecGasPrice     uint64
	ScaledDaGasPrice uint64
	GasPriceFactor   uint64
}

// NextGasPrice returns the de-scaled total gas price this snapshot
// implies: exec price plus the DA component divided by the scale
// factor, rounding down.
func (a AlgorithmV1) NextGasPrice() uint64 {
	return a.ExecGasPrice + a.ScaledDaGasPrice/a.GasPriceFactor
}

// AlgorithmUpdaterV1 is the mutable, single-owner state machine that
// computes successive AlgorithmV1 snapshots. It mirrors the clamp
// discipline of the teacher's CalcBaseFees-style math (compute raw
// delta, clamp to a percent-of-current bound, clamp to an absolute
// floor) rather than the full P/D-controller numerics in the original;
// see DESIGN.md's Open Questions for this simplification's rationale.
type AlgorithmUpdaterV1 struct {
	cfg V1AlgorithmConfig

	L2BlockHeight       types.BlockHeight
	ExecGasPrice        uint64
	ScaledDaGasPrice    uint64
	LastProfit          int64
	LastBlockFeeWei     *uint256.Int
	latestDaCostPerByte uint64
}

// NewAlgorithmUpdaterV1 constructs the updater with its initial price
// set to cfg.NewExecGasPrice, the starting condition used when no
// persisted UpdaterMetadata exists yet (updater_from_config).
func NewAlgorithmUpdaterV1(cfg V1AlgorithmConfig) *AlgorithmUpdaterV1 {
	return &AlgorithmUpdaterV1{
		cfg:              cfg,
		ExecGasPrice:     cfg.NewExecGasPrice,
		ScaledDaGasPrice: cfg.MinDaGasPrice * cfg.GasPriceFactor,
	}
}

// Algorithm returns the current snapshot.
func (u *AlgorithmUpdaterV1) Algorithm() AlgorithmV1 {
	return AlgorithmV1{
		ExecGasPrice:     u.ExecGasPrice,
		ScaledDaGasPrice: u.ScaledDaGasPrice,
		GasPriceFactor:   u.cfg.GasPriceFactor,
	}
}

// percentClamp bounds delta so that applying it to current moves the
// value by at most percent% of current, in the sign direction of delta.
func percentClamp(current uint64, delta int64, percent uint64) int64 {
	if percent == 0 {
		return 0
	}
	maxMove := current * percent / 100
	if delta > int64(maxMove) {
		return int64(maxMove)
	}
	if delta < -int64(maxMove) {
		return -int64(maxMove)
	}
	return delta
}

func applyClamped(current uint64, delta int64, floor uint64) uint64 {
	signed := int64(current) + delta
	if signed < int64(floor) {
		return floor
	}
	return uint64(signed)
}

// UpdateL2BlockData folds one L2 block's telemetry into the exec price:
// fullness above L2BlockFullnessThresholdPercent pushes the price up by
// up to ExecGasPriceChangePercent; fullness below pushes it down, never
// below MinExecGasPrice. It also records the block's byte size into
// unrecorded so a later DA bundle can settle its real posting cost.
func (u *AlgorithmUpdaterV1) UpdateL2BlockData(height types.BlockHeight, gasUsed, capacity, blockBytes uint64, feeWei *uint256.Int, unrecorded *UnrecordedBlocks) error {
	if capacity == 0 {
		return ErrZeroCapacity
	}
	fullnessPercent := gasUsed * 100 / capacity
	var rawDelta int64
	if fullnessPercent > u.cfg.L2BlockFullnessThresholdPercent {
		rawDelta = int64(u.ExecGasPrice)
	} else {
		rawDelta = -int64(u.ExecGasPrice)
	}
	clamped := percentClamp(u.ExecGasPrice, rawDelta, u.cfg.ExecGasPriceChangePercent)
	u.ExecGasPrice = applyClamped(u.ExecGasPrice, clamped, u.cfg.MinExecGasPrice)
	u.L2BlockHeight = height
	u.LastBlockFeeWei = feeWei
	unrecorded.Put(height, blockBytes)
	return nil
}

// UpdateDaRecordData folds one DA cost bundle into the DA price: it
// removes every covered height from the unrecorded set, compares the
// bundle's actual per-byte cost against the currently projected
// per-byte cost, and nudges ScaledDaGasPrice toward closing that gap.
// The percent ceiling applied to that move is chosen by daChangeCeiling
// from how much of the outstanding backlog this bundle just cleared
// (NormalRangeSize/CappedRangeSize/DecreaseRangeSize/
// BlockActivityThreshold), then floored at MinDaGasPrice*GasPriceFactor.
func (u *AlgorithmUpdaterV1) UpdateDaRecordData(rangeStart, rangeEnd types.BlockHeight, bundleSizeBytes uint64, blobCostWei *uint256.Int, unrecorded *UnrecordedBlocks) error {
	priorUnrecorded := unrecorded.Cardinality()
	var bundleCount uint64
	if rangeEnd.Uint32() >= rangeStart.Uint32() {
		bundleCount = uint64(rangeEnd.Uint32()-rangeStart.Uint32()) + 1
		for h := rangeStart.Uint32(); ; h++ {
			unrecorded.Remove(types.BlockHeight(h))
			if h == rangeEnd.Uint32() {
				break
			}
		}
	}
	activityPercent := uint64(100)
	if priorUnrecorded > 0 {
		activityPercent = bundleCount * 100 / uint64(priorUnrecorded)
	}

	var actualPerByte uint64
	if bundleSizeBytes > 0 {
		perByte := new(uint256.Int).Div(blobCostWei, uint256.NewInt(bundleSizeBytes))
		actualPerByte = perByte.Uint64()
	}
	previousProfit := u.LastProfit
	profit := int64(u.latestDaCostPerByte) - int64(actualPerByte)
	u.LastProfit = profit

	delta := u.cfg.DaPComponent*profit + u.cfg.DaDComponent*(profit-previousProfit)
	floor := u.cfg.MinDaGasPrice * u.cfg.GasPriceFactor
	ceiling := u.daChangeCeiling(delta, activityPercent)
	clamped := percentClamp(u.ScaledDaGasPrice, delta, ceiling)
	u.ScaledDaGasPrice = applyClamped(u.ScaledDaGasPrice, clamped, floor)
	u.latestDaCostPerByte = actualPerByte
	return nil
}

// daChangeCeiling picks which configured percent bound governs this
// tick's DA price move. A falling price driven by thin DA activity
// (this bundle clearing less than BlockActivityThreshold% of the
// backlog) is reined in to DecreaseRangeSize so a single quiet bundle
// can't collapse the price; a rising or well-supported move within
// NormalRangeSize of the current price is let through at the
// configured MaxDaGasPriceChangePercent; anything larger is reined in
// to CappedRangeSize when that is tighter than
// MaxDaGasPriceChangePercent, and otherwise keeps
// MaxDaGasPriceChangePercent.
func (u *AlgorithmUpdaterV1) daChangeCeiling(delta int64, activityPercent uint64) uint64 {
	if delta < 0 && activityPercent < u.cfg.BlockActivityThreshold {
		return u.cfg.DecreaseRangeSize
	}
	magnitude := delta
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if u.ScaledDaGasPrice == 0 {
		return u.cfg.MaxDaGasPriceChangePercent
	}
	movePercent := uint64(magnitude) * 100 / u.ScaledDaGasPrice
	if movePercent <= u.cfg.NormalRangeSize {
		return u.cfg.MaxDaGasPriceChangePercent
	}
	if u.cfg.CappedRangeSize < u.cfg.MaxDaGasPriceChangePercent {
		return u.cfg.CappedRangeSize
	}
	return u.cfg.MaxDaGasPriceChangePercent
}
