// Package gasprice implements the GasPriceController: a closed-loop
// controller that decides the next block's gas price and persists its
// state atomically with each L2 block it ingests. The transactional-
// commit-then-atomic-swap control flow is grounded line-for-line on the
// original's handle_normal_block/commit_block_data_to_algorithm
// (v1/service.rs): buffer drain, scale fees to wei, update_l2_block_data,
// set_metadata, commit, shared_algo.update, clear buffer.
package gasprice

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/holiman/uint256"

	"github.com/chainforge/corenode/dacost"
	"github.com/chainforge/corenode/types"
	"github.com/chainforge/corenode/xlog"
	"github.com/chainforge/corenode/xmetrics"
)

// weiPerGwei scales block_fees (in a smaller native unit) up to wei,
// matching the original's `u128::from(block_fees).saturating_mul(1_000_000_000)`.
const weiPerGwei = 1_000_000_000

// ControllerState mirrors spec.md's {Uninitialized, Running,
// ShuttingDown} state machine.
type ControllerState int32

const (
	Uninitialized ControllerState = iota
	Running
	ShuttingDown
)

// L2BlockTelemetry is one tick's input: either a genesis marker or a
// normal block's (height, gas_used, block_gas_capacity, block_bytes,
// block_fees).
type L2BlockTelemetry struct {
	Genesis           bool
	Height            types.BlockHeight
	GasUsed           uint64
	BlockGasCapacity  uint64
	BlockBytes        uint64
	BlockFeesNative   uint64
}

// Controller is the GasPriceController.
type Controller struct {
	log     xlog.Logger
	store   *Store
	updater *AlgorithmUpdaterV1
	shared  *SharedV1Algorithm

	unrecorded *UnrecordedBlocks
	daBuffer   []dacost.DaBlockCosts
	bufMu      sync.Mutex

	latestL2Height *atomic.Uint32 // shared with dacost.Source.SetLatestL2Height's owner
	daSource       *dacost.Source

	l2Tick chan L2BlockTelemetry

	state atomic.Int32
}

// New constructs a Controller from a loaded (or fresh) updater and its
// backing store. latestL2Height, when non-nil, is a shared tip cell the
// controller stores each committed normal block's height into; the
// DaCostSource filter reads its own copy, which the controller updates
// through SetLatestL2Height at the same point.
func New(cfg V1AlgorithmConfig, store *Store, daSource *dacost.Source, latestL2Height *atomic.Uint32, log xlog.Logger) (*Controller, error) {
	meta, err := store.ReadMetadata()
	if err != nil {
		return nil, fmt.Errorf("gasprice: read metadata: %w", err)
	}
	updater := NewAlgorithmUpdaterV1(cfg)
	if meta != nil {
		updater.L2BlockHeight = types.BlockHeight(meta.L2BlockHeight)
		updater.ExecGasPrice = meta.ExecGasPrice
		updater.ScaledDaGasPrice = meta.ScaledDaGasPrice
		updater.LastProfit = meta.LastProfit()
	}
	unrecorded, err := store.LoadUnrecordedBlocks()
	if err != nil {
		return nil, fmt.Errorf("gasprice: load unrecorded blocks: %w", err)
	}

	c := &Controller{
		log:            log,
		store:          store,
		updater:        updater,
		shared:         NewSharedV1Algorithm(updater.Algorithm()),
		unrecorded:     unrecorded,
		latestL2Height: latestL2Height,
		daSource:       daSource,
		l2Tick:         make(chan L2BlockTelemetry, 1),
	}
	return c, nil
}

// NextBlockAlgorithm exposes the published snapshot for block-assembly
// query paths.
func (c *Controller) NextBlockAlgorithm() *SharedV1Algorithm { return c.shared }

// NotifyL2Block feeds one tick of telemetry into the controller's run
// loop. The call blocks only if the (depth-1) tick channel is full,
// matching a single-in-flight-tick discipline; callers are expected to
// await commit before producing the next block.
func (c *Controller) NotifyL2Block(ctx context.Context, tick L2BlockTelemetry) error {
	select {
	case c.l2Tick <- tick:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the controller's select loop until ctx is cancelled:
// shutdown, L2 ticks, and buffered DA bundles from the subscribed
// dacost.Source.
func (c *Controller) Run(ctx context.Context) error {
	c.state.Store(int32(Running))

	var daCh <-chan dacost.DaBlockCosts
	var unsubscribe func()
	if c.daSource != nil {
		daCh, unsubscribe = c.daSource.Subscribe()
		defer unsubscribe()
	}

	for {
		select {
		case <-ctx.Done():
			c.state.Store(int32(ShuttingDown))
			return c.shutdown(ctx)
		case tick := <-c.l2Tick:
			xmetrics.GasPriceTicks.Inc(1)
			if err := c.applyTick(tick); err != nil {
				c.log.Error("gasprice: apply tick failed", "err", err)
			}
		case bundle, ok := <-daCh:
			if !ok {
				daCh = nil
				continue
			}
			c.bufMu.Lock()
			c.daBuffer = append(c.daBuffer, bundle)
			c.bufMu.Unlock()
		}
	}
}

// shutdown drains any already-ready L2 tick (non-blocking) before
// stopping, per spec.md §4.4's state-machine note.
func (c *Controller) shutdown(ctx context.Context) error {
	select {
	case tick := <-c.l2Tick:
		if err := c.applyTick(tick); err != nil {
			c.log.Error("gasprice: apply tick during shutdown failed", "err", err)
		}
	default:
	}
	return nil
}

func (c *Controller) applyTick(tick L2BlockTelemetry) error {
	if tick.Genesis {
		return c.applyGenesis()
	}
	return c.handleNormalBlock(tick)
}

func (c *Controller) applyGenesis() error {
	tx := c.store.Begin()
	meta := metadataFromUpdater(c.updater, c.unrecorded.Cardinality())
	if err := tx.SetMetadata(meta); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	c.shared.Update(c.updater.Algorithm())
	return nil
}

// handleNormalBlock implements spec.md §4.4 steps a-j.
func (c *Controller) handleNormalBlock(tick L2BlockTelemetry) error {
	if tick.BlockGasCapacity == 0 {
		return ErrZeroCapacity
	}

	tx := c.store.Begin()

	c.bufMu.Lock()
	buffered := c.daBuffer
	c.daBuffer = nil
	c.bufMu.Unlock()

	var latestRecordedHeight types.BlockHeight
	var advanced bool
	for _, bundle := range buffered {
		if err := c.updater.UpdateDaRecordData(bundle.L2BlocksStart, bundle.L2BlocksEnd, bundle.BundleSizeBytes, bigUintToUint256(bundle.BlobCostWei), c.unrecorded); err != nil {
			return fmt.Errorf("gasprice: update da record data: %w", err)
		}
		if err := tx.DeleteUnrecordedRange(bundle.L2BlocksStart, bundle.L2BlocksEnd); err != nil {
			return err
		}
		latestRecordedHeight = bundle.L2BlocksEnd
		advanced = true
	}
	if advanced {
		if err := tx.SetRecordedHeight(latestRecordedHeight); err != nil {
			return fmt.Errorf("gasprice: set recorded height: %w", err)
		}
	}

	feeWei := new(uint256.Int).Mul(uint256.NewInt(tick.BlockFeesNative), uint256.NewInt(weiPerGwei))
	if err := c.updater.UpdateL2BlockData(tick.Height, tick.GasUsed, tick.BlockGasCapacity, tick.BlockBytes, feeWei, c.unrecorded); err != nil {
		return fmt.Errorf("gasprice: update l2 block data: %w", err)
	}
	if err := tx.PutUnrecorded(tick.Height, tick.BlockBytes); err != nil {
		return err
	}

	meta := metadataFromUpdater(c.updater, c.unrecorded.Cardinality())
	if err := tx.SetMetadata(meta); err != nil {
		return fmt.Errorf("gasprice: set metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("gasprice: commit: %w", err)
	}

	c.shared.Update(c.updater.Algorithm())

	if c.latestL2Height != nil {
		c.latestL2Height.Store(tick.Height.Uint32())
	}
	if c.daSource != nil {
		c.daSource.SetLatestL2Height(tick.Height)
	}

	return nil
}

func bigUintToUint256(b *dacost.BigUint) *uint256.Int {
	if b == nil {
		return uint256.NewInt(0)
	}
	hi := uint256.NewInt(b.Hi)
	hi.Lsh(hi, 64)
	lo := uint256.NewInt(b.Lo)
	return hi.Or(hi, lo)
}
