package producer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainforge/corenode/clock"
	"github.com/chainforge/corenode/syncgate"
	"github.com/chainforge/corenode/types"
	"github.com/chainforge/corenode/xlog"
	"github.com/chainforge/corenode/xmetrics"
)

// Config bundles the loop's construction-time parameters.
type Config struct {
	Trigger    Trigger
	SigningKey *ecdsa.PrivateKey // nil means no consensus key configured
	ChainID    common.Hash
	Producer   BlockProducer
	Importer   BlockImporter
	Pool       TransactionPool
	Predefined PredefinedBlocks // optional; nil means none configured
	SyncGate   *syncgate.Gate
	Log        xlog.Logger

	// LastBlock seeds last_height/last_timestamp/last_created: the
	// chain's genesis header on a fresh node, or its current tip when
	// resuming. The loop always has a last block, the same way the
	// teacher's PoA task is always constructed from one.
	LastBlock types.BlockHeader
}

// Loop is BlockProducerLoop.
type Loop struct {
	cfg Config

	mu            sync.Mutex
	lastHeight    types.BlockHeight
	lastTimestamp types.Tai64Timestamp
	lastCreatedAt time.Time

	clock *clock.DeadlineClock

	manualCh chan ManualRequest
	shutdown chan struct{}
	done     chan struct{}
}

// New constructs a Loop. manualQueueDepth bounds the manual-request
// channel (spec.md §5: "bounded at 1024; send waits").
func New(cfg Config, manualQueueDepth int) *Loop {
	if manualQueueDepth <= 0 {
		manualQueueDepth = 1024
	}
	height, timestamp, createdAt := extractBlockInfo(cfg.LastBlock)
	return &Loop{
		cfg:           cfg,
		lastHeight:    height,
		lastTimestamp: timestamp,
		lastCreatedAt: createdAt,
		clock:         clock.New(),
		manualCh:      make(chan ManualRequest, manualQueueDepth),
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// extractBlockInfo derives the loop's initial last-height/last-timestamp/
// last-created-at state from a chain header, backdating last_created_at
// by however long ago last_timestamp claims to be.
func extractBlockInfo(last types.BlockHeader) (types.BlockHeight, types.Tai64Timestamp, time.Time) {
	now := types.Tai64Now()
	elapsed := time.Duration(0)
	if now.Unix() > last.Time.Unix() {
		elapsed = time.Duration(now.Unix()-last.Time.Unix()) * time.Second
	}
	createdAt := time.Now().Add(-elapsed)
	return last.Height, last.Time, createdAt
}

// RequestManualBlocks enqueues a ModeBlocks manual request and waits
// for its one-shot result.
func (l *Loop) RequestManualBlocks(ctx context.Context, startTime *time.Time, n int) error {
	return l.sendManual(ctx, ManualRequest{StartTime: startTime, Mode: ModeBlocks, NumBlocks: n})
}

// RequestManualBlockWithTransactions enqueues a
// ModeBlockWithTransactions manual request and waits for its result.
func (l *Loop) RequestManualBlockWithTransactions(ctx context.Context, startTime *time.Time, txs []types.TxID) error {
	return l.sendManual(ctx, ManualRequest{StartTime: startTime, Mode: ModeBlockWithTransactions, TxIDs: txs})
}

func (l *Loop) sendManual(ctx context.Context, req ManualRequest) error {
	resp := make(chan error, 1)
	req.Response = resp
	select {
	case l.manualCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown signals the loop to stop and waits for it to exit.
func (l *Loop) Shutdown() {
	close(l.shutdown)
	<-l.done
}

// Run drives the loop until Shutdown is called or a fatal error
// occurs. It blocks; callers typically invoke it in its own goroutine.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	if l.cfg.Trigger.IsInterval() {
		l.clock.Arm(time.Now().Add(l.cfg.Trigger.BlockTime), clock.Overwrite)
	}

	for {
		if l.cfg.SyncGate != nil && !l.cfg.SyncGate.IsSynced() {
			if stop, err := l.runNotSynced(ctx); stop {
				return err
			}
			continue
		}
		stop, err := l.runSyncedIteration(ctx)
		if stop {
			return err
		}
	}
}

// runNotSynced consumes and discards pool events while waiting for
// shutdown or a sync-state transition, per spec.md §4.7's "restricted
// form." The deadline clock is not read here: a deadline that fires
// while not synced stays fired and is handled by the first synced
// iteration.
func (l *Loop) runNotSynced(ctx context.Context) (stop bool, err error) {
	var poolEvents <-chan int
	if l.cfg.Pool != nil {
		poolEvents = l.cfg.Pool.StatusEvents()
	}
	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()

	select {
	case <-l.shutdown:
		return true, nil
	case <-ctx.Done():
		return true, ctx.Err()
	case _, ok := <-poolEvents:
		if !ok {
			return true, errors.New("producer: transaction pool status channel closed")
		}
		return false, nil
	case <-poll.C:
		if l.cfg.SyncGate == nil || l.cfg.SyncGate.IsSynced() {
			return false, nil
		}
		return false, nil
	}
}

// runSyncedIteration runs one pass of the biased main select: shutdown
// wins over manual requests, which win over pool events, which win
// over timer expiry.
func (l *Loop) runSyncedIteration(ctx context.Context) (stop bool, err error) {
	predefined, ok, perr := l.predefinedForNextHeight()
	if perr != nil {
		l.cfg.Log.Error("producer: next height overflow, stopping", "err", perr)
		return true, perr
	}
	if ok {
		if produceErr := l.producePredefined(ctx, predefined); produceErr != nil {
			l.cfg.Log.Error("producer: predefined block production failed", "err", produceErr)
		}
		return false, nil
	}

	var poolEvents <-chan int
	if l.cfg.Pool != nil {
		poolEvents = l.cfg.Pool.StatusEvents()
	}
	timerCh := l.clock.Chan(ctx)

	// Biased select: shutdown (or context cancellation) > manual request
	// > pool status > timer. Each tier is a non-blocking check before
	// falling through to the next, so a ready higher-priority event is
	// never starved by a simultaneously-ready lower one.
	select {
	case <-l.shutdown:
		return true, nil
	case <-ctx.Done():
		return true, ctx.Err()
	default:
	}

	select {
	case <-l.shutdown:
		return true, nil
	case <-ctx.Done():
		return true, ctx.Err()
	case req, ok := <-l.manualCh:
		if !ok {
			l.cfg.Log.Crit("producer: manual request channel closed unexpectedly")
			return true, ErrManualChannelClosed
		}
		if ferr := l.handleManual(ctx, req); ferr != nil {
			return true, ferr
		}
		return false, nil
	default:
	}

	select {
	case <-l.shutdown:
		return true, nil
	case <-ctx.Done():
		return true, ctx.Err()
	case req, ok := <-l.manualCh:
		if !ok {
			return true, ErrManualChannelClosed
		}
		if ferr := l.handleManual(ctx, req); ferr != nil {
			return true, ferr
		}
		return false, nil
	case count, ok := <-poolEvents:
		if !ok {
			return true, errors.New("producer: transaction pool status channel closed")
		}
		if l.cfg.Trigger.IsInstant() && count > 0 {
			if ferr := l.produceFromTrigger(ctx); ferr != nil {
				return true, ferr
			}
		}
		return false, nil
	default:
	}

	select {
	case <-l.shutdown:
		return true, nil
	case <-ctx.Done():
		return true, ctx.Err()
	case req, ok := <-l.manualCh:
		if !ok {
			return true, ErrManualChannelClosed
		}
		if ferr := l.handleManual(ctx, req); ferr != nil {
			return true, ferr
		}
		return false, nil
	case count, ok := <-poolEvents:
		if !ok {
			return true, errors.New("producer: transaction pool status channel closed")
		}
		if l.cfg.Trigger.IsInstant() && count > 0 {
			if ferr := l.produceFromTrigger(ctx); ferr != nil {
				return true, ferr
			}
		}
		return false, nil
	case <-timerCh:
		if l.cfg.Trigger.IsInterval() {
			if ferr := l.produceFromTrigger(ctx); ferr != nil {
				return true, ferr
			}
		}
		return false, nil
	}
}

func (l *Loop) predefinedForNextHeight() (types.BlockHeader, bool, error) {
	if l.cfg.Predefined == nil {
		return types.BlockHeader{}, false, nil
	}
	l.mu.Lock()
	next, err := l.nextHeightLocked()
	l.mu.Unlock()
	if err != nil {
		return types.BlockHeader{}, false, err
	}
	block, ok := l.cfg.Predefined.GetBlock(next)
	return block, ok, nil
}

func (l *Loop) nextHeightLocked() (types.BlockHeight, error) {
	return l.lastHeight.Next()
}

// handleManual runs a manual request and reports its result to the
// waiting caller. It only returns an error itself for the fatal
// height-overflow case, which must also stop the loop rather than be
// reported to the caller alone.
func (l *Loop) handleManual(ctx context.Context, req ManualRequest) error {
	err := l.runManual(ctx, req)
	select {
	case req.Response <- err:
	default:
	}
	if errors.Is(err, types.ErrHeightOverflow) {
		l.cfg.Log.Error("producer: next height overflow, stopping", "err", err)
		return err
	}
	return nil
}

func (l *Loop) runManual(ctx context.Context, req ManualRequest) error {
	switch req.Mode {
	case ModeBlocks:
		n := req.NumBlocks
		if n <= 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			if err := l.produceOne(ctx, KindManual, req.StartTime, nil); err != nil {
				return err
			}
			req.StartTime = nil // only the first block honors an explicit start time
		}
		return nil
	case ModeBlockWithTransactions:
		return l.produceOne(ctx, KindManual, req.StartTime, req.TxIDs)
	default:
		return fmt.Errorf("producer: unknown manual mode %v", req.Mode)
	}
}

// produceFromTrigger returns a non-nil error only for the fatal
// height-overflow case; other production failures are logged and
// swallowed so a transient error does not stop trigger-driven
// production.
func (l *Loop) produceFromTrigger(ctx context.Context) error {
	err := l.produceOne(ctx, KindTrigger, nil, nil)
	if err == nil {
		return nil
	}
	xmetrics.BlockProductionErrors.Inc(1)
	if errors.Is(err, types.ErrHeightOverflow) {
		l.cfg.Log.Error("producer: next height overflow, stopping", "err", err)
		return err
	}
	l.cfg.Log.Error("producer: trigger-driven production failed", "err", err)
	return nil
}

func (l *Loop) producePredefined(ctx context.Context, block types.BlockHeader) error {
	start := time.Now()
	defer func() { xmetrics.BlockProductionTimer.UpdateSince(start) }()

	result, changes, err := l.cfg.Producer.ProducePredefinedBlock(ctx, block)
	if err != nil {
		xmetrics.BlockProductionErrors.Inc(1)
		return fmt.Errorf("producer: produce predefined block: %w", err)
	}
	return l.sealAndCommit(ctx, block.Height, block.Time, result, changes)
}

// produceOne implements ProduceBlock: precondition checks, external
// assembly call, skipped-tx removal, signing, commit, state advance,
// and timer re-arm per the trigger/kind matrix (§4.7, §4.7.1).
func (l *Loop) produceOne(ctx context.Context, kind Kind, startTime *time.Time, manualTxs []types.TxID) error {
	if l.cfg.SigningKey == nil {
		return ErrNoConsensusKey
	}

	l.mu.Lock()
	nextHeight, err := l.nextHeightLocked()
	if err != nil {
		l.mu.Unlock()
		return err
	}
	blockTime := l.computeNextTime(kind, startTime)
	if blockTime.Unix() < l.lastTimestamp.Unix() {
		l.mu.Unlock()
		return ErrNonMonotonicTimestamp
	}
	l.mu.Unlock()

	start := time.Now()
	defer func() { xmetrics.BlockProductionTimer.UpdateSince(start) }()

	source := BlockSource{ManualTransactions: manualTxs}
	result, changes, err := l.cfg.Producer.ProduceAndExecuteBlock(ctx, nextHeight, blockTime, source)
	if err != nil {
		xmetrics.BlockProductionErrors.Inc(1)
		return fmt.Errorf("producer: produce and execute block: %w", err)
	}

	if err := l.sealAndCommit(ctx, nextHeight, blockTime, result, changes); err != nil {
		return err
	}
	l.rearmTimer(kind)
	return nil
}

func (l *Loop) sealAndCommit(ctx context.Context, height types.BlockHeight, blockTime types.Tai64Timestamp, result ExecutionResult, changes Changes) error {
	if len(result.SkippedTransactions) > 0 {
		if l.cfg.Pool != nil {
			l.cfg.Pool.RemoveTxs(result.SkippedTransactions)
		}
		xmetrics.SkippedTransactions.Inc(int64(len(result.SkippedTransactions)))
	}

	header := result.Block
	header.Height = height
	header.Time = blockTime
	sig, err := crypto.Sign(header.Hash().Bytes(), l.cfg.SigningKey)
	if err != nil {
		return fmt.Errorf("producer: sign block: %w", err)
	}
	result.Block = header

	sealed := types.SealedBlock[Uncommitted]{
		Block: Uncommitted{Result: result, Changes: changes},
		Seal:  types.Seal{Signature: sig},
	}

	if err := l.cfg.Importer.CommitResult(ctx, sealed); err != nil {
		l.cfg.Log.Crit("producer: commit failed, state is inconsistent", "err", err)
		return fmt.Errorf("producer: commit result: %w", err)
	}

	l.mu.Lock()
	l.lastHeight = height
	l.lastTimestamp = blockTime
	l.lastCreatedAt = time.Now()
	l.mu.Unlock()

	xmetrics.BlocksProduced.Inc(1)
	return nil
}

// computeNextTime implements next_time(kind) from §4.7.1.
func (l *Loop) computeNextTime(kind Kind, manualStart *time.Time) types.Tai64Timestamp {
	if kind == KindManual {
		if manualStart != nil {
			return types.Tai64FromUnix(manualStart.Unix())
		}
		if l.cfg.Trigger.IsInterval() {
			return l.lastTimestamp.Add(l.cfg.Trigger.BlockTime)
		}
		return l.lastTimestamp.Add(time.Since(l.lastCreatedAt))
	}

	now := types.Tai64Now()
	if now.Unix() > l.lastTimestamp.Unix() {
		return now
	}
	// Trigger fallback to Manual's own computation.
	if l.cfg.Trigger.IsInterval() {
		return l.lastTimestamp.Add(l.cfg.Trigger.BlockTime)
	}
	return l.lastTimestamp.Add(time.Since(l.lastCreatedAt))
}

// rearmTimer applies the §4.7.1 timer/trigger matrix.
func (l *Loop) rearmTimer(kind Kind) {
	if !l.cfg.Trigger.IsInterval() {
		return
	}
	l.mu.Lock()
	deadline := l.lastCreatedAt.Add(l.cfg.Trigger.BlockTime)
	l.mu.Unlock()

	policy := clock.Overwrite
	if kind == KindTrigger {
		policy = clock.Min
	}
	l.clock.Arm(deadline, policy)
}
