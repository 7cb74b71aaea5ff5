// Package producer implements BlockProducerLoop, the PoA core: the main
// task that drives block production from triggers, timers, manual
// requests, and predefined blocks, then seals and commits. The
// goroutine/channel/biased-select mechanics are grounded on the
// teacher's miner/worker.go newWorkLoop/mainLoop shape (environment
// struct, interrupt timer, commit/seal/import sequence, wg.Done()+
// exitCh shutdown); the trigger matrix, manual requests, predefined
// blocks and sync gating are the original's poa/service.rs policy,
// translated into this shape.
package producer

import (
	"context"

	"github.com/chainforge/corenode/types"
)

// ExecutionResult is what BlockProducer hands back after assembling and
// executing a block.
type ExecutionResult struct {
	Block              types.BlockHeader
	SkippedTransactions []SkippedTransaction
}

// SkippedTransaction pairs a dropped transaction with the reason it was
// dropped from the assembled block.
type SkippedTransaction struct {
	TxID types.TxID
	Err  error
}

// Changes is an opaque state delta handed from BlockProducer to
// BlockImporter; this repo never interprets its contents.
type Changes any

// BlockSource distinguishes a normal assembly request (txs drawn from
// the pool) from a manual BlockWithTransactions request.
type BlockSource struct {
	ManualTransactions []types.TxID // nil for a normal pool-sourced block
}

// BlockProducer is the external block-assembly service this loop
// drives.
type BlockProducer interface {
	ProduceAndExecuteBlock(ctx context.Context, height types.BlockHeight, blockTime types.Tai64Timestamp, source BlockSource) (ExecutionResult, Changes, error)
	ProducePredefinedBlock(ctx context.Context, block types.BlockHeader) (ExecutionResult, Changes, error)
}

// Uncommitted pairs an ExecutionResult with its Changes for a single
// atomic commit.
type Uncommitted struct {
	Result  ExecutionResult
	Changes Changes
}

// BlockImporter commits sealed blocks. It has no import-result stream;
// SyncGate learns of imported blocks through Gate.OnBlockImported.
type BlockImporter interface {
	CommitResult(ctx context.Context, sealed types.SealedBlock[Uncommitted]) error
}

// TransactionPool is the external mempool this loop observes and
// drains skipped transactions from.
type TransactionPool interface {
	// PendingNumber reports the current count of ready transactions.
	PendingNumber() int
	// RemoveTxs drops transactions with an associated failure reason,
	// e.g. transactions skipped during block assembly.
	RemoveTxs(skipped []SkippedTransaction)
	// StatusEvents returns a channel of pending-count changes; closed
	// channel is a fatal invariant violation for Trigger::Instant.
	StatusEvents() <-chan int
}

// PredefinedBlocks answers "is there a canned block for this height",
// used by chain-spec-driven deployments / deterministic test replay.
type PredefinedBlocks interface {
	GetBlock(height types.BlockHeight) (types.BlockHeader, bool)
}
