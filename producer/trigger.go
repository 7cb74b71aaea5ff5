package producer

import (
	"errors"
	"time"

	"github.com/chainforge/corenode/types"
)

// Trigger selects the production policy.
type Trigger struct {
	kind      triggerKind
	BlockTime time.Duration // only meaningful when kind == triggerInterval
}

type triggerKind int

const (
	triggerNever triggerKind = iota
	triggerInstant
	triggerInterval
)

// Never produces only in response to manual requests.
func Never() Trigger { return Trigger{kind: triggerNever} }

// Instant produces a block whenever the pool becomes non-empty.
func Instant() Trigger { return Trigger{kind: triggerInstant} }

// Interval produces a block every blockTime.
func Interval(blockTime time.Duration) Trigger {
	return Trigger{kind: triggerInterval, BlockTime: blockTime}
}

func (t Trigger) IsNever() bool    { return t.kind == triggerNever }
func (t Trigger) IsInstant() bool  { return t.kind == triggerInstant }
func (t Trigger) IsInterval() bool { return t.kind == triggerInterval }

// Kind distinguishes a timer-driven production event from a manual
// request, since both can trigger ProduceBlock but re-arm the timer
// differently (§4.7.1).
type Kind int

const (
	KindTrigger Kind = iota
	KindManual
)

// ManualMode selects between producing N empty/pool-sourced blocks and
// producing exactly one block with a caller-supplied transaction list.
type ManualMode int

const (
	ModeBlocks ManualMode = iota
	ModeBlockWithTransactions
)

// ManualRequest is the payload sent over the manual-production channel.
type ManualRequest struct {
	StartTime *time.Time // nil means "use next_time's own computation"
	Mode      ManualMode
	NumBlocks int            // valid when Mode == ModeBlocks
	TxIDs     []types.TxID   // valid when Mode == ModeBlockWithTransactions

	// Response receives exactly one error (nil on success). The
	// producer owns the only sender and never closes this channel
	// from outside an in-flight request, per spec.md's "one-shot
	// success/error" contract.
	Response chan<- error
}

var (
	// ErrNoConsensusKey is returned when production is attempted
	// without a configured signing key.
	ErrNoConsensusKey = errors.New("producer: no consensus signing key configured")
	// ErrNonMonotonicTimestamp is returned when a requested block_time
	// is not >= the last produced timestamp.
	ErrNonMonotonicTimestamp = errors.New("producer: block time is not monotonically increasing")
	// ErrManualChannelClosed is a fatal invariant violation: the loop
	// owns the only sender, so a closed receiver means something else
	// closed it.
	ErrManualChannelClosed = errors.New("producer: manual request channel closed unexpectedly")
)
