// Package syncgate implements SyncGate: wraps an external stream of
// peer-connection counts and imported-block notifications, emitting
// NotSynced until the node has maintained the configured peer floor
// for the configured grace period, then Synced(header). The state-
// machine-over-a-channel-of-external-events shape follows
// core/txpool/tx_vectorfee_pool.go's Reset(oldHead, newHead) head-
// tracking pattern: external notifications mutate internal state under
// a lock, with no I/O of its own.
package syncgate

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// State is the SyncGate's two-case state machine.
type State int

const (
	NotSynced State = iota
	Synced
)

func (s State) String() string {
	if s == Synced {
		return "synced"
	}
	return "not_synced"
}

// Gate tracks peer connectivity and block imports to decide whether
// the node is caught up enough to produce blocks.
type Gate struct {
	minReservedPeers int
	timeUntilSynced  time.Duration

	mu             sync.Mutex
	state          State
	lastHeader     common.Hash
	haveLastHeader bool
	aboveSince     time.Time
	haveAboveSince bool
}

// New constructs a Gate requiring minReservedPeers connected peers held
// continuously for timeUntilSynced before transitioning to Synced.
func New(minReservedPeers int, timeUntilSynced time.Duration) *Gate {
	return &Gate{minReservedPeers: minReservedPeers, timeUntilSynced: timeUntilSynced}
}

// OnPeerCountChanged feeds one peer-count observation. It is the
// caller's responsibility to invoke this on every change (or on a
// steady poll); the gate has no timer of its own.
func (g *Gate) OnPeerCountChanged(count int, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if count >= g.minReservedPeers {
		if !g.haveAboveSince {
			g.aboveSince = now
			g.haveAboveSince = true
		}
		if g.state == NotSynced && now.Sub(g.aboveSince) >= g.timeUntilSynced {
			g.state = Synced
		}
	} else {
		g.haveAboveSince = false
		g.state = NotSynced
	}
}

// OnBlockImported updates the last-seen header. It keeps the header
// fresh regardless of state, matching spec.md's "subsequent imported
// blocks keep the last-header updated."
func (g *Gate) OnBlockImported(header common.Hash) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastHeader = header
	g.haveLastHeader = true
}

// State returns the current state, the last imported header (kept in
// either state), and whether any header has been imported yet.
func (g *Gate) State() (State, common.Hash, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state, g.lastHeader, g.haveLastHeader
}

// IsSynced is a convenience predicate used by the producer's main
// select to decide whether to enter the restricted not-synced loop.
func (g *Gate) IsSynced() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == Synced
}
