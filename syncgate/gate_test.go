package syncgate

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestGateStartsNotSynced(t *testing.T) {
	g := New(3, 100*time.Millisecond)
	state, _, _ := g.State()
	require.Equal(t, NotSynced, state)
	require.False(t, g.IsSynced())
}

func TestGateTransitionsAfterHoldingPeerFloor(t *testing.T) {
	g := New(3, 50*time.Millisecond)
	now := time.Now()

	g.OnPeerCountChanged(5, now)
	require.False(t, g.IsSynced())

	g.OnPeerCountChanged(5, now.Add(60*time.Millisecond))
	require.True(t, g.IsSynced())
}

func TestGateResetsOnPeerDrop(t *testing.T) {
	g := New(3, 50*time.Millisecond)
	now := time.Now()

	g.OnPeerCountChanged(5, now)
	g.OnPeerCountChanged(1, now.Add(10*time.Millisecond))
	g.OnPeerCountChanged(5, now.Add(20*time.Millisecond))

	// The count rose back above the threshold at 20ms and has been held
	// for 0ms since, below the 50ms requirement.
	require.False(t, g.IsSynced())
}

func TestGateTracksLastImportedHeader(t *testing.T) {
	g := New(1, 0)
	h := common.HexToHash("0x01")
	g.OnBlockImported(h)

	_, lastHeader, ok := g.State()
	require.True(t, ok)
	require.Equal(t, h, lastHeader)
}
