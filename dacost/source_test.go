package dacost

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chainforge/corenode/types"
	"github.com/chainforge/corenode/xlog"
)

type fakeOracle struct {
	mu      sync.Mutex
	batches [][]DaBlockCosts
	calls   int
	errOnce error
}

func (f *fakeOracle) RequestDaBlockCosts(ctx context.Context, recordedHeight types.BlockHeight) ([]DaBlockCosts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errOnce != nil {
		err := f.errOnce
		f.errOnce = nil
		return nil, err
	}
	if f.calls >= len(f.batches) {
		return nil, nil
	}
	b := f.batches[f.calls]
	f.calls++
	return b, nil
}

func TestSourceFiltersBundlesAtOrAboveLatestHeight(t *testing.T) {
	oracle := &fakeOracle{batches: [][]DaBlockCosts{
		{
			{BundleID: 1, L2BlocksStart: 1, L2BlocksEnd: 5},
			{BundleID: 2, L2BlocksStart: 6, L2BlocksEnd: 10},
		},
	}}
	src := New(oracle, 5*time.Millisecond, xlog.New("test"))
	src.SetLatestL2Height(10) // end=10 bundle must be filtered (>= latest)

	ch, unsub := src.Subscribe()
	defer unsub()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go src.Run(ctx)

	select {
	case b := <-ch:
		require.Equal(t, uint64(1), b.BundleID)
	case <-time.After(150 * time.Millisecond):
		t.Fatal("timed out waiting for accepted bundle")
	}

	select {
	case b := <-ch:
		t.Fatalf("unexpected second bundle published: %+v", b)
	case <-time.After(30 * time.Millisecond):
	}

	require.Equal(t, types.BlockHeight(5), src.RecordedHeight())
}

func TestSourceAdvancesRecordedHeightToMaxEnd(t *testing.T) {
	oracle := &fakeOracle{batches: [][]DaBlockCosts{
		{
			{BundleID: 1, L2BlocksStart: 1, L2BlocksEnd: 3},
			{BundleID: 2, L2BlocksStart: 4, L2BlocksEnd: 7},
		},
	}}
	src := New(oracle, 5*time.Millisecond, xlog.New("test"))
	src.SetLatestL2Height(100)

	ch, unsub := src.Subscribe()
	defer unsub()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go src.Run(ctx)

	received := 0
	timeout := time.After(150 * time.Millisecond)
	for received < 2 {
		select {
		case <-ch:
			received++
		case <-timeout:
			t.Fatalf("only received %d of 2 expected bundles", received)
		}
	}
	require.Equal(t, types.BlockHeight(7), src.RecordedHeight())
}

func TestSourceSwallowsOracleErrors(t *testing.T) {
	oracle := &fakeOracle{
		errOnce: errors.New("oracle unavailable"),
		batches: [][]DaBlockCosts{{{BundleID: 9, L2BlocksStart: 1, L2BlocksEnd: 2}}},
	}
	src := New(oracle, 5*time.Millisecond, xlog.New("test"))
	src.SetLatestL2Height(100)

	ch, unsub := src.Subscribe()
	defer unsub()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go src.Run(ctx)

	select {
	case b := <-ch:
		require.Equal(t, uint64(9), b.BundleID)
	case <-time.After(180 * time.Millisecond):
		t.Fatal("expected loop to continue after a swallowed oracle error")
	}
}

