package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWaitReturnsWhenDeadlineFires(t *testing.T) {
	c := New()
	c.Arm(time.Now().Add(20*time.Millisecond), Overwrite)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, c.Wait(ctx))
	require.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestWaitReturnsContextError(t *testing.T) {
	c := New()
	c.Arm(time.Now().Add(time.Hour), Overwrite)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := c.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMinPolicyKeepsEarlierDeadline(t *testing.T) {
	c := New()
	early := time.Now().Add(20 * time.Millisecond)
	late := time.Now().Add(time.Hour)

	c.Arm(early, Min)
	c.Arm(late, Min) // should be ignored: late is not earlier

	got, ok := c.Deadline()
	require.True(t, ok)
	require.True(t, got.Equal(early) || got.Before(late))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

func TestOverwritePolicyReplacesDeadline(t *testing.T) {
	c := New()
	c.Arm(time.Now().Add(time.Hour), Overwrite)
	c.Arm(time.Now().Add(15*time.Millisecond), Overwrite)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

func TestMinPolicyAfterFiringAcceptsLaterDeadline(t *testing.T) {
	c := New()
	c.Arm(time.Now().Add(10*time.Millisecond), Min)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))

	// The first deadline already fired; re-arming to a later one under
	// Min must not be mistaken for "existing deadline is earlier."
	start := time.Now()
	c.Arm(time.Now().Add(20*time.Millisecond), Min)

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	require.NoError(t, c.Wait(ctx2))
	require.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestRearmWakesConcurrentWait(t *testing.T) {
	c := New()
	c.Arm(time.Now().Add(time.Hour), Overwrite)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- c.Wait(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	c.Arm(time.Now().Add(10*time.Millisecond), Overwrite)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Wait did not wake up after re-arm")
	}
}
