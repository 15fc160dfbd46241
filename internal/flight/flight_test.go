package flight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRunsOncePerKey(t *testing.T) {
	var g Group[int]
	var runs atomic.Int32
	release := make(chan struct{})

	const callers = 16
	var wg sync.WaitGroup
	results := make([]int, callers)
	sharedCount := atomic.Int32{}
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err, shared := g.Do("dest", func() (int, error) {
				runs.Add(1)
				<-release
				return 42, nil
			})
			assert.NoError(t, err)
			if shared {
				sharedCount.Add(1)
			}
			results[i] = v
		}()
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), runs.Load())
	assert.Equal(t, int32(callers-1), sharedCount.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestDoMemoizesAfterCompletion(t *testing.T) {
	var g Group[string]
	boom := errors.New("boom")
	runs := 0
	fn := func() (string, error) { runs++; return "", boom }

	_, err, shared := g.Do("k", fn)
	require.ErrorIs(t, err, boom)
	assert.False(t, shared)

	_, err, shared = g.Do("k", fn)
	require.ErrorIs(t, err, boom)
	assert.True(t, shared)
	assert.Equal(t, 1, runs)
}

func TestDistinctKeysIndependent(t *testing.T) {
	var g Group[string]
	a, _, _ := g.Do("a", func() (string, error) { return "A", nil })
	b, _, _ := g.Do("b", func() (string, error) { return "B", nil })
	assert.Equal(t, "A", a)
	assert.Equal(t, "B", b)
	assert.Equal(t, 2, g.Len())
}

func TestLookupAndForget(t *testing.T) {
	var g Group[int]
	_, ok := g.Lookup("x")
	assert.False(t, ok)

	_, _, _ = g.Do("x", func() (int, error) { return 7, nil })
	v, ok := g.Lookup("x")
	require.True(t, ok)
	assert.Equal(t, 7, v)

	g.Forget("x")
	v, _, shared := g.Do("x", func() (int, error) { return 8, nil })
	assert.False(t, shared)
	assert.Equal(t, 8, v)
}

func TestPanicForgetsKey(t *testing.T) {
	var g Group[int]
	assert.Panics(t, func() {
		_, _, _ = g.Do("p", func() (int, error) { panic("bad") })
	})
	assert.Zero(t, g.Len())
}

func TestDoContextDropsCanceledResult(t *testing.T) {
	var g Group[int]
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err, _ := g.DoContext(ctx, "k", func(ctx context.Context) (int, error) { return 0, ctx.Err() })
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, g.Len())

	v, err, shared := g.DoContext(context.Background(), "k", func(context.Context) (int, error) { return 5, nil })
	require.NoError(t, err)
	assert.False(t, shared)
	assert.Equal(t, 5, v)
}

func TestDoContextKeepsFailureFromLiveContext(t *testing.T) {
	var g Group[int]
	boom := errors.New("boom")
	runs := 0
	fn := func(context.Context) (int, error) { runs++; return 0, boom }

	_, err, _ := g.DoContext(context.Background(), "k", fn)
	require.ErrorIs(t, err, boom)
	_, err, shared := g.DoContext(context.Background(), "k", fn)
	require.ErrorIs(t, err, boom)
	assert.True(t, shared)
	assert.Equal(t, 1, runs)
}

func TestDoContextWaiterRerunsAfterLeaderCanceled(t *testing.T) {
	var g Group[int]
	leaderCtx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})

	leaderDone := make(chan error, 1)
	go func() {
		_, err, _ := g.DoContext(leaderCtx, "k", func(ctx context.Context) (int, error) {
			close(started)
			<-ctx.Done()
			return 0, ctx.Err()
		})
		leaderDone <- err
	}()
	<-started

	waiterDone := make(chan int, 1)
	go func() {
		v, err, _ := g.DoContext(context.Background(), "k", func(context.Context) (int, error) { return 9, nil })
		assert.NoError(t, err)
		waiterDone <- v
	}()

	cancel()
	require.ErrorIs(t, <-leaderDone, context.Canceled)
	assert.Equal(t, 9, <-waiterDone)
}
