package asset

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchPreservesOrder(t *testing.T) {
	in := []Asset{{Syntax: Syntax{URI: "a"}}, {Syntax: Syntax{URI: "b"}}, {Syntax: Syntax{URI: "c"}}}
	out, err := Batch(context.Background(), in, 2, func(_ context.Context, a Asset) (Asset, error) {
		a.Content = "done:" + a.Syntax.URI
		return a, nil
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, a := range out {
		assert.Equal(t, "done:"+in[i].Syntax.URI, a.Content)
	}
	assert.Empty(t, in[0].Content)
}

func TestBatchRespectsLimit(t *testing.T) {
	in := make([]Asset, 20)
	var cur, peak atomic.Int32
	_, err := Batch(context.Background(), in, 3, func(_ context.Context, a Asset) (Asset, error) {
		n := cur.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		cur.Add(-1)
		return a, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestBatchReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	in := make([]Asset, 5)
	_, err := Batch(context.Background(), in, 0, func(_ context.Context, a Asset) (Asset, error) {
		return a, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestBatchEmpty(t *testing.T) {
	out, err := Batch(context.Background(), nil, 4, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
