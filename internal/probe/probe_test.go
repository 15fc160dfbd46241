package probe

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/mediapipe/internal/asset"
	"git.home.luguber.info/inful/mediapipe/internal/cachestore"
	"git.home.luguber.info/inful/mediapipe/internal/config"
	"git.home.luguber.info/inful/mediapipe/internal/observability"
	"git.home.luguber.info/inful/mediapipe/internal/toolexec"
)

type fakeTool struct {
	calls atomic.Int32
	mu    sync.Mutex
	argv  [][]string
	out   string
	err   error
	delay time.Duration
}

func (f *fakeTool) Run(_ context.Context, argv []string) ([]byte, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.argv = append(f.argv, argv)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return []byte(f.out), f.err
}

func localAsset(path string) asset.Asset {
	return asset.Asset{Type: asset.TypeImage, SourcePath: path, Syntax: asset.Syntax{URI: path}}
}

func newProber(t *testing.T, tool toolexec.Runner, store *cachestore.Store) *Prober {
	t.Helper()
	return New(config.Default().Probe, store, WithRunner(tool), WithLogger(observability.Discard()))
}

func TestProbeCacheShortCircuit(t *testing.T) {
	store := cachestore.Open(t.TempDir())
	require.NoError(t, store.Category(CacheCategory).Set("public/a.png", asset.Size{Width: 1024, Height: 768}))

	tool := &fakeTool{out: "1x1\n"}
	got := newProber(t, tool, store).Probe(context.Background(), localAsset("public/a.png"))

	assert.Equal(t, asset.Size{Width: 1024, Height: 768}, got.Size)
	assert.Zero(t, tool.calls.Load())
}

func TestProbeRunsToolAndCaches(t *testing.T) {
	store := cachestore.Open(t.TempDir())
	tool := &fakeTool{out: "640x480\n"}
	p := newProber(t, tool, store)

	got := p.Probe(context.Background(), localAsset("public/b.png"))
	assert.Equal(t, asset.Size{Width: 640, Height: 480}, got.Size)
	require.Len(t, tool.argv, 1)
	assert.Equal(t, "public/b.png", tool.argv[0][len(tool.argv[0])-1])

	var cached asset.Size
	ok, err := store.Category(CacheCategory).GetInto("public/b.png", &cached)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, got.Size, cached)
}

func TestProbeConcurrentSamePathRunsOnce(t *testing.T) {
	tool := &fakeTool{out: "320x200", delay: 20 * time.Millisecond}
	p := newProber(t, tool, cachestore.Open(t.TempDir()))

	in := make([]asset.Asset, 8)
	for i := range in {
		in[i] = localAsset("public/same.png")
	}
	out, err := p.ProbeAll(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int32(1), tool.calls.Load())
	for _, a := range out {
		assert.Equal(t, 320.0, a.Size.Width)
	}
}

func TestProbeFailureYieldsNaNAndNoCache(t *testing.T) {
	store := cachestore.Open(t.TempDir())
	cases := map[string]*fakeTool{
		"tool error":     {err: errors.New("exit status 1")},
		"garbage output": {out: "N/A\n"},
	}
	for name, tool := range cases {
		t.Run(name, func(t *testing.T) {
			p := newProber(t, tool, store)
			got := p.Probe(context.Background(), localAsset("public/"+name+".png"))
			assert.True(t, math.IsNaN(got.Size.Width))
			assert.True(t, math.IsNaN(got.Size.Height))
			assert.Zero(t, store.Category(CacheCategory).Len())
		})
	}
}

func TestProbeExternalGetsZeroSize(t *testing.T) {
	tool := &fakeTool{out: "1x1"}
	got := newProber(t, tool, nil).Probe(context.Background(), asset.Asset{Type: asset.TypeExternal})
	assert.Equal(t, asset.ZeroSize, got.Size)
	assert.Zero(t, tool.calls.Load())
}

func TestParse(t *testing.T) {
	assert.Equal(t, asset.Size{Width: 1920, Height: 1080}, Parse([]byte("1920x1080\n")))
	assert.Equal(t, asset.Size{Width: 1920, Height: 1080}, Parse([]byte("1920x1080x\nextra")))
	assert.False(t, Parse([]byte("width=1920")).Known())
	assert.False(t, Parse(nil).Known())
}
