package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/mediapipe/internal/asset"
	"git.home.luguber.info/inful/mediapipe/internal/foundation"
)

type stubPlugin struct {
	BasePlugin
	md        PluginMetadata
	resolvers []Resolver
	builders  []Builder
	initErr   error
	initCtx   *Context
}

func (s *stubPlugin) Metadata() PluginMetadata { return s.md }
func (s *stubPlugin) Resolvers() []Resolver    { return s.resolvers }
func (s *stubPlugin) Builders() []Builder      { return s.builders }
func (s *stubPlugin) Init(pctx *Context) error {
	s.initCtx = pctx
	return s.initErr
}

func newStub(name string, handles ...asset.Type) *stubPlugin {
	return &stubPlugin{md: PluginMetadata{Name: name, Version: "v1.0.0", Type: PluginTypeExtension, Handles: handles}}
}

func contentResolver(content string) Resolver {
	return ResolverFunc(func(_ context.Context, a asset.Asset) foundation.Option[asset.Asset] {
		a.Content = content
		return foundation.Some(a)
	})
}

func notHandled() Resolver {
	return ResolverFunc(func(context.Context, asset.Asset) foundation.Option[asset.Asset] {
		return foundation.None[asset.Asset]()
	})
}

func markup(html string) Builder {
	return BuilderFunc(func(context.Context, asset.Asset) foundation.Option[string] {
		return foundation.Some(html)
	})
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()
	require.Error(t, r.Register(nil))

	bad := newStub("")
	require.Error(t, r.Register(bad))

	badType := newStub("x")
	badType.md.Type = "publisher"
	require.Error(t, r.Register(badType))

	badHandles := newStub("y", asset.Type("audio"))
	require.Error(t, r.Register(badHandles))

	require.NoError(t, r.Register(newStub("videohost")))
	require.Error(t, r.Register(newStub("videohost")), "duplicate names are rejected")
	assert.True(t, r.Has("videohost"))
	assert.Equal(t, 1, r.Count())
}

func TestResolveFirstMatchWins(t *testing.T) {
	first := newStub("first")
	first.resolvers = []Resolver{notHandled(), contentResolver("from-first")}
	second := newStub("second")
	second.resolvers = []Resolver{contentResolver("from-second")}

	r := NewRegistry()
	require.NoError(t, r.Register(first))
	require.NoError(t, r.Register(second))

	got, by, ok := r.ResolveFirst(context.Background(), asset.Asset{Type: asset.TypeImage})
	require.True(t, ok)
	assert.Equal(t, "first", by)
	assert.Equal(t, "from-first", got.Content)
}

func TestResolveNoneFallsThrough(t *testing.T) {
	p := newStub("noop")
	p.resolvers = []Resolver{notHandled()}
	r := NewRegistry()
	require.NoError(t, r.Register(p))

	in := asset.Asset{Type: asset.TypeVideo, Content: "orig"}
	got, by, ok := r.ResolveFirst(context.Background(), in)
	assert.False(t, ok)
	assert.Empty(t, by)
	assert.Equal(t, in, got)

	_, _, ok = r.BuildFirst(context.Background(), in)
	assert.False(t, ok)
}

func TestHandlesFiltersAssetTypes(t *testing.T) {
	ext := newStub("ext-only", asset.TypeExternal)
	ext.builders = []Builder{markup("<a>ext</a>")}
	catchAll := newStub("catch-all")
	catchAll.builders = []Builder{markup("<span>all</span>")}

	r := NewRegistry()
	require.NoError(t, r.Register(ext))
	require.NoError(t, r.Register(catchAll))

	html, by, ok := r.BuildFirst(context.Background(), asset.Asset{Type: asset.TypeImage})
	require.True(t, ok)
	assert.Equal(t, "catch-all", by)
	assert.Equal(t, "<span>all</span>", html)

	html, by, ok = r.BuildFirst(context.Background(), asset.Asset{Type: asset.TypeExternal})
	require.True(t, ok)
	assert.Equal(t, "ext-only", by)
	assert.Equal(t, "<a>ext</a>", html)
}

func TestChainSnapshot(t *testing.T) {
	p := newStub("p")
	p.resolvers = []Resolver{notHandled(), notHandled()}
	p.builders = []Builder{markup("x")}
	r := NewRegistry()
	require.NoError(t, r.Register(p))

	res, b := r.Chain().Len()
	assert.Equal(t, 2, res)
	assert.Equal(t, 1, b)
}

func TestInit(t *testing.T) {
	ok := newStub("ok")
	failing := newStub("failing")
	failing.initErr = errors.New("no network")

	r := NewRegistry()
	require.NoError(t, r.Register(ok))
	require.NoError(t, r.Register(failing))

	err := r.Init(&Context{})
	require.Error(t, err)
	var perr *PluginError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "failing", perr.PluginName)
	assert.Equal(t, StageInit, perr.Stage)

	require.NotNil(t, ok.initCtx)
	assert.NotNil(t, ok.initCtx.Logger)
}

func TestMetadataString(t *testing.T) {
	md := PluginMetadata{Name: "videohost", Version: "v1.0.0", Type: PluginTypeExtension}
	assert.Equal(t, "videohost@v1.0.0 (extension)", md.String())
	assert.True(t, md.Accepts(asset.TypeImage))
}
