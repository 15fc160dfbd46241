package build

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"text/template"

	"git.home.luguber.info/inful/mediapipe/internal/asset"
	"git.home.luguber.info/inful/mediapipe/internal/config"
	ferrors "git.home.luguber.info/inful/mediapipe/internal/foundation/errors"
	"git.home.luguber.info/inful/mediapipe/internal/logfields"
	"git.home.luguber.info/inful/mediapipe/internal/observability"
	"git.home.luguber.info/inful/mediapipe/internal/plugin"
)

// Builder renders markup for assets.
type Builder struct {
	mirrorRoot  string
	publicPath  string
	maxWidth    float64
	posterMode  string
	posterURL   string
	concurrency int
	overrides   map[asset.Type]*template.Template

	registry *plugin.Registry
	logger   *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithConcurrency caps parallel builds in BuildAll.
func WithConcurrency(n int) Option {
	return func(b *Builder) { b.concurrency = n }
}

// New returns a Builder consulting reg before the defaults. A nil reg means
// defaults only. Override templates are parsed here.
func New(cfg *config.Config, reg *plugin.Registry, opts ...Option) (*Builder, error) {
	mode, fixed := cfg.Build.PosterMode()
	b := &Builder{
		mirrorRoot:  cfg.MirrorRoot,
		publicPath:  cfg.PublicPath,
		maxWidth:    float64(cfg.Build.MaxWidth),
		posterMode:  mode,
		posterURL:   fixed,
		concurrency: cfg.Pipeline.Concurrency,
		overrides:   make(map[asset.Type]*template.Template),
		registry:    reg,
		logger:      observability.OrDefault(nil),
	}
	if b.registry == nil {
		b.registry = plugin.NewRegistry()
	}
	for kind, text := range cfg.Build.Overrides {
		t, err := asset.ParseType(kind)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid build override kind").Fatal().Build()
		}
		tmpl, err := template.New(kind).Funcs(templateFuncs).Parse(text)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid build override template").
				Fatal().WithContext("kind", kind).Build()
		}
		b.overrides[t] = tmpl
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// BuildAll renders every asset concurrently. The first error aborts the batch.
func (b *Builder) BuildAll(ctx context.Context, assets []asset.Asset) ([]asset.Asset, error) {
	chain := b.registry.Chain()
	return asset.Batch(ctx, assets, b.concurrency, func(ctx context.Context, a asset.Asset) (asset.Asset, error) {
		return b.build(ctx, chain, a)
	})
}

// Build resolves a and sets its HTML.
func (b *Builder) Build(ctx context.Context, a asset.Asset) (asset.Asset, error) {
	return b.build(ctx, b.registry.Chain(), a)
}

func (b *Builder) build(ctx context.Context, chain plugin.Chain, a asset.Asset) (asset.Asset, error) {
	resolved, _, ok := chain.ResolveFirst(ctx, a)
	if !ok {
		resolved = b.Resolve(a)
	}

	if html, _, ok := chain.BuildFirst(ctx, resolved); ok {
		resolved.HTML = html
		return resolved, nil
	}

	html, err := b.render(resolved, resolved.Type, true)
	if err != nil {
		return a, err
	}
	resolved.HTML = html
	b.logger.DebugContext(ctx, "Built markup", logfields.URI(a.Syntax.URI), logfields.Kind(string(a.Type)))
	return resolved, nil
}

// BuildAs renders a with the default markup of kind, ignoring plugins and
// overrides. Content is filled by the default resolution when empty.
func (b *Builder) BuildAs(_ context.Context, a asset.Asset, kind asset.Type) (string, error) {
	a = a.As(kind)
	if a.Content == "" {
		a = b.Resolve(a)
	}
	return b.render(a, kind, false)
}

// Resolve applies the default resolution: local kinds point Content at the
// derivative's public URL, falling back to the source; external links keep
// their URL.
func (b *Builder) Resolve(a asset.Asset) asset.Asset {
	switch {
	case a.Type.IsLocal() && a.EncodedPath != "":
		a.Content = b.PublicURL(a.EncodedPath)
	default:
		a.Content = sourceURL(a)
	}
	return a
}

// PublicURL maps a path under the mirror root to its site URL. Paths outside
// the mirror root are returned in slash form.
func (b *Builder) PublicURL(path string) string {
	rel, err := filepath.Rel(b.mirrorRoot, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(path)
	}
	return b.publicPath + filepath.ToSlash(rel)
}

func (b *Builder) render(a asset.Asset, kind asset.Type, allowOverride bool) (string, error) {
	if tmpl, ok := b.overrides[kind]; ok && allowOverride {
		return b.renderOverride(tmpl, a)
	}
	node := b.defaultNode(a, kind)
	return renderNode(node)
}

func sourceURL(a asset.Asset) string {
	if a.SourceURL != "" {
		return a.SourceURL
	}
	return a.Syntax.URI
}
