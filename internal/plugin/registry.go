package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/mediapipe/internal/asset"
	"git.home.luguber.info/inful/mediapipe/internal/logfields"
	"git.home.luguber.info/inful/mediapipe/internal/metrics"
	"git.home.luguber.info/inful/mediapipe/internal/observability"
)

// Registry holds plugins in registration order. Earlier plugins take
// precedence in the chain.
type Registry struct {
	mu       sync.RWMutex
	plugins  []Plugin
	names    map[string]struct{}
	recorder metrics.Recorder
	logger   *slog.Logger
}

// NewRegistry creates a new empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		names:    make(map[string]struct{}),
		recorder: metrics.NoopRecorder{},
		logger:   observability.OrDefault(nil),
	}
}

// SetRecorder sets the metrics recorder used when plugins handle assets.
func (r *Registry) SetRecorder(rec metrics.Recorder) {
	r.mu.Lock()
	r.recorder = metrics.OrNoop(rec)
	r.mu.Unlock()
}

// Register appends a plugin to the chain.
// Returns an error for nil plugins, invalid metadata or a duplicate name.
func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return fmt.Errorf("cannot register nil plugin")
	}
	md := p.Metadata()
	if err := md.Validate(); err != nil {
		return fmt.Errorf("invalid plugin metadata: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[md.Name]; exists {
		return fmt.Errorf("plugin %s already registered", md.Name)
	}
	r.names[md.Name] = struct{}{}
	r.plugins = append(r.plugins, p)
	return nil
}

// Init hands pctx to every plugin implementing Initializer, in order.
func (r *Registry) Init(pctx *Context) error {
	logger := observability.OrDefault(pctx.Logger)
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
	for _, p := range r.Plugins() {
		initer, ok := p.(Initializer)
		if !ok {
			continue
		}
		name := p.Metadata().Name
		if err := initer.Init(pctx.withLogger(logger.With(logfields.Plugin(name)))); err != nil {
			return NewPluginError(name, StageInit, err)
		}
	}
	return nil
}

// Plugins returns the registered plugins in order.
func (r *Registry) Plugins() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// Has checks if a plugin with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.names[name]
	return ok
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

type resolverEntry struct {
	plugin PluginMetadata
	Resolver
}

type builderEntry struct {
	plugin PluginMetadata
	Builder
}

// Chain is a snapshot of every resolver and builder in evaluation order.
type Chain struct {
	resolvers []resolverEntry
	builders  []builderEntry
	recorder  metrics.Recorder
	logger    *slog.Logger
}

// Chain flattens the registered plugins into evaluation order.
func (r *Registry) Chain() Chain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := Chain{recorder: r.recorder, logger: r.logger}
	for _, p := range r.plugins {
		md := p.Metadata()
		for _, res := range p.Resolvers() {
			c.resolvers = append(c.resolvers, resolverEntry{plugin: md, Resolver: res})
		}
		for _, b := range p.Builders() {
			c.builders = append(c.builders, builderEntry{plugin: md, Builder: b})
		}
	}
	return c
}

// Len returns the number of resolvers and builders in the chain.
func (c Chain) Len() (resolvers, builders int) {
	return len(c.resolvers), len(c.builders)
}

// ResolveFirst runs resolvers until one handles a. It returns the resolved
// asset and the handling plugin's name, or ok=false when none did.
func (c Chain) ResolveFirst(ctx context.Context, a asset.Asset) (resolved asset.Asset, by string, ok bool) {
	for _, e := range c.resolvers {
		if !e.plugin.Accepts(a.Type) {
			continue
		}
		if v, handled := e.Resolve(ctx, a).Get(); handled {
			c.handled(ctx, e.plugin.Name, StageResolve, a)
			return v, e.plugin.Name, true
		}
	}
	return a, "", false
}

// BuildFirst runs builders until one produces markup for a.
func (c Chain) BuildFirst(ctx context.Context, a asset.Asset) (html string, by string, ok bool) {
	for _, e := range c.builders {
		if !e.plugin.Accepts(a.Type) {
			continue
		}
		if v, handled := e.BuildMarkup(ctx, a).Get(); handled {
			c.handled(ctx, e.plugin.Name, StageBuild, a)
			return v, e.plugin.Name, true
		}
	}
	return "", "", false
}

func (c Chain) handled(ctx context.Context, name, stage string, a asset.Asset) {
	if c.recorder != nil {
		c.recorder.IncPluginHandled(name, stage)
	}
	observability.OrDefault(c.logger).DebugContext(ctx, "Plugin handled asset", logfields.Plugin(name),
		slog.String("stage", stage), logfields.URI(a.Syntax.URI))
}

// ResolveFirst evaluates the current chain. See Chain.ResolveFirst.
func (r *Registry) ResolveFirst(ctx context.Context, a asset.Asset) (asset.Asset, string, bool) {
	return r.Chain().ResolveFirst(ctx, a)
}

// BuildFirst evaluates the current chain. See Chain.BuildFirst.
func (r *Registry) BuildFirst(ctx context.Context, a asset.Asset) (string, string, bool) {
	return r.Chain().BuildFirst(ctx, a)
}
