// Package plugin provides the resolver/builder extension chain.
//
// A plugin contributes Resolvers, which fill in asset content, and Builders,
// which produce replacement markup. Both answer with a foundation.Option:
// Some means the asset was handled and the chain stops; None passes it on.
// Assets nobody handles fall through to the default resolution and markup.
package plugin

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/mediapipe/internal/asset"
	"git.home.luguber.info/inful/mediapipe/internal/foundation"
)

// Plugin bundles resolvers and builders under one identity.
type Plugin interface {
	// Metadata returns the plugin's identity.
	Metadata() PluginMetadata

	// Resolvers returns the plugin's resolvers in evaluation order.
	Resolvers() []Resolver

	// Builders returns the plugin's builders in evaluation order.
	Builders() []Builder
}

// Initializer is implemented by plugins that need services before use.
type Initializer interface {
	Init(pctx *Context) error
}

// Resolver fills in Content (or other fields) for assets it recognizes.
type Resolver interface {
	Resolve(ctx context.Context, a asset.Asset) foundation.Option[asset.Asset]
}

// Builder produces the replacement markup for assets it recognizes.
type Builder interface {
	BuildMarkup(ctx context.Context, a asset.Asset) foundation.Option[string]
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, a asset.Asset) foundation.Option[asset.Asset]

func (f ResolverFunc) Resolve(ctx context.Context, a asset.Asset) foundation.Option[asset.Asset] {
	return f(ctx, a)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context, a asset.Asset) foundation.Option[string]

func (f BuilderFunc) BuildMarkup(ctx context.Context, a asset.Asset) foundation.Option[string] {
	return f(ctx, a)
}

// PluginMetadata describes a plugin's identity.
type PluginMetadata struct {
	// Name is the unique plugin identifier (e.g., "videohost").
	Name string

	// Version is the semantic version (e.g., "v1.0.0").
	Version string

	Type PluginType

	Description string

	// Handles lists the asset kinds the plugin is interested in. Empty means all.
	Handles []asset.Type
}

// String returns a human-readable representation of the plugin metadata.
func (m PluginMetadata) String() string {
	return fmt.Sprintf("%s@%s (%s)", m.Name, m.Version, m.Type)
}

// Validate checks if the plugin metadata is valid.
func (m PluginMetadata) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("plugin name is required")
	}
	if m.Version == "" {
		return fmt.Errorf("plugin version is required")
	}
	if !m.Type.IsValid() {
		return fmt.Errorf("invalid plugin type: %s", m.Type)
	}
	for _, t := range m.Handles {
		if !t.IsValid() {
			return fmt.Errorf("invalid handled asset type: %s", t)
		}
	}
	return nil
}

// Accepts reports whether the plugin wants to see assets of type t.
func (m PluginMetadata) Accepts(t asset.Type) bool {
	if len(m.Handles) == 0 {
		return true
	}
	for _, h := range m.Handles {
		if h == t {
			return true
		}
	}
	return false
}

// BasePlugin provides empty defaults. Plugins embed it and override what they need.
type BasePlugin struct{}

func (BasePlugin) Resolvers() []Resolver { return nil }
func (BasePlugin) Builders() []Builder   { return nil }
