package plugin

import (
	"context"
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/mediapipe/internal/asset"
	"git.home.luguber.info/inful/mediapipe/internal/cachestore"
	"git.home.luguber.info/inful/mediapipe/internal/config"
)

// DefaultBuilder renders an asset with the built-in markup for kind,
// bypassing the plugin chain.
type DefaultBuilder interface {
	BuildAs(ctx context.Context, a asset.Asset, kind asset.Type) (string, error)
}

// Context provides plugins with pipeline services.
type Context struct {
	// Config is the pipeline configuration.
	Config *config.Config

	// Cache is the run's cache store. Plugins use their own categories.
	Cache *cachestore.Store

	// HTTPClient is shared with the downloader's transport settings.
	HTTPClient *http.Client

	// Logger is scoped to the plugin by the registry.
	Logger *slog.Logger

	// Builder renders default markup for sub-steps such as a poster image.
	Builder DefaultBuilder
}

// withLogger returns a copy whose Logger carries the plugin name.
func (c *Context) withLogger(l *slog.Logger) *Context {
	cp := *c
	cp.Logger = l
	return &cp
}
