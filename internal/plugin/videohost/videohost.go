// Package videohost renders links to a video host as clickable thumbnails.
//
// The resolver extracts the video ID and finds the best available thumbnail
// by probing resolution variants with HEAD requests. The builder wraps the
// default image markup for that thumbnail in a link to the watch page.
package videohost

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"git.home.luguber.info/inful/mediapipe/internal/asset"
	"git.home.luguber.info/inful/mediapipe/internal/cachestore"
	"git.home.luguber.info/inful/mediapipe/internal/flight"
	"git.home.luguber.info/inful/mediapipe/internal/foundation"
	"git.home.luguber.info/inful/mediapipe/internal/logfields"
	"git.home.luguber.info/inful/mediapipe/internal/observability"
	"git.home.luguber.info/inful/mediapipe/internal/plugin"
)

const (
	// Name is the plugin name and its cache category.
	Name = "videohost"

	// DefaultThumbnailBase is prefixed to "<id>/<variant>.jpg".
	DefaultThumbnailBase = "https://img.youtube.com/vi/"

	watchBase = "https://www.youtube.com/watch?v="
)

// Variants are the thumbnail resolutions tried in order.
var Variants = []string{"maxresdefault", "sddefault", "hqdefault", "mqdefault", "default"}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Plugin resolves and builds video host links.
type Plugin struct {
	plugin.BasePlugin

	thumbBase string
	client    *http.Client
	cache     *cachestore.Category
	builder   plugin.DefaultBuilder
	logger    *slog.Logger

	inflight flight.Group[string]
}

// Option configures a Plugin.
type Option func(*Plugin)

// WithThumbnailBase overrides the thumbnail host, e.g. for tests.
func WithThumbnailBase(base string) Option {
	return func(p *Plugin) {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		p.thumbBase = base
	}
}

// New returns an uninitialized plugin. Init must run before use.
func New(opts ...Option) *Plugin {
	p := &Plugin{
		thumbBase: DefaultThumbnailBase,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    observability.OrDefault(nil),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Plugin) Metadata() plugin.PluginMetadata {
	return plugin.PluginMetadata{
		Name:        Name,
		Version:     "v1.0.0",
		Type:        plugin.PluginTypeExtension,
		Description: "Thumbnail links for hosted videos",
		Handles:     []asset.Type{asset.TypeExternal},
	}
}

// Init takes the cache, HTTP client, logger and default builder from pctx.
func (p *Plugin) Init(pctx *plugin.Context) error {
	if pctx.HTTPClient != nil {
		p.client = pctx.HTTPClient
	}
	if pctx.Cache != nil {
		p.cache = pctx.Cache.Category(Name)
	}
	p.builder = pctx.Builder
	p.logger = observability.OrDefault(pctx.Logger)
	return nil
}

func (p *Plugin) Resolvers() []plugin.Resolver {
	return []plugin.Resolver{plugin.ResolverFunc(p.resolve)}
}

func (p *Plugin) Builders() []plugin.Builder {
	return []plugin.Builder{plugin.BuilderFunc(p.build)}
}

func (p *Plugin) resolve(ctx context.Context, a asset.Asset) foundation.Option[asset.Asset] {
	id, _, ok := videoRef(a)
	if !ok {
		return foundation.None[asset.Asset]()
	}
	a.Content = p.Thumbnail(ctx, id)
	return foundation.Some(a)
}

func (p *Plugin) build(ctx context.Context, a asset.Asset) foundation.Option[string] {
	id, page, ok := videoRef(a)
	if !ok || p.builder == nil || a.Content == "" {
		return foundation.None[string]()
	}

	poster := a
	poster.SourceURL = a.Content
	poster.SourcePath = ""
	poster.EncodedPath = ""
	inner, err := p.builder.BuildAs(ctx, poster, asset.TypeImage)
	if err != nil {
		p.logger.WarnContext(ctx, "Poster markup failed; using default link", logfields.URI(a.Syntax.URI), logfields.Error(err))
		return foundation.None[string]()
	}

	link := &html.Node{Type: html.ElementNode, DataAtom: atom.A, Data: "a", Attr: []html.Attribute{
		{Key: "class", Val: "video-link"},
		{Key: "data-video-id", Val: id},
		{Key: "href", Val: page},
	}}
	children, err := html.ParseFragment(strings.NewReader(inner), link)
	if err != nil {
		p.logger.WarnContext(ctx, "Poster markup unparsable; using default link", logfields.URI(a.Syntax.URI), logfields.Error(err))
		return foundation.None[string]()
	}
	for _, c := range children {
		link.AppendChild(c)
	}

	var sb strings.Builder
	if err := html.Render(&sb, link); err != nil {
		return foundation.None[string]()
	}
	return foundation.Some(sb.String())
}

// Thumbnail returns the URL of the best available thumbnail for id. Results
// confirmed by the host are cached; when every variant fails the last one is
// returned uncached.
func (p *Plugin) Thumbnail(ctx context.Context, id string) string {
	if p.cache != nil {
		var cached string
		if ok, err := p.cache.GetInto(id, &cached); ok && err == nil && cached != "" {
			return cached
		}
	}
	thumb, _, _ := p.inflight.DoContext(ctx, id, func(ctx context.Context) (string, error) {
		return p.probe(ctx, id), nil
	})
	return thumb
}

func (p *Plugin) probe(ctx context.Context, id string) string {
	var candidate string
	for _, v := range Variants {
		candidate = p.thumbBase + id + "/" + v + ".jpg"
		if p.available(ctx, candidate) {
			if p.cache != nil {
				if err := p.cache.Set(id, candidate); err != nil {
					p.logger.WarnContext(ctx, "Cache write failed", logfields.Category(Name), logfields.Error(err))
				}
			}
			return candidate
		}
	}
	p.logger.WarnContext(ctx, "No thumbnail variant available; using lowest resolution",
		slog.String("video_id", id), logfields.URL(candidate))
	return candidate
}

func (p *Plugin) available(ctx context.Context, u string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.DebugContext(ctx, "Thumbnail probe failed", logfields.URL(u), logfields.Error(err))
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// WatchURL returns the canonical watch page for id.
func WatchURL(id string) string {
	return watchBase + url.QueryEscape(id)
}

// VideoID extracts the video ID from watch?v=, youtu.be/<id>, /embed/<id>
// and /shorts/<id> URLs on the known video hosts.
func VideoID(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "m.", "music."} {
		host = strings.TrimPrefix(host, prefix)
	}

	var id string
	switch host {
	case "youtu.be":
		id = firstSegment(u.Path)
	case "youtube.com", "youtube-nocookie.com":
		id = pathID(u)
	}
	if !idPattern.MatchString(id) {
		return "", false
	}
	return id, true
}

// videoRef returns the video ID of an asset and the page its link opens.
// External assets on other hosts are accepted in the watch?v=, /embed/ and
// /shorts/ forms and link back to their own URL.
func videoRef(a asset.Asset) (id, page string, ok bool) {
	if id, ok := VideoID(a.SourceURL); ok {
		return id, WatchURL(id), true
	}
	if a.Type != asset.TypeExternal {
		return "", "", false
	}
	u, err := url.Parse(a.SourceURL)
	if err != nil || u.Host == "" {
		return "", "", false
	}
	id = pathID(u)
	if !idPattern.MatchString(id) {
		return "", "", false
	}
	return id, a.SourceURL, true
}

func pathID(u *url.URL) string {
	switch {
	case u.Path == "/watch":
		return u.Query().Get("v")
	case strings.HasPrefix(u.Path, "/embed/"):
		return firstSegment(strings.TrimPrefix(u.Path, "/embed"))
	case strings.HasPrefix(u.Path, "/shorts/"):
		return firstSegment(strings.TrimPrefix(u.Path, "/shorts"))
	}
	return ""
}

func firstSegment(p string) string {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return p
}
