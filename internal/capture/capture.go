// Package capture finds media references in document text and classifies them.
package capture

import (
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/mediapipe/internal/asset"
	"git.home.luguber.info/inful/mediapipe/internal/config"
	ferrors "git.home.luguber.info/inful/mediapipe/internal/foundation/errors"
	"git.home.luguber.info/inful/mediapipe/internal/markdown"
	"git.home.luguber.info/inful/mediapipe/internal/observability"
)

// Scanner matches the capture pattern against documents.
type Scanner struct {
	pattern  *regexp.Regexp
	titleIdx int
	uriIdx   int
	skipCode bool

	exts map[string]asset.Type
	// host is nil when external links are disabled.
	host *regexp.Regexp

	logger *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger that reports matches left in the text.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// New compiles the capture and host patterns. The capture pattern must expose
// the named groups "title" and "uri".
func New(cfg config.CaptureConfig, kinds config.KindsConfig, ext config.ExternalConfig, opts ...Option) (*Scanner, error) {
	re, err := regexp.Compile(cfg.Pattern)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid capture pattern").
			Fatal().WithContext("pattern", cfg.Pattern).Build()
	}
	s := &Scanner{
		pattern:  re,
		titleIdx: re.SubexpIndex("title"),
		uriIdx:   re.SubexpIndex("uri"),
		skipCode: cfg.SkipCode,
		exts:     make(map[string]asset.Type),
		logger:   observability.OrDefault(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.titleIdx < 0 || s.uriIdx < 0 {
		return nil, ferrors.ConfigError("capture pattern must define named groups \"title\" and \"uri\"").
			WithContext("pattern", cfg.Pattern).Build()
	}

	// Later lists win on duplicates: video over animation over image.
	for _, e := range kinds.Image {
		s.exts[strings.ToLower(e)] = asset.TypeImage
	}
	for _, e := range kinds.Animation {
		s.exts[strings.ToLower(e)] = asset.TypeAnimation
	}
	for _, e := range kinds.Video {
		s.exts[strings.ToLower(e)] = asset.TypeVideo
	}

	if ext.Enabled && ext.HostPattern != "" {
		host, err := regexp.Compile(ext.HostPattern)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid external host pattern").
				Fatal().WithContext("pattern", ext.HostPattern).Build()
		}
		s.host = host
	}
	return s, nil
}

// Scan returns one asset per match in document order. Offsets refer to doc.
func (s *Scanner) Scan(doc []byte) []asset.Asset {
	matches := s.pattern.FindAllSubmatchIndex(doc, -1)
	if len(matches) == 0 {
		return nil
	}

	var code []markdown.Range
	if s.skipCode {
		code = markdown.CodeRanges(doc)
	}

	assets := make([]asset.Asset, 0, len(matches))
	for _, m := range matches {
		start, end := m[0], m[1]
		if s.skipCode && markdown.InCode(code, start, end) {
			s.logger.Debug("Match inside code left as text", slog.Int("offset", start),
				slog.String("match", string(doc[start:end])))
			continue
		}
		uri := strings.TrimSpace(group(doc, m, s.uriIdx))
		if uri == "" {
			s.logger.Debug("Match without URI left as text", slog.Int("offset", start),
				slog.String("match", string(doc[start:end])))
			continue
		}
		assets = append(assets, asset.Asset{
			Syntax: asset.Syntax{
				Title: group(doc, m, s.titleIdx),
				URI:   uri,
				Start: start,
				End:   end,
			},
			Type:      s.Classify(uri),
			SourceURL: uri,
		})
	}
	return assets
}

func group(doc []byte, m []int, idx int) string {
	lo, hi := m[2*idx], m[2*idx+1]
	if lo < 0 {
		return ""
	}
	return string(doc[lo:hi])
}

// Classify determines the asset kind of a URI. A host pattern match wins,
// then the extension lists; anything else is treated as an image.
func (s *Scanner) Classify(uri string) asset.Type {
	host, p := splitURI(uri)
	if s.host != nil && host != "" && s.host.MatchString(host) {
		return asset.TypeExternal
	}
	if t, ok := s.exts[strings.ToLower(path.Ext(p))]; ok {
		return t
	}
	return asset.TypeImage
}

// splitURI returns the lowercase host (empty for relative references) and the path.
func splitURI(uri string) (host, p string) {
	u, err := url.Parse(uri)
	if err != nil {
		if i := strings.IndexAny(uri, "?#"); i >= 0 {
			uri = uri[:i]
		}
		return "", uri
	}
	return strings.ToLower(u.Hostname()), u.Path
}
