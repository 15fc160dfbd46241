// Package probe measures asset dimensions with an external tool.
//
// Results are resolved from the "size" cache category first, then from a
// probe already running for the same source path, and only then by running
// the tool. Failures yield an unknown (NaN) size and are never cached.
package probe

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"regexp"
	"strconv"

	"git.home.luguber.info/inful/mediapipe/internal/asset"
	"git.home.luguber.info/inful/mediapipe/internal/cachestore"
	"git.home.luguber.info/inful/mediapipe/internal/config"
	"git.home.luguber.info/inful/mediapipe/internal/flight"
	"git.home.luguber.info/inful/mediapipe/internal/logfields"
	"git.home.luguber.info/inful/mediapipe/internal/metrics"
	"git.home.luguber.info/inful/mediapipe/internal/observability"
	"git.home.luguber.info/inful/mediapipe/internal/toolexec"
)

// CacheCategory is the cache category holding measured sizes keyed by source path.
const CacheCategory = "size"

var dimensions = regexp.MustCompile(`^(\d+)x(\d+)`)

// Prober resolves asset sizes.
type Prober struct {
	args        string
	concurrency int
	runner      toolexec.Runner
	cache       *cachestore.Category
	logger      *slog.Logger
	recorder    metrics.Recorder

	inflight flight.Group[asset.Size]
}

// Option configures a Prober.
type Option func(*Prober)

// WithRunner replaces the tool runner.
func WithRunner(r toolexec.Runner) Option {
	return func(p *Prober) {
		if r != nil {
			p.runner = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Prober) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Prober) { p.recorder = metrics.OrNoop(r) }
}

// WithConcurrency caps parallel probes in ProbeAll.
func WithConcurrency(n int) Option {
	return func(p *Prober) { p.concurrency = n }
}

// New returns a Prober using the probe command from cfg. A nil store disables caching.
func New(cfg config.ProbeConfig, store *cachestore.Store, opts ...Option) *Prober {
	p := &Prober{
		args:     cfg.Args,
		runner:   toolexec.ExecRunner{},
		logger:   observability.OrDefault(nil),
		recorder: metrics.NoopRecorder{},
	}
	if store != nil {
		p.cache = store.Category(CacheCategory)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProbeAll measures every asset concurrently. It only fails when ctx is canceled.
func (p *Prober) ProbeAll(ctx context.Context, assets []asset.Asset) ([]asset.Asset, error) {
	return asset.Batch(ctx, assets, p.concurrency, func(ctx context.Context, a asset.Asset) (asset.Asset, error) {
		if err := ctx.Err(); err != nil {
			return a, err
		}
		return p.Probe(ctx, a), nil
	})
}

// Probe returns a with Size set. External assets get asset.ZeroSize.
func (p *Prober) Probe(ctx context.Context, a asset.Asset) asset.Asset {
	if a.Type == asset.TypeExternal || a.SourcePath == "" {
		a.Size = asset.ZeroSize
		return a
	}
	a.Size = p.resolve(ctx, a.SourcePath)
	return a
}

func (p *Prober) resolve(ctx context.Context, path string) asset.Size {
	if size, ok := p.cached(path); ok {
		p.recorder.IncProbeLookup(metrics.ProbeCache)
		return size
	}
	size, _, shared := p.inflight.DoContext(ctx, path, func(ctx context.Context) (asset.Size, error) {
		p.recorder.IncProbeLookup(metrics.ProbeTool)
		return p.measure(ctx, path), nil
	})
	if shared {
		p.recorder.IncProbeLookup(metrics.ProbeInFlight)
	}
	return size
}

func (p *Prober) cached(path string) (asset.Size, bool) {
	if p.cache == nil {
		return asset.Size{}, false
	}
	var size asset.Size
	ok, err := p.cache.GetInto(path, &size)
	if err != nil {
		p.logger.Warn("Ignoring malformed size cache entry", logfields.Path(path), logfields.Error(err))
		return asset.Size{}, false
	}
	return size, ok && size.Known()
}

func (p *Prober) measure(ctx context.Context, path string) asset.Size {
	argv, err := toolexec.ExpandInput(p.args, path)
	if err != nil {
		p.logger.WarnContext(ctx, "Invalid probe command", logfields.Error(err))
		return asset.UnknownSize()
	}
	out, err := p.runner.Run(ctx, argv)
	if err != nil {
		p.recorder.IncToolFailure(toolexec.Name(argv))
		p.logger.WarnContext(ctx, "Probe failed; size unknown", logfields.Tool(toolexec.Name(argv)),
			logfields.Path(path), logfields.Error(err))
		return asset.UnknownSize()
	}

	size := Parse(out)
	if !size.Known() {
		p.logger.WarnContext(ctx, "Unrecognized probe output; size unknown", logfields.Path(path))
		return size
	}
	if p.cache != nil {
		if err := p.cache.Set(path, size); err != nil {
			p.logger.Warn("Failed to cache probe result", logfields.Path(path), logfields.Error(err))
		}
	}
	p.logger.DebugContext(ctx, "Probed asset", logfields.Path(path), slog.String("size", size.String()))
	return size
}

// Parse reads "<w>x<h>" from the first line of tool output. Anything else
// yields asset.UnknownSize.
func Parse(out []byte) asset.Size {
	sc := bufio.NewScanner(bytes.NewReader(out))
	if !sc.Scan() {
		return asset.UnknownSize()
	}
	m := dimensions.FindStringSubmatch(string(bytes.TrimSpace(sc.Bytes())))
	if m == nil {
		return asset.UnknownSize()
	}
	w, errW := strconv.ParseFloat(m[1], 64)
	h, errH := strconv.ParseFloat(m[2], 64)
	if errW != nil || errH != nil {
		return asset.UnknownSize()
	}
	return asset.Size{Width: w, Height: h}
}
