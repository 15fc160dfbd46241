// Package pipeline runs documents through Capture, Download, Probe, Encode,
// Build and Rewrite.
//
// A Pipeline owns the services shared by one run: the cache store, the
// downloader and prober single-flight groups, the plugin registry and the
// metrics recorder. Each document passes through the phases strictly in
// order; work inside a phase is concurrent.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/mediapipe/internal/asset"
	"git.home.luguber.info/inful/mediapipe/internal/build"
	"git.home.luguber.info/inful/mediapipe/internal/cachestore"
	"git.home.luguber.info/inful/mediapipe/internal/capture"
	"git.home.luguber.info/inful/mediapipe/internal/config"
	"git.home.luguber.info/inful/mediapipe/internal/download"
	"git.home.luguber.info/inful/mediapipe/internal/encode"
	ferrors "git.home.luguber.info/inful/mediapipe/internal/foundation/errors"
	"git.home.luguber.info/inful/mediapipe/internal/logfields"
	"git.home.luguber.info/inful/mediapipe/internal/metrics"
	"git.home.luguber.info/inful/mediapipe/internal/observability"
	"git.home.luguber.info/inful/mediapipe/internal/plugin"
	"git.home.luguber.info/inful/mediapipe/internal/plugin/videohost"
	"git.home.luguber.info/inful/mediapipe/internal/probe"
	"git.home.luguber.info/inful/mediapipe/internal/rewrite"
	"git.home.luguber.info/inful/mediapipe/internal/toolexec"
)

// Pipeline processes documents with a shared set of phase services.
type Pipeline struct {
	cfg       *config.Config
	phases    Phases
	overrides Phases

	store     *cachestore.Store
	ownsStore bool
	registry  *plugin.Registry
	plugins   []plugin.Plugin

	client   *http.Client
	runner   toolexec.Runner
	recorder metrics.Recorder
	prom     *metrics.PrometheusRecorder
	logger   *slog.Logger

	downloadOpts []download.Option
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger for the pipeline and every phase.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder. Without it a Prometheus recorder
// is created when metrics.textfile is configured.
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithRunner sets the external tool runner used by probe and encode.
func WithRunner(r toolexec.Runner) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.runner = r
		}
	}
}

// WithHTTPClient sets the client shared by the downloader and plugins.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.client = c
		}
	}
}

// WithStore uses an already loaded cache store. The caller is responsible
// for saving it; Close leaves it untouched.
func WithStore(s *cachestore.Store) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.store = s
		}
	}
}

// WithPlugins replaces the default plugin set. Plugins are consulted in the
// given order.
func WithPlugins(plugins ...plugin.Plugin) Option {
	return func(p *Pipeline) { p.plugins = plugins }
}

// WithPhases replaces individual phase implementations.
func WithPhases(ph Phases) Option {
	return func(p *Pipeline) { p.overrides = p.overrides.merge(ph) }
}

// WithDownloadOptions passes extra options to the downloader.
func WithDownloadOptions(opts ...download.Option) Option {
	return func(p *Pipeline) { p.downloadOpts = append(p.downloadOpts, opts...) }
}

// New validates cfg and wires the default phases. The cache store is opened
// and loaded from cfg.CacheDir unless WithStore is given.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, ferrors.ConfigError("configuration is required").Build()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:     cfg,
		client:  &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		runner:  toolexec.ExecRunner{},
		logger:  observability.OrDefault(nil),
		plugins: []plugin.Plugin{videohost.New()},
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.recorder == nil {
		if cfg.Metrics.Textfile != "" {
			p.prom = metrics.NewPrometheusRecorder(nil)
			p.recorder = p.prom
		} else {
			p.recorder = metrics.NoopRecorder{}
		}
	} else if pr, ok := p.recorder.(*metrics.PrometheusRecorder); ok {
		p.prom = pr
	}

	if p.store == nil {
		p.store = cachestore.Open(cfg.CacheDir, cachestore.WithLogger(p.logger))
		p.ownsStore = true
		if err := p.store.Load(); err != nil {
			return nil, ferrors.FileSystemError("failed to load cache").WithCause(err).
				Fatal().WithContext("dir", cfg.CacheDir).Build()
		}
	}

	if err := p.wire(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) wire() error {
	cfg := p.cfg
	limit := cfg.Pipeline.Concurrency

	scanner, err := capture.New(cfg.Capture, cfg.Kinds, cfg.External, capture.WithLogger(p.logger))
	if err != nil {
		return err
	}

	dlOpts := append([]download.Option{
		download.WithHTTPClient(p.client),
		download.WithLogger(p.logger),
		download.WithRecorder(p.recorder),
		download.WithConcurrency(limit),
	}, p.downloadOpts...)
	downloader, err := download.New(cfg, dlOpts...)
	if err != nil {
		return err
	}

	prober := probe.New(cfg.Probe, p.store,
		probe.WithRunner(p.runner),
		probe.WithLogger(p.logger),
		probe.WithRecorder(p.recorder),
		probe.WithConcurrency(limit))

	encoder := encode.New(cfg,
		encode.WithRunner(p.runner),
		encode.WithLogger(p.logger),
		encode.WithRecorder(p.recorder),
		encode.WithConcurrency(limit))

	p.registry = plugin.NewRegistry()
	p.registry.SetRecorder(p.recorder)
	for _, pl := range p.plugins {
		if err := p.registry.Register(pl); err != nil {
			return ferrors.PluginError("failed to register plugin").WithCause(err).Fatal().Build()
		}
	}

	builder, err := build.New(cfg, p.registry, build.WithLogger(p.logger), build.WithConcurrency(limit))
	if err != nil {
		return err
	}

	if err := p.registry.Init(&plugin.Context{
		Config:     cfg,
		Cache:      p.store,
		HTTPClient: p.client,
		Logger:     p.logger,
		Builder:    builder,
	}); err != nil {
		return ferrors.PluginError("failed to initialize plugins").WithCause(err).Fatal().Build()
	}

	p.phases = Phases{
		Capture: func(_ context.Context, doc []byte) ([]asset.Asset, error) {
			return scanner.Scan(doc), nil
		},
		Download: downloader.FetchAll,
		Probe:    prober.ProbeAll,
		Encode:   encoder.EncodeAll,
		Build:    builder.BuildAll,
		Rewrite: func(_ context.Context, doc []byte, assets []asset.Asset) ([]byte, error) {
			return rewrite.Apply(doc, assets)
		},
	}.merge(p.overrides)
	return nil
}

// Store returns the cache store used by the pipeline.
func (p *Pipeline) Store() *cachestore.Store { return p.store }

// Registry returns the plugin registry.
func (p *Pipeline) Registry() *plugin.Registry { return p.registry }

// Process runs doc through every phase and returns the rewritten document.
// docPath only labels logs and the result.
func (p *Pipeline) Process(ctx context.Context, docPath string, doc []byte) (*Result, error) {
	runID := uuid.NewString()
	ctx = observability.WithRunID(ctx, runID)
	ctx = observability.WithDocument(ctx, docPath)

	start := time.Now()
	result := &Result{RunID: runID, Document: docPath, Output: doc}
	defer func() {
		result.Duration = time.Since(start)
		p.recorder.ObserveDocumentDuration(result.Duration)
	}()

	var assets []asset.Asset
	err := p.runPhase(ctx, result, PhaseCapture, func(ctx context.Context) (int, error) {
		var err error
		assets, err = p.phases.Capture(ctx, doc)
		return len(assets), err
	})
	if err != nil {
		return result, err
	}

	for _, name := range []string{PhaseDownload, PhaseProbe, PhaseEncode, PhaseBuild} {
		fn := p.phases.batch(name)
		err := p.runPhase(ctx, result, name, func(ctx context.Context) (int, error) {
			out, err := fn(ctx, assets)
			if err != nil {
				return 0, err
			}
			assets = out
			return len(out), nil
		})
		if err != nil {
			result.Assets = assets
			return result, err
		}
	}
	result.Assets = assets

	err = p.runPhase(ctx, result, PhaseRewrite, func(ctx context.Context) (int, error) {
		out, err := p.phases.Rewrite(ctx, doc, assets)
		if err != nil {
			return 0, err
		}
		result.Output = out
		return len(assets), nil
	})
	if err != nil {
		return result, err
	}

	p.logger.InfoContext(ctx, "Document processed",
		logfields.Count(len(assets)), logfields.Since(start))
	return result, nil
}

// runPhase executes one phase with timing, metrics and skip handling.
func (p *Pipeline) runPhase(ctx context.Context, result *Result, name string, fn func(context.Context) (int, error)) error {
	ctx = observability.WithPhase(ctx, name)
	if p.cfg.SkipsPhase(name) {
		result.Phases = append(result.Phases, PhaseResult{Name: name, Skipped: true})
		p.recorder.IncPhaseResult(name, metrics.ResultSkipped)
		p.logger.DebugContext(ctx, "Phase skipped")
		return nil
	}
	if err := ctx.Err(); err != nil {
		p.recorder.IncPhaseResult(name, metrics.ResultCanceled)
		return err
	}

	start := time.Now()
	n, err := fn(ctx)
	pr := PhaseResult{Name: name, Duration: time.Since(start), Assets: n, Err: err}
	result.Phases = append(result.Phases, pr)
	p.recorder.ObservePhaseDuration(name, pr.Duration)

	switch {
	case err == nil:
		p.recorder.IncPhaseResult(name, metrics.ResultSuccess)
		p.logger.DebugContext(ctx, "Phase completed", logfields.Count(n), logfields.Since(start))
		return nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		p.recorder.IncPhaseResult(name, metrics.ResultCanceled)
		return err
	default:
		p.recorder.IncPhaseResult(name, metrics.ResultFatal)
		p.logger.ErrorContext(ctx, "Phase failed", logfields.Error(err))
		if _, ok := ferrors.AsClassified(err); ok {
			return err
		}
		return ferrors.WrapError(err, ferrors.CategoryPipeline, fmt.Sprintf("%s phase failed", name)).Fatal().Build()
	}
}

// Flush saves dirty cache categories.
func (p *Pipeline) Flush() error {
	if err := p.store.Save(); err != nil {
		return ferrors.FileSystemError("failed to save cache").WithCause(err).
			WithContext("dir", p.store.Dir()).Build()
	}
	return nil
}

// Close saves the cache store when the pipeline opened it and writes the
// metrics textfile when configured.
func (p *Pipeline) Close() error {
	var errs []error
	if p.ownsStore {
		errs = append(errs, p.Flush())
	}
	if p.prom != nil && p.cfg.Metrics.Textfile != "" {
		if err := p.prom.WriteTextfile(p.cfg.Metrics.Textfile); err != nil {
			errs = append(errs, fmt.Errorf("write metrics textfile: %w", err))
		}
	}
	return errors.Join(errs...)
}
