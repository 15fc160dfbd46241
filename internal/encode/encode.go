// Package encode produces optimized derivatives of local assets with external tools.
package encode

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/mediapipe/internal/asset"
	"git.home.luguber.info/inful/mediapipe/internal/config"
	"git.home.luguber.info/inful/mediapipe/internal/flight"
	"git.home.luguber.info/inful/mediapipe/internal/logfields"
	"git.home.luguber.info/inful/mediapipe/internal/metrics"
	"git.home.luguber.info/inful/mediapipe/internal/observability"
	"git.home.luguber.info/inful/mediapipe/internal/toolexec"
)

// PosterKind selects the poster command and extension in EncodeConfig.
const PosterKind = "poster"

const posterTag = "-poster"

// Encoder runs the per-kind encode commands.
type Encoder struct {
	cfg         config.EncodeConfig
	suffix      string
	posterAuto  bool
	concurrency int

	runner   toolexec.Runner
	logger   *slog.Logger
	recorder metrics.Recorder

	inflight flight.Group[bool]
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithRunner replaces the tool runner.
func WithRunner(r toolexec.Runner) Option {
	return func(e *Encoder) {
		if r != nil {
			e.runner = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Encoder) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Encoder) { e.recorder = metrics.OrNoop(r) }
}

// WithConcurrency caps parallel encodes in EncodeAll.
func WithConcurrency(n int) Option {
	return func(e *Encoder) { e.concurrency = n }
}

// New returns an Encoder for cfg.
func New(cfg *config.Config, opts ...Option) *Encoder {
	mode, _ := cfg.Build.PosterMode()
	e := &Encoder{
		cfg:         cfg.Encode,
		suffix:      cfg.Suffix,
		posterAuto:  mode == config.PosterAuto,
		concurrency: cfg.Pipeline.Concurrency,
		runner:      toolexec.ExecRunner{},
		logger:      observability.OrDefault(nil),
		recorder:    metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EncodeAll encodes every asset concurrently. Encoding failures degrade to
// pass-through; only cancellation returns an error.
func (e *Encoder) EncodeAll(ctx context.Context, assets []asset.Asset) ([]asset.Asset, error) {
	return asset.Batch(ctx, assets, e.concurrency, func(ctx context.Context, a asset.Asset) (asset.Asset, error) {
		if err := ctx.Err(); err != nil {
			return a, err
		}
		return e.Encode(ctx, a), nil
	})
}

// Encode sets EncodedPath (and PosterPath for videos in auto poster mode).
// Disabled kinds and failures leave the fields empty.
func (e *Encoder) Encode(ctx context.Context, a asset.Asset) asset.Asset {
	if !a.Type.IsLocal() || a.SourcePath == "" {
		return a
	}
	kind := string(a.Type)
	if cmd := e.cfg.Command(kind); cmd != "" {
		out := e.OutputPath(a.SourcePath, kind)
		if e.run(ctx, kind, cmd, a.SourcePath, out) {
			a.EncodedPath = out
		}
	}
	if a.Type == asset.TypeVideo && e.posterAuto {
		if cmd := e.cfg.Command(PosterKind); cmd != "" {
			out := e.PosterPath(a.SourcePath)
			if e.run(ctx, PosterKind, cmd, a.SourcePath, out) {
				a.PosterPath = out
			}
		}
	}
	return a
}

// OutputPath returns <dir>/<base><suffix><ext> for the kind's derivative.
func (e *Encoder) OutputPath(src, kind string) string {
	return e.derivative(src, "", e.cfg.Ext(kind))
}

// PosterPath returns the poster frame path for a video source.
func (e *Encoder) PosterPath(src string) string {
	return e.derivative(src, posterTag, e.cfg.Ext(PosterKind))
}

func (e *Encoder) derivative(src, tag, ext string) string {
	dir, file := filepath.Split(src)
	base := strings.TrimSuffix(file, filepath.Ext(file))
	return filepath.Join(dir, base+e.suffix+tag+ext)
}

// run reports whether out holds a usable derivative afterwards. Each output
// path is produced at most once per Encoder.
func (e *Encoder) run(ctx context.Context, kind, cmd, src, out string) bool {
	ok, _, shared := e.inflight.DoContext(ctx, out, func(ctx context.Context) (bool, error) {
		return e.produce(ctx, kind, cmd, src, out), nil
	})
	if shared {
		e.logger.DebugContext(ctx, "Reusing derivative from this run", logfields.Kind(kind), logfields.Path(out))
	}
	return ok
}

func (e *Encoder) produce(ctx context.Context, kind, cmd, src, out string) bool {
	if Fresh(src, out) {
		e.logger.DebugContext(ctx, "Derivative up to date", logfields.Kind(kind), logfields.Path(out))
		return true
	}

	argv, err := toolexec.Expand(cmd, toolexec.Vars{
		toolexec.InputPlaceholder:  src,
		toolexec.OutputPlaceholder: out,
	})
	if err != nil {
		e.warn(ctx, kind, "", src, err)
		return false
	}
	if !strings.Contains(cmd, toolexec.OutputPlaceholder) {
		argv = append(argv, out)
	}

	start := time.Now()
	if _, err := e.runner.Run(ctx, argv); err != nil {
		_ = os.Remove(out)
		e.recorder.IncToolFailure(toolexec.Name(argv))
		e.warn(ctx, kind, toolexec.Name(argv), src, err)
		return false
	}
	if _, err := os.Stat(out); err != nil {
		e.warn(ctx, kind, toolexec.Name(argv), src, err)
		return false
	}
	e.logger.InfoContext(ctx, "Encoded asset", logfields.Kind(kind), logfields.Path(out), logfields.Since(start))
	return true
}

func (e *Encoder) warn(ctx context.Context, kind, tool, src string, cause error) {
	e.logger.WarnContext(ctx, "Encode failed; using original", logfields.Kind(kind), logfields.Tool(tool),
		logfields.Path(src), logfields.Error(cause))
}

// Fresh reports whether out exists and is newer than src.
func Fresh(src, out string) bool {
	outInfo, err := os.Stat(out)
	if err != nil {
		return false
	}
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false
	}
	return outInfo.ModTime().After(srcInfo.ModTime())
}
