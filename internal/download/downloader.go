// Package download mirrors remote assets to the local mirror root.
//
// Each destination path is fetched at most once per Downloader: concurrent
// requests share the in-flight operation and later ones reuse its result.
// Transport failures are retried with jittered backoff until the per-
// destination budget is spent. HTTP 429 responses wait for the server's
// Retry-After window without consuming that budget.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/mediapipe/internal/asset"
	"git.home.luguber.info/inful/mediapipe/internal/config"
	"git.home.luguber.info/inful/mediapipe/internal/flight"
	ferrors "git.home.luguber.info/inful/mediapipe/internal/foundation/errors"
	"git.home.luguber.info/inful/mediapipe/internal/logfields"
	"git.home.luguber.info/inful/mediapipe/internal/metrics"
	"git.home.luguber.info/inful/mediapipe/internal/observability"
	"git.home.luguber.info/inful/mediapipe/internal/retry"
)

const partSuffix = ".part"

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Downloader fetches remote assets into the mirror root.
type Downloader struct {
	mirrorRoot  string
	servePrefix string
	userAgent   string
	timeout     time.Duration
	concurrency int
	policy      retry.Policy

	client   *http.Client
	logger   *slog.Logger
	recorder metrics.Recorder
	sleep    Sleeper
	rnd      func(int64) int64

	inflight flight.Group[struct{}]

	mu       sync.Mutex
	failures map[string]int
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) {
		if c != nil {
			d.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Downloader) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(d *Downloader) { d.recorder = metrics.OrNoop(r) }
}

// WithSleeper replaces the backoff wait (tests).
func WithSleeper(s Sleeper) Option {
	return func(d *Downloader) {
		if s != nil {
			d.sleep = s
		}
	}
}

// WithRand replaces the jitter source; rnd(n) must return a value in [0, n).
func WithRand(rnd func(int64) int64) Option {
	return func(d *Downloader) { d.rnd = rnd }
}

// WithAttemptTimeout overrides fetch.timeout for a single attempt.
func WithAttemptTimeout(t time.Duration) Option {
	return func(d *Downloader) { d.timeout = t }
}

// WithConcurrency caps parallel fetches in FetchAll.
func WithConcurrency(n int) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// New builds a Downloader from the configuration.
func New(cfg *config.Config, opts ...Option) (*Downloader, error) {
	policy, err := retry.FromFetch(cfg.Fetch)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid fetch settings").Fatal().Build()
	}
	d := &Downloader{
		mirrorRoot:  cfg.MirrorRoot,
		servePrefix: cfg.ServePrefix,
		userAgent:   cfg.Fetch.UserAgent,
		timeout:     cfg.Fetch.TimeoutDuration(),
		concurrency: cfg.Pipeline.Concurrency,
		policy:      policy,
		client:      &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		logger:      observability.OrDefault(nil),
		recorder:    metrics.NoopRecorder{},
		sleep:       sleepContext,
		failures:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// FetchAll mirrors every asset concurrently, returning them in input order
// with SourcePath set. The first fatal error aborts the batch.
func (d *Downloader) FetchAll(ctx context.Context, assets []asset.Asset) ([]asset.Asset, error) {
	return asset.Batch(ctx, assets, d.concurrency, d.Fetch)
}

// Fetch resolves the asset's mirror path and downloads it when needed.
// External assets are returned with an empty SourcePath and no I/O.
func (d *Downloader) Fetch(ctx context.Context, a asset.Asset) (asset.Asset, error) {
	if a.Type == asset.TypeExternal {
		a.SourcePath = ""
		return a, nil
	}
	uri := a.SourceURL
	if uri == "" {
		uri = a.Syntax.URI
	}
	dest, remote, err := d.Destination(uri)
	if err != nil {
		return a, ferrors.ValidationError("cannot map asset to mirror path").WithCause(err).
			WithContext("uri", uri).Build()
	}
	a.SourcePath = dest
	if !remote {
		d.recorder.IncDownload(metrics.DownloadLocal)
		return a, nil
	}

	_, err, shared := d.inflight.DoContext(ctx, dest, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.download(ctx, uri, dest)
	})
	if shared {
		d.recorder.IncDownload(metrics.DownloadShared)
	}
	return a, err
}

// Failures returns the transport failure count recorded for dest.
func (d *Downloader) Failures(dest string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failures[dest]
}

func (d *Downloader) recordFailure(dest string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[dest]++
	return d.failures[dest]
}

func (d *Downloader) download(ctx context.Context, rawURL, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		d.recorder.IncDownload(metrics.DownloadExisting)
		d.logger.DebugContext(ctx, "Mirror file exists; skipping download", logfields.URL(rawURL), logfields.Dest(dest))
		return nil
	}

	for attempt := 1; ; attempt++ {
		start := time.Now()
		err := d.attempt(ctx, rawURL, dest)
		if err == nil {
			d.recorder.IncDownload(metrics.DownloadFetched)
			d.logger.InfoContext(ctx, "Downloaded asset", logfields.URL(rawURL), logfields.Dest(dest),
				logfields.Attempt(attempt), logfields.Since(start))
			return nil
		}

		var limited *rateLimitError
		if errors.As(err, &limited) {
			if !limited.valid {
				d.discardPartial(dest)
				d.recorder.IncDownload(metrics.DownloadFailed)
				return ferrors.NetworkError("rate limited without a usable Retry-After header").
					Fatal().WithRetry(ferrors.RetryNever).WithCause(err).
					WithContext("url", rawURL).WithContext("retry_after", limited.header).Build()
			}
			wait := limited.after + time.Second
			d.recorder.IncRetry(metrics.RetryRateLimit)
			d.logger.InfoContext(ctx, "Rate limited; waiting before retry", logfields.URL(rawURL),
				logfields.Wait(wait), logfields.Attempt(attempt))
			if err := d.sleep(ctx, wait); err != nil {
				d.discardPartial(dest)
				return err
			}
			continue
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			d.discardPartial(dest)
			return ctxErr
		}

		failures := d.recordFailure(dest)
		if d.policy.Exhausted(failures) {
			d.discardPartial(dest)
			d.recorder.IncRetryExhausted()
			d.recorder.IncDownload(metrics.DownloadFailed)
			return ferrors.NetworkError("download failed after retries").
				Fatal().WithRetry(ferrors.RetryNever).WithCause(err).
				WithContext("url", rawURL).WithContext("dest", dest).WithContext("failures", failures).Build()
		}

		wait := d.policy.Jitter(failures, d.rnd)
		d.recorder.IncRetry(metrics.RetryTransport)
		d.logger.WarnContext(ctx, "Download failed; retrying", logfields.URL(rawURL), logfields.Attempt(attempt),
			logfields.Wait(wait), logfields.Error(err))
		if err := d.sleep(ctx, wait); err != nil {
			d.discardPartial(dest)
			return err
		}
	}
}

// attempt performs one GET under the per-attempt timeout and streams the body
// to dest via a .part file.
func (d *Downloader) attempt(ctx context.Context, rawURL, dest string) error {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{code: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create mirror directory: %w", err)
	}
	part := dest + partSuffix
	f, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("create partial file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return fmt.Errorf("stream body: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close partial file: %w", err)
	}
	if err := os.Rename(part, dest); err != nil {
		return fmt.Errorf("finalize download: %w", err)
	}
	return nil
}

func (d *Downloader) discardPartial(dest string) {
	for _, p := range []string{dest + partSuffix, dest} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			d.logger.Warn("Failed to remove partial download", logfields.Path(p), logfields.Error(err))
		}
	}
}

type statusError struct{ code int }

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.code, http.StatusText(e.code))
}

type rateLimitError struct {
	header string
	after  time.Duration
	valid  bool
}

func (e *rateLimitError) Error() string {
	if !e.valid {
		return fmt.Sprintf("429 Too Many Requests (Retry-After %q)", e.header)
	}
	return fmt.Sprintf("429 Too Many Requests (retry after %s)", e.after)
}

// parseRetryAfter accepts only the delay-seconds form.
func parseRetryAfter(h string) *rateLimitError {
	h = strings.TrimSpace(h)
	secs, err := strconv.Atoi(h)
	if err != nil || secs < 0 {
		return &rateLimitError{header: h}
	}
	return &rateLimitError{header: h, after: time.Duration(secs) * time.Second, valid: true}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
