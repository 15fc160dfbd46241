package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/mediapipe/internal/asset"
	"git.home.luguber.info/inful/mediapipe/internal/config"
	ferrors "git.home.luguber.info/inful/mediapipe/internal/foundation/errors"
	"git.home.luguber.info/inful/mediapipe/internal/observability"
)

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return nil
}

func (r *recordingSleeper) all() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

func newTestDownloader(t *testing.T, srv *httptest.Server, mutate func(*config.Config), opts ...Option) (*Downloader, *recordingSleeper, *config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.MirrorRoot = t.TempDir()
	if srv != nil {
		cfg.ServePrefix = srv.URL + "/assets/"
	}
	if mutate != nil {
		mutate(cfg)
	}
	sl := &recordingSleeper{}
	all := append([]Option{WithSleeper(sl.sleep), WithLogger(observability.Discard())}, opts...)
	if srv != nil {
		all = append(all, WithHTTPClient(srv.Client()))
	}
	d, err := New(cfg, all...)
	require.NoError(t, err)
	return d, sl, cfg
}

func remoteAsset(uri string) asset.Asset {
	return asset.Asset{Syntax: asset.Syntax{URI: uri}, SourceURL: uri, Type: asset.TypeImage}
}

func TestFetchAllSingleFetchPerDestination(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte("PNGDATA"))
	}))
	defer srv.Close()

	d, _, cfg := newTestDownloader(t, srv, nil)
	uri := srv.URL + "/assets/img/photo.png"
	in := make([]asset.Asset, 6)
	for i := range in {
		in[i] = remoteAsset(uri)
	}

	out, err := d.FetchAll(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	want := filepath.Join(cfg.MirrorRoot, "img", "photo.png")
	for _, a := range out {
		assert.Equal(t, want, a.SourcePath)
	}
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "PNGDATA", string(data))
	assert.NoFileExists(t, want+partSuffix)

	// Completed destinations are not fetched again.
	_, err = d.Fetch(context.Background(), remoteAsset(uri))
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchSkipsExistingFile(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	d, _, cfg := newTestDownloader(t, srv, nil)
	dest := filepath.Join(cfg.MirrorRoot, "cached.png")
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0o600))

	a, err := d.Fetch(context.Background(), remoteAsset(srv.URL+"/assets/cached.png"))
	require.NoError(t, err)
	assert.Equal(t, dest, a.SourcePath)
	assert.Zero(t, hits.Load())
}

func TestFetchRateLimitWaitsRetryAfterPlusOne(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d, sl, cfg := newTestDownloader(t, srv, func(c *config.Config) { c.Fetch.Retries = 0 })
	a, err := d.Fetch(context.Background(), remoteAsset(srv.URL+"/assets/a.png"))
	require.NoError(t, err)

	waits := sl.all()
	require.Len(t, waits, 1)
	assert.GreaterOrEqual(t, waits[0], 6*time.Second)
	assert.Equal(t, int32(2), hits.Load())
	assert.Zero(t, d.Failures(a.SourcePath), "429 must not consume the retry budget")
	assert.FileExists(t, filepath.Join(cfg.MirrorRoot, "a.png"))
}

func TestFetchRateLimitInvalidHeaderIsFatal(t *testing.T) {
	for _, header := range []string{"", "Wed, 21 Oct 2015 07:28:00 GMT", "-3"} {
		t.Run(header, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if header != "" {
					w.Header().Set("Retry-After", header)
				}
				w.WriteHeader(http.StatusTooManyRequests)
			}))
			defer srv.Close()

			d, sl, _ := newTestDownloader(t, srv, nil)
			_, err := d.Fetch(context.Background(), remoteAsset(srv.URL+"/assets/a.png"))
			require.Error(t, err)

			ce, ok := ferrors.AsClassified(err)
			require.True(t, ok)
			assert.Equal(t, ferrors.CategoryNetwork, ce.Category())
			assert.Equal(t, ferrors.SeverityFatal, ce.Severity())
			assert.Equal(t, ferrors.RetryNever, ce.RetryStrategy())
			assert.Empty(t, sl.all())
		})
	}
}

func TestFetchRetryExhaustionRemovesPartialFile(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte("truncated"))
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}))
	defer srv.Close()

	d, sl, cfg := newTestDownloader(t, srv, func(c *config.Config) {
		c.Fetch.Retries = 2
		c.Fetch.Delay = "1s"
	})
	_, err := d.Fetch(context.Background(), remoteAsset(srv.URL+"/assets/big/clip.mp4"))
	require.Error(t, err)

	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, ferrors.CategoryNetwork, ce.Category())
	assert.True(t, ce.IsFatal())

	dest := filepath.Join(cfg.MirrorRoot, "big", "clip.mp4")
	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+partSuffix)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, 3, d.Failures(dest))

	waits := sl.all()
	require.Len(t, waits, 2)
	for _, w := range waits {
		assert.GreaterOrEqual(t, w, time.Duration(0))
		assert.Less(t, w, time.Second)
	}
}

func TestFetchNon2xxIsTransportFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d, sl, _ := newTestDownloader(t, srv, func(c *config.Config) { c.Fetch.Retries = 3 })
	a, err := d.Fetch(context.Background(), remoteAsset(srv.URL+"/assets/x.png"))
	require.NoError(t, err)
	assert.Equal(t, 2, d.Failures(a.SourcePath))
	assert.Len(t, sl.all(), 2)
}

func TestFetchAttemptTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	d, _, _ := newTestDownloader(t, srv, func(c *config.Config) { c.Fetch.Retries = 0 },
		WithAttemptTimeout(50*time.Millisecond))
	_, err := d.Fetch(context.Background(), remoteAsset(srv.URL+"/assets/slow.png"))
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryNetwork))
}

func TestFetchLocalAndExternal(t *testing.T) {
	d, _, cfg := newTestDownloader(t, nil, nil)

	local, err := d.Fetch(context.Background(), remoteAsset("img/local.png"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.MirrorRoot, "img", "local.png"), local.SourcePath)

	ext := asset.Asset{Syntax: asset.Syntax{URI: "https://youtu.be/abc"}, SourceURL: "https://youtu.be/abc", Type: asset.TypeExternal}
	got, err := d.Fetch(context.Background(), ext)
	require.NoError(t, err)
	assert.Empty(t, got.SourcePath)
}

func TestDestination(t *testing.T) {
	d, _, cfg := newTestDownloader(t, nil, func(c *config.Config) {
		c.ServePrefix = "https://cdn.example.com/assets/"
	})
	root := cfg.MirrorRoot

	cases := []struct {
		uri    string
		want   string
		remote bool
	}{
		{"https://cdn.example.com/assets/img/a.png", filepath.Join(root, "img", "a.png"), true},
		{"https://cdn.example.com/assets/img/a%20b.png?v=1", filepath.Join(root, "img", "a b.png"), true},
		{"https://other.example.org/path/to/b.gif", filepath.Join(root, RemoteDir, "b.gif"), true},
		{"img/c.png", filepath.Join(root, "img", "c.png"), false},
		{"/img/c.png", filepath.Join(root, "img", "c.png"), false},
		{"../../etc/passwd", filepath.Join(root, "etc", "passwd"), false},
		// Decomposed "é" is normalized to its composed form.
		{"https://other.example.org/cafe\u0301.jpg", filepath.Join(root, RemoteDir, "caf\u00e9.jpg"), true},
	}
	for _, c := range cases {
		got, remote, err := d.Destination(c.uri)
		require.NoError(t, err, c.uri)
		assert.Equal(t, c.want, got, c.uri)
		assert.Equal(t, c.remote, remote, c.uri)
	}

	_, _, err := d.Destination("https://other.example.org/")
	require.Error(t, err)
	_, _, err = d.Destination("ftp://host/file.png")
	require.Error(t, err)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 120*time.Second, parseRetryAfter(" 120 ").after)
	assert.True(t, parseRetryAfter("0").valid)
	assert.False(t, parseRetryAfter("soon").valid)
}
