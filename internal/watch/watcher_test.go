package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/mediapipe/internal/observability"
)

func TestWatcherDebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "guide")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	batches := make(chan []string, 4)
	w, err := New(dir, []string{"md"}, func(_ context.Context, paths []string) {
		batches <- paths
	}, WithDebounce(300*time.Millisecond), WithLogger(observability.Discard()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register directories.
	time.Sleep(100 * time.Millisecond)

	a := filepath.Join(dir, "a.md")
	b := filepath.Join(sub, "b.md")
	require.NoError(t, os.WriteFile(a, []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("two"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(a, []byte("one again"), 0o644))

	select {
	case got := <-batches:
		assert.Equal(t, []string{a, b}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no batch delivered")
	}
}

func TestMatches(t *testing.T) {
	w, err := New(t.TempDir(), []string{".MD", "markdown", " "}, func(context.Context, []string) {})
	require.NoError(t, err)
	assert.True(t, w.Matches("/x/doc.md"))
	assert.True(t, w.Matches("/x/doc.Markdown"))
	assert.False(t, w.Matches("/x/.doc.md.123"))
	assert.False(t, w.Matches("/x/doc.txt"))
}

func TestFlusherRunsAndFlushesOnStop(t *testing.T) {
	var n atomic.Int32
	var once sync.Once
	ticked := make(chan struct{})
	f, err := NewFlusher(50*time.Millisecond, func() error {
		n.Add(1)
		once.Do(func() { close(ticked) })
		return nil
	}, observability.Discard())
	require.NoError(t, err)

	f.Start(context.Background())
	select {
	case <-ticked:
	case <-time.After(5 * time.Second):
		t.Fatal("flush job never ran")
	}
	before := n.Load()
	require.NoError(t, f.Stop(context.Background()))
	assert.GreaterOrEqual(t, n.Load(), before+1)
}

func TestNewFlusherRejectsZeroInterval(t *testing.T) {
	_, err := NewFlusher(0, func() error { return nil }, nil)
	assert.Error(t, err)
}
