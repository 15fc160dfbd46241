// Package flight provides a keyed, memoizing single-flight group.
//
// Unlike golang.org/x/sync/singleflight, a Group remembers every completed
// result for its lifetime, so each key runs at most once per Group. The
// pipeline creates one Group per run for downloads, probes and encodes.
package flight

import (
	"context"
	"sync"
)

type call[T any] struct {
	done chan struct{}
	val  T
	err  error

	// interrupted is set when the work ended with its context done.
	interrupted bool
}

// Group deduplicates work by key. The zero value is ready to use.
type Group[T any] struct {
	mu    sync.Mutex
	calls map[string]*call[T]
}

// Do runs fn once for key. Concurrent and later callers with the same key
// block until the first call finishes and receive its result. shared is true
// for every caller except the one that ran fn.
func (g *Group[T]) Do(key string, fn func() (T, error)) (val T, err error, shared bool) {
	c, leader := g.join(key)
	if !leader {
		<-c.done
		return c.val, c.err, true
	}
	g.run(nil, key, c, fn)
	return c.val, c.err, false
}

// DoContext is Do for work bound to ctx. A result produced after the
// running caller's ctx was done is not remembered, and a waiting caller whose
// own ctx is still live runs fn itself instead of inheriting that result.
func (g *Group[T]) DoContext(ctx context.Context, key string, fn func(context.Context) (T, error)) (val T, err error, shared bool) {
	for {
		c, leader := g.join(key)
		if leader {
			g.run(ctx, key, c, func() (T, error) { return fn(ctx) })
			return c.val, c.err, false
		}
		select {
		case <-c.done:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err(), true
		}
		if c.interrupted && ctx.Err() == nil {
			continue
		}
		return c.val, c.err, true
	}
}

func (g *Group[T]) join(key string) (*call[T], bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls == nil {
		g.calls = make(map[string]*call[T])
	}
	if c, ok := g.calls[key]; ok {
		return c, false
	}
	c := &call[T]{done: make(chan struct{})}
	g.calls[key] = c
	return c, true
}

func (g *Group[T]) run(ctx context.Context, key string, c *call[T], fn func() (T, error)) {
	defer close(c.done)
	defer func() {
		if r := recover(); r != nil {
			g.drop(key, c)
			panic(r)
		}
	}()
	c.val, c.err = fn()
	if ctx != nil && ctx.Err() != nil {
		c.interrupted = true
		g.drop(key, c)
	}
}

// drop removes key only while it still refers to c.
func (g *Group[T]) drop(key string, c *call[T]) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls[key] == c {
		delete(g.calls, key)
	}
}

// Lookup returns the completed result for key, if any, without blocking.
func (g *Group[T]) Lookup(key string) (T, bool) {
	g.mu.Lock()
	c, ok := g.calls[key]
	g.mu.Unlock()
	if !ok {
		var zero T
		return zero, false
	}
	select {
	case <-c.done:
		return c.val, true
	default:
		var zero T
		return zero, false
	}
}

// Forget drops key so the next Do runs fn again. Waiters on an in-progress
// call still receive its result.
func (g *Group[T]) Forget(key string) {
	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
}

// Len returns the number of keys tracked.
func (g *Group[T]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
