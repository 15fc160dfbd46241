package asset

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds Batch when no positive limit is given.
const DefaultConcurrency = 8

// Batch applies fn to every asset with at most limit calls in flight and
// returns the results in input order. The first error cancels the context
// passed to the remaining calls and is returned once all calls finish.
func Batch(ctx context.Context, assets []Asset, limit int, fn func(context.Context, Asset) (Asset, error)) ([]Asset, error) {
	out := make([]Asset, len(assets))
	copy(out, assets)
	if len(assets) == 0 {
		return out, nil
	}
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, a := range assets {
		g.Go(func() error {
			res, err := fn(gctx, a)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}
