package commands

import (
	"fmt"
	"text/tabwriter"

	"git.home.luguber.info/inful/mediapipe/internal/cachestore"
	"git.home.luguber.info/inful/mediapipe/internal/config"
	ferrors "git.home.luguber.info/inful/mediapipe/internal/foundation/errors"
	"git.home.luguber.info/inful/mediapipe/internal/logfields"
)

// CacheCmd groups the cache subcommands.
type CacheCmd struct {
	List  CacheListCmd  `cmd:"" help:"List cache categories and their entry counts"`
	Clear CacheClearCmd `cmd:"" help:"Delete one cache category, or all of them"`
}

// CacheListCmd implements 'cache list'.
type CacheListCmd struct{}

func (c *CacheListCmd) Run(g *Global, root *CLI) error {
	store, err := openStore(g, root)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(g.Out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CATEGORY\tENTRIES")
	for _, name := range store.Names() {
		_, _ = fmt.Fprintf(tw, "%s\t%d\n", name, store.Category(name).Len())
	}
	return tw.Flush()
}

// CacheClearCmd implements 'cache clear [category]'.
type CacheClearCmd struct {
	Category string `arg:"" optional:"" help:"Category to clear (default: all)"`
}

func (c *CacheClearCmd) Run(g *Global, root *CLI) error {
	store, err := openStore(g, root)
	if err != nil {
		return err
	}
	names := store.Names()
	if c.Category != "" {
		names = []string{c.Category}
	}
	for _, name := range names {
		if err := store.Remove(name); err != nil {
			return ferrors.FileSystemError("failed to clear cache category").WithCause(err).
				WithContext("category", name).Build()
		}
		root.Logger().Info("Cleared cache category", logfields.Category(name))
	}
	return nil
}

func openStore(g *Global, root *CLI) (*cachestore.Store, error) {
	cfg, err := root.LoadConfig(g)
	if err != nil {
		return nil, err
	}
	return loadStore(cfg, root)
}

func loadStore(cfg *config.Config, root *CLI) (*cachestore.Store, error) {
	store := cachestore.Open(cfg.CacheDir, cachestore.WithLogger(root.Logger()))
	if err := store.Load(); err != nil {
		return nil, ferrors.FileSystemError("failed to load cache").WithCause(err).
			Fatal().WithContext("dir", cfg.CacheDir).Build()
	}
	return store, nil
}
