package commands

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/mediapipe/internal/logfields"
	"git.home.luguber.info/inful/mediapipe/internal/metrics"
	"git.home.luguber.info/inful/mediapipe/internal/pipeline"
	"git.home.luguber.info/inful/mediapipe/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Dir           string        `arg:"" type:"existingdir" help:"Directory tree containing the documents"`
	Ext           []string      `help:"Document extensions to watch" default:".md,.markdown"`
	Debounce      time.Duration `help:"Quiet window before reprocessing" default:"500ms"`
	FlushInterval time.Duration `name:"flush-interval" help:"How often the cache is saved" default:"30s"`
	Initial       bool          `help:"Process every existing document once at startup" default:"true" negatable:""`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.LoadConfig(g)
	if err != nil {
		return err
	}
	logger := root.Logger()

	store, err := loadStore(cfg, root)
	if err != nil {
		return err
	}
	var recorder metrics.Recorder
	if cfg.Metrics.Textfile != "" {
		recorder = metrics.NewPrometheusRecorder(nil)
	}

	flusher, err := watch.NewFlusher(w.FlushInterval, store.Save, logger)
	if err != nil {
		return err
	}
	flusher.Start(g.Ctx)
	defer func() {
		if err := flusher.Stop(context.WithoutCancel(g.Ctx)); err != nil {
			logger.Error("Final cache flush failed", logfields.Error(err))
		}
	}()

	process := func(ctx context.Context, paths []string) {
		pl, err := pipeline.New(cfg,
			pipeline.WithLogger(logger),
			pipeline.WithStore(store),
			pipeline.WithRecorder(recorder))
		if err != nil {
			logger.ErrorContext(ctx, "Failed to create pipeline", logfields.Error(err))
			return
		}
		for _, path := range paths {
			if _, err := os.Stat(path); err != nil {
				continue
			}
			res, err := pl.ProcessFile(ctx, path, "")
			if err != nil {
				logger.ErrorContext(ctx, "Document failed", logfields.Document(path), logfields.Error(err))
				continue
			}
			if res.Written {
				logger.InfoContext(ctx, "Rewrote document", logfields.Document(path), logfields.Count(len(res.Assets)))
			}
		}
		if err := pl.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to finish batch", logfields.Error(err))
		}
	}

	watcher, err := watch.New(w.Dir, w.Ext, process, watch.WithDebounce(w.Debounce), watch.WithLogger(logger))
	if err != nil {
		return err
	}
	if w.Initial {
		docs, err := findDocuments(w.Dir, watcher.Matches)
		if err != nil {
			return err
		}
		process(g.Ctx, docs)
	}
	return watcher.Run(g.Ctx)
}

// findDocuments lists the watched documents under dir, skipping hidden directories.
func findDocuments(dir string, match func(string) bool) ([]string, error) {
	var docs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && len(d.Name()) > 1 && d.Name()[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		if match(path) {
			docs = append(docs, path)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return docs, nil
}
