package commands

import (
	"errors"
	"path/filepath"

	"git.home.luguber.info/inful/mediapipe/internal/logfields"
	"git.home.luguber.info/inful/mediapipe/internal/pipeline"
)

// ProcessCmd implements the 'process' command.
type ProcessCmd struct {
	Files     []string `arg:"" type:"existingfile" help:"Markdown documents to process"`
	Out       string   `short:"o" help:"Write results into this directory instead of rewriting in place" type:"path"`
	KeepGoing bool     `name:"keep-going" short:"k" help:"Continue with the remaining documents after a failure"`
}

func (p *ProcessCmd) Run(g *Global, root *CLI) (err error) {
	cfg, err := root.LoadConfig(g)
	if err != nil {
		return err
	}
	logger := root.Logger()

	pl, err := pipeline.New(cfg, pipeline.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := pl.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	var failed []error
	for _, file := range p.Files {
		out := ""
		if p.Out != "" {
			out = filepath.Join(p.Out, filepath.Base(file))
		}
		res, perr := pl.ProcessFile(g.Ctx, file, out)
		if perr != nil {
			if !p.KeepGoing || g.Ctx.Err() != nil {
				return perr
			}
			logger.Error("Document failed", logfields.Document(file), logfields.Error(perr))
			failed = append(failed, perr)
			continue
		}
		logger.Info("Processed document",
			logfields.Document(file),
			logfields.Count(len(res.Assets)),
			logfields.Path(outputPath(file, out)),
			logfields.DurationMS(float64(res.Duration.Microseconds())/1000))
	}
	if len(failed) > 0 {
		return failed[0]
	}
	return nil
}

func outputPath(file, out string) string {
	if out != "" {
		return out
	}
	return file
}
