package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	ferrors "git.home.luguber.info/inful/mediapipe/internal/foundation/errors"
	"git.home.luguber.info/inful/mediapipe/internal/logfields"
)

// ProcessFile processes the document at path. The output goes to out, or
// back to path when out is empty. An in-place rewrite that changes nothing
// leaves the file untouched.
func (p *Pipeline) ProcessFile(ctx context.Context, path, out string) (*Result, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, ferrors.FileSystemError("failed to read document").WithCause(err).
			WithContext("path", path).Build()
	}

	res, err := p.Process(ctx, path, doc)
	if err != nil {
		return res, err
	}

	dest := out
	if dest == "" {
		dest = path
		if bytes.Equal(res.Output, doc) {
			return res, nil
		}
	}
	if err := writeFile(dest, res.Output); err != nil {
		return res, ferrors.FileSystemError("failed to write document").WithCause(err).
			WithContext("path", dest).Build()
	}
	res.Written = true
	p.logger.DebugContext(ctx, "Document written", logfields.Path(dest))
	return res, nil
}

// writeFile replaces dest atomically, keeping the original file mode.
func writeFile(dest string, data []byte) error {
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(dest); err == nil {
		mode = fi.Mode().Perm()
	}
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
