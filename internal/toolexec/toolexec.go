// Package toolexec runs the external probe and encode tools.
//
// Command lines come from configuration as single strings. They are split
// with shell quoting rules first and placeholders are substituted per
// argument afterwards, so paths containing spaces never need quoting.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mattn/go-shellwords"
)

// Placeholders recognised in command templates.
const (
	InputPlaceholder  = "{input}"
	OutputPlaceholder = "{output}"
)

// ErrEmptyCommand is returned when a template expands to no arguments.
var ErrEmptyCommand = errors.New("empty command")

// Runner executes argv and returns its standard output.
type Runner interface {
	Run(ctx context.Context, argv []string) ([]byte, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, argv []string) ([]byte, error)

func (f RunnerFunc) Run(ctx context.Context, argv []string) ([]byte, error) { return f(ctx, argv) }

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes argv[0] with the remaining arguments. A non-zero exit is
// reported together with the trimmed standard error output.
func (ExecRunner) Run(ctx context.Context, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // command comes from trusted configuration
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.Bytes(), fmt.Errorf("%s: %w: %s", Name(argv), err, msg)
		}
		return stdout.Bytes(), fmt.Errorf("%s: %w", Name(argv), err)
	}
	return stdout.Bytes(), nil
}

// Vars maps placeholders to their values.
type Vars map[string]string

// Expand splits template into arguments and substitutes vars in each one.
func Expand(template string, vars Vars) ([]string, error) {
	args, err := shellwords.Parse(template)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", template, err)
	}
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}
	for i, a := range args {
		for k, v := range vars {
			a = strings.ReplaceAll(a, k, v)
		}
		args[i] = a
	}
	return args, nil
}

// ExpandInput expands template with {input} set to path, appending path as
// the last argument when the template has no {input} placeholder.
func ExpandInput(template, path string) ([]string, error) {
	args, err := Expand(template, Vars{InputPlaceholder: path})
	if err != nil {
		return nil, err
	}
	if !strings.Contains(template, InputPlaceholder) {
		args = append(args, path)
	}
	return args, nil
}

// Name returns the base name of the executable, for logs and metrics.
func Name(argv []string) string {
	if len(argv) == 0 {
		return ""
	}
	return filepath.Base(argv[0])
}
