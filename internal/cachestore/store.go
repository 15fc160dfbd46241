// Package cachestore persists named key/value categories as YAML files.
//
// A Store is created once per run: Load at start, Save at the end (and
// periodically in watch mode). Each category lives in <dir>/<name>.yaml as a
// flat mapping. Only categories modified since the last Load or Save are
// written back.
package cachestore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/mediapipe/internal/logfields"
	"git.home.luguber.info/inful/mediapipe/internal/observability"
)

const fileExt = ".yaml"

// Store owns the set of cache categories rooted at one directory.
type Store struct {
	dir    string
	logger *slog.Logger

	mu         sync.Mutex
	categories map[string]*Category
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for load and save diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open returns a Store rooted at dir. Nothing is read until Load.
func Open(dir string, opts ...Option) *Store {
	s := &Store{
		dir:        dir,
		logger:     observability.OrDefault(nil),
		categories: make(map[string]*Category),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the directory category files are stored in.
func (s *Store) Dir() string { return s.dir }

// Category returns the named category, creating an empty one when needed.
func (s *Store) Category(name string) *Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[name]
	if !ok {
		c = newCategory(name)
		s.categories[name] = c
	}
	return c
}

// Names lists the known categories in sorted order.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.categories))
	for n := range s.categories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Load reads every category file in the store directory. A missing directory
// yields an empty store; a corrupt file is logged and its category starts
// empty.
func (s *Store) Load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read cache directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), fileExt)
		path := filepath.Join(s.dir, e.Name())
		values, err := readCategoryFile(path)
		if err != nil {
			s.logger.Warn("Discarding unreadable cache category",
				logfields.Category(name), logfields.Path(path), logfields.Error(err))
			values = map[string]yaml.Node{}
		}
		s.Category(name).reset(values)
	}
	return nil
}

func readCategoryFile(path string) (map[string]yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	entries := map[string]yaml.Node{}
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return entries, nil
}

// Save writes every dirty category atomically (temp file + rename).
func (s *Store) Save() error {
	s.mu.Lock()
	cats := make([]*Category, 0, len(s.categories))
	for _, c := range s.categories {
		cats = append(cats, c)
	}
	s.mu.Unlock()

	var errs []error
	written := 0
	for _, c := range cats {
		ok, err := c.saveIfDirty(s.dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("save category %s: %w", c.name, err))
			continue
		}
		if ok {
			written++
		}
	}
	if written > 0 {
		s.logger.Debug("Cache saved", logfields.Count(written), logfields.Path(s.dir))
	}
	return errors.Join(errs...)
}

// Remove clears the named category and deletes its file.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	delete(s.categories, name)
	s.mu.Unlock()
	err := os.Remove(filepath.Join(s.dir, name+fileExt))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove category %s: %w", name, err)
	}
	return nil
}

func writeAtomic(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, name+fileExt)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace category file: %w", err)
	}
	return nil
}
