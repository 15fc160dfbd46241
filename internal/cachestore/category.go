package cachestore

import (
	"fmt"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// Category is one named key/value mapping. Values are kept as YAML nodes and
// decoded into caller types on read. All methods are safe for concurrent use.
type Category struct {
	name string

	mu      sync.RWMutex
	entries map[string]yaml.Node
	dirty   bool
}

func newCategory(name string) *Category {
	return &Category{name: name, entries: make(map[string]yaml.Node)}
}

// Name returns the category name.
func (c *Category) Name() string { return c.name }

// Get decodes the value stored under key into a generic value.
func (c *Category) Get(key string) (any, bool) {
	var v any
	ok, err := c.GetInto(key, &v)
	if err != nil || !ok {
		return nil, false
	}
	return v, true
}

// GetInto decodes the value stored under key into out. It reports false when
// the key is absent.
func (c *Category) GetInto(key string, out any) (bool, error) {
	c.mu.RLock()
	node, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := node.Decode(out); err != nil {
		return true, fmt.Errorf("decode %s[%s]: %w", c.name, key, err)
	}
	return true, nil
}

// Set stores value under key and marks the category dirty.
func (c *Category) Set(key string, value any) error {
	var node yaml.Node
	if err := node.Encode(value); err != nil {
		return fmt.Errorf("encode %s[%s]: %w", c.name, key, err)
	}
	c.mu.Lock()
	c.entries[key] = node
	c.dirty = true
	c.mu.Unlock()
	return nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (c *Category) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.dirty = true
	}
}

// Clear removes every entry.
func (c *Category) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) > 0 {
		c.entries = make(map[string]yaml.Node)
		c.dirty = true
	}
}

// Len returns the number of entries.
func (c *Category) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns the entry keys in sorted order.
func (c *Category) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Dirty reports whether the category changed since it was last loaded or saved.
func (c *Category) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

func (c *Category) reset(entries map[string]yaml.Node) {
	c.mu.Lock()
	c.entries = entries
	c.dirty = false
	c.mu.Unlock()
}

func (c *Category) saveIfDirty(dir string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return false, nil
	}
	data, err := yaml.Marshal(c.entries)
	if err != nil {
		return false, fmt.Errorf("encode: %w", err)
	}
	if err := writeAtomic(dir, c.name, data); err != nil {
		return false, err
	}
	c.dirty = false
	return true, nil
}
