// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package schema

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Cache is a small JSON file cache for schema snapshots. Introspection is
// cheap for SQLite but not for the warehouse targets this service fronts, so
// snapshots are kept across restarts with a TTL.
type Cache struct {
	mu   sync.Mutex
	path string
	ttl  time.Duration
}

type cacheFile struct {
	Entries map[string]cacheEntry `json:"entries"`
}

type cacheEntry struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCache creates a file cache at path. A zero ttl means entries never
// expire.
func NewCache(path string, ttl time.Duration) *Cache {
	return &Cache{path: path, ttl: ttl}
}

// Get returns the cached value for key if present and fresh.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	file, err := c.load()
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("schema cache unreadable, ignoring", "path", c.path, "error", err)
		}
		return "", false
	}
	e, ok := file.Entries[key]
	if !ok {
		return "", false
	}
	if c.ttl > 0 && time.Since(e.UpdatedAt) > c.ttl {
		return "", false
	}
	return e.Value, true
}

// Set stores value under key. The file is rewritten via a temp file and
// rename so a crash mid-write never leaves a truncated cache.
func (c *Cache) Set(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	file, err := c.load()
	if err != nil {
		file = &cacheFile{}
	}
	if file.Entries == nil {
		file.Entries = make(map[string]cacheEntry)
	}
	file.Entries[key] = cacheEntry{Value: value, UpdatedAt: time.Now().UTC()}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding schema cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".schema-cache-*")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing cache file: %w", err)
	}
	return nil
}

// Invalidate removes key from the cache file if present.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	file, err := c.load()
	if err != nil {
		return
	}
	if _, ok := file.Entries[key]; !ok {
		return
	}
	delete(file.Entries, key)
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(c.path, data, 0o644)
}

func (c *Cache) load() (*cacheFile, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}
	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return &file, nil
}
