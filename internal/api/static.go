// Warden - Fault-Contained HTTP Front Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package api

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/tomtom215/warden/internal/cache"
	"github.com/tomtom215/warden/internal/middleware"
)

// pageCacheCapacity covers the fixed page set with room for future pages.
const pageCacheCapacity = 16

// page is a static file read into memory.
type page struct {
	name    string
	modTime time.Time
	data    []byte
}

// pageStore reads static pages from root, keeping successful reads in an
// optional TTL cache. A nil cache reads through on every request.
type pageStore struct {
	root  fs.FS
	cache *cache.LRU[page]
}

func newPageStore(root fs.FS, ttl time.Duration) *pageStore {
	s := &pageStore{root: root}
	if ttl > 0 {
		s.cache = cache.New[page](pageCacheCapacity, ttl)
	}
	return s
}

// load returns the named page. Missing files and directories in their place
// read as fs.ErrNotExist. Failures are never cached.
func (s *pageStore) load(name string) (page, error) {
	if s.cache != nil {
		if p, ok := s.cache.Get(name); ok {
			return p, nil
		}
	}

	f, err := s.root.Open(name)
	if err != nil {
		return page{}, fmt.Errorf("open static page %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return page{}, fmt.Errorf("stat static page %s: %w", name, err)
	}
	if info.IsDir() {
		return page{}, fmt.Errorf("static page %s is a directory: %w", name, fs.ErrNotExist)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return page{}, fmt.Errorf("read static page %s: %w", name, err)
	}

	p := page{name: info.Name(), modTime: info.ModTime(), data: data}
	if s.cache != nil {
		s.cache.Add(name, p)
	}
	return p, nil
}

// staticPage serves one named file for any method and any path under its
// route. Load failures are returned to the route boundary.
func (s *pageStore) staticPage(name string) middleware.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		p, err := s.load(name)
		if err != nil {
			return err
		}
		w.Header().Set("Cache-Control", "public, max-age=300")
		http.ServeContent(w, r, p.name, p.modTime, bytes.NewReader(p.data))
		return nil
	}
}
