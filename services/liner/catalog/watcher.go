// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce batches rapid successive writes (editors often truncate
// then write) into a single reload.
const watchDebounce = 500 * time.Millisecond

// Watcher hot-reloads an external catalog file into a live Catalog.
//
// # Description
//
// Watches the directory containing the catalog file (watching the file
// itself breaks on rename-replace saves) and reloads after a debounce
// window. A reload that fails to parse is logged and skipped — the
// previous entry set stays live.
//
// # Thread Safety
//
// Safe for concurrent use with Catalog.Search; reloads go through
// Catalog.ReplaceAll.
type Watcher struct {
	catalog *Catalog
	path    string
	fsw     *fsnotify.Watcher
	logger  *slog.Logger
}

// NewWatcher creates a watcher for the given external catalog file.
// The file must exist at construction time.
func NewWatcher(c *Catalog, path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("catalog watch target: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}
	return &Watcher{catalog: c, path: path, fsw: fsw, logger: logger}, nil
}

// Run processes file events until the context is cancelled. Blocking;
// callers run it in its own goroutine.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				timer.Reset(watchDebounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("catalog watcher error", slog.String("error", err.Error()))
		}
	}
}

// reload re-parses the file and swaps the entry set. Parse failures keep
// the previous entries.
func (w *Watcher) reload() {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Warn("catalog reload: read failed", slog.String("path", w.path), slog.String("error", err.Error()))
		return
	}
	entries, err := parseYAML(raw)
	if err != nil {
		w.logger.Warn("catalog reload: parse failed, keeping previous entries",
			slog.String("path", w.path), slog.String("error", err.Error()))
		return
	}
	w.catalog.ReplaceAll(entries)
	w.logger.Info("catalog reloaded", slog.String("path", w.path), slog.Int("entries", len(entries)))
}
