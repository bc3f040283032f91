// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package signature

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce coalesces bursts of writes from editors into one reload.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reports changes to signature files below a set of directories.
// A running registry is never mutated; callers rebuild one in OnChange.
type Watcher struct {
	onChange func()
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   zerolog.Logger

	mu    sync.Mutex
	timer *time.Timer

	// serializes onChange
	runMu sync.Mutex
}

// NewWatcher starts watching dirs and every directory below them. Events are
// queued from the moment NewWatcher returns; Run delivers them.
func NewWatcher(dirs []string, onChange func(), logger zerolog.Logger) (*Watcher, error) {
	if len(dirs) == 0 {
		return nil, errors.New("no signature directories to watch")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		onChange: onChange,
		watcher:  fw,
		debounce: DefaultDebounce,
		logger:   logger.With().Str("component", "signature.watcher").Logger(),
	}
	for _, dir := range dirs {
		if err := w.addTree(dir); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// SetDebounce overrides DefaultDebounce. Call it before Run.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

// Run delivers change notifications until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		if err := w.watcher.Close(); err != nil {
			w.logger.Warn().Err(err).Msg("Error closing watcher")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("File watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	// New directories are watched so nested signatures keep triggering.
	if event.Has(fsnotify.Create) {
		if err := w.addTree(event.Name); err == nil {
			w.logger.Debug().Str("path", event.Name).Msg("watching new path")
		}
	}

	if _, ok := FormatFromPath(event.Name); !ok {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	w.logger.Debug().
		Str("op", event.Op.String()).
		Str("file", event.Name).
		Msg("Detected signature file change")
	w.schedule()
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.runMu.Lock()
		defer w.runMu.Unlock()
		w.onChange()
	})
}

// Close stops the watcher without waiting for Run to return.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
