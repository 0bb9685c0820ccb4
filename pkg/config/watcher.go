/*
 * Copyright 2026 HomeGrid Labs.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/homegridlabs/marstekmon/pkg/logger"
)

// Factory produces a fresh configuration value for each reload.
type Factory func() Validator

// Watcher watches a configuration file and, whenever it is rewritten,
// reloads it into a fresh value from the factory, validates it, and invokes
// every subscriber synchronously in registration order. A reload that fails
// to parse or validate is logged and dropped; subscribers only ever see
// configurations that passed validation.
type Watcher struct {
	path    string
	factory Factory
	logger  logger.Logger

	mu          sync.Mutex
	subscribers []func(cfg Validator)

	fsw       *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

// NewWatcher creates a watcher for the given config file. The parent
// directory is watched rather than the file itself so that editors and
// config management tools that replace the file atomically are still seen.
func NewWatcher(path string, factory Factory, log logger.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return &Watcher{
		path:    path,
		factory: factory,
		logger:  log,
		fsw:     fsw,
		done:    make(chan struct{}),
	}, nil
}

// Subscribe registers fn to be called with each successfully reloaded
// configuration. Must be called before Start.
func (w *Watcher) Subscribe(fn func(cfg Validator)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.subscribers = append(w.subscribers, fn)
}

// Start blocks processing file events until the context is canceled or Stop
// is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info().Str("path", w.path).Msg("Watching configuration file")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}

			if !w.isConfigEvent(event) {
				continue
			}

			w.reload(ctx)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}

			w.logger.Error().Err(err).Msg("Config watcher error")
		}
	}
}

// Stop terminates the watch loop.
func (w *Watcher) Stop(_ context.Context) error {
	w.closeOnce.Do(func() {
		close(w.done)
	})

	return w.fsw.Close()
}

func (w *Watcher) isConfigEvent(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return false
	}

	return event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create)
}

func (w *Watcher) reload(ctx context.Context) {
	cfg := w.factory()

	if err := LoadAndValidate(ctx, w.path, cfg); err != nil {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("Ignoring invalid configuration update")
		return
	}

	w.logger.Info().Str("path", w.path).Msg("Configuration file reloaded")

	w.mu.Lock()
	subscribers := make([]func(cfg Validator), len(w.subscribers))
	copy(subscribers, w.subscribers)
	w.mu.Unlock()

	for _, fn := range subscribers {
		fn(cfg)
	}
}
