// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lang

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Store holds the active dictionary and swaps it on reload
type Store struct {
	dict    atomic.Pointer[Dictionary]
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	path    string
	wg      sync.WaitGroup
}

// NewStore loads the dictionary at path. An empty path, or a file that
// cannot be loaded, leaves the defaults in place.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s := &Store{
		logger: logger,
		path:   path,
	}
	s.dict.Store(Default())
	if path != "" {
		if err := s.Reload(); err != nil {
			s.logger.Warn(
				"using default lang",
				"component", "lang",
				"path", path,
				"error", err,
			)
		}
	}
	return s
}

// Get returns the active dictionary. Callers must not modify it.
func (s *Store) Get() *Dictionary {
	return s.dict.Load()
}

// Reload reads the file again. On error the previous dictionary is kept.
func (s *Store) Reload() error {
	if s.path == "" {
		return errors.New("no lang file configured")
	}
	d, err := Load(s.path)
	if err != nil {
		return err
	}
	s.dict.Store(d)
	s.logger.Info(
		"loaded lang file",
		"component", "lang",
		"path", s.path,
	)
	return nil
}

// Watch reloads the dictionary whenever the file changes, until ctx is
// done or Close is called. The parent directory is watched so that editors
// that replace the file are handled.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return errors.New("no lang file configured")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(s.path)); err != nil {
		_ = fsw.Close()
		return err
	}
	s.watcher = fsw
	target := filepath.Clean(s.path)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				_ = fsw.Close()
				return
			case evt, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != target {
					continue
				}
				if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
					continue
				}
				if err := s.Reload(); err != nil {
					s.logger.Warn(
						"lang reload failed, keeping previous text",
						"component", "lang",
						"error", err,
					)
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				s.logger.Warn(
					"lang watcher error",
					"component", "lang",
					"error", err,
				)
			}
		}
	}()
	return nil
}

// Close stops the watcher
func (s *Store) Close() error {
	var err error
	if s.watcher != nil {
		err = s.watcher.Close()
	}
	s.wg.Wait()
	return err
}
