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

package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/blinklabs-io/wilhelmina/database"
	"github.com/blinklabs-io/wilhelmina/internal/config"
	"github.com/blinklabs-io/wilhelmina/internal/lockfile"
)

// openDatabase opens the configured storage for offline commands. The data
// directory lock keeps them from running beside a serving node.
func openDatabase(
	cfg *config.Config,
	logger *slog.Logger,
) (*database.Database, func() error, error) {
	var lock *lockfile.Lock
	if cfg.DatabasePath != "" {
		var err error
		lock, err = lockfile.Acquire(cfg.DatabasePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
	}
	db, err := database.New(&database.Config{
		DataDir:        cfg.DatabasePath,
		Logger:         logger,
		BlobPlugin:     cfg.BlobPlugin,
		MetadataPlugin: cfg.MetadataPlugin,
	})
	if err != nil {
		return nil, nil, errors.Join(
			fmt.Errorf("opening database: %w", err),
			lock.Release(),
		)
	}
	closeFunc := func() error {
		return errors.Join(db.Close(), lock.Release())
	}
	return db, closeFunc, nil
}
