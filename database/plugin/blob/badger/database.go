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

package badger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blinklabs-io/wilhelmina/database/plugin/blob"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	sequenceKeyPrefix = "seq/"
	// conflicting read-modify-write transactions are retried this many times
	maxConflictRetries = 64
)

// BlobStoreBadger keeps sequences in badger. An empty data dir keeps
// everything in memory.
type BlobStoreBadger struct {
	promRegistry   prometheus.Registerer
	db             *badger.DB
	logger         *slog.Logger
	metrics        *blobMetrics
	gcTicker       *time.Ticker
	gcStopCh       chan struct{}
	dataDir        string
	gcWg           sync.WaitGroup
	cacheSize      uint64
	gcEnabled      bool
	syncWrites     bool
}

// New creates and opens a badger blob store
func New(opts ...BlobStoreBadgerOptionFunc) (*BlobStoreBadger, error) {
	db := NewWithOptions(opts...)
	if err := db.Start(); err != nil {
		return nil, err
	}
	return db, nil
}

// NewWithOptions creates a badger blob store without opening it
func NewWithOptions(opts ...BlobStoreBadgerOptionFunc) *BlobStoreBadger {
	db := &BlobStoreBadger{
		gcEnabled:  true,
		syncWrites: true,
		cacheSize:  DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return db
}

// Start implements the plugin.Plugin interface
func (d *BlobStoreBadger) Start() error {
	var badgerOpts badger.Options
	if d.dataDir == "" {
		badgerOpts = badger.DefaultOptions("").
			WithInMemory(true)
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(d.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(d.dataDir, 0o755); err != nil {
				return fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		// Three quarters of the cache go to blocks, the rest to indexes
		blockCache := int64(d.cacheSize / 4 * 3) //nolint:gosec // controlled by config
		badgerOpts = badger.DefaultOptions(filepath.Join(d.dataDir, "blob")).
			WithBlockCacheSize(blockCache).
			WithIndexCacheSize(int64(d.cacheSize) - blockCache). //nolint:gosec // controlled by config
			// An allocated serial must survive a crash
			WithSyncWrites(d.syncWrites)
	}
	badgerOpts = badgerOpts.
		WithLogger(NewBadgerLogger(d.logger)).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	blobDb, err := badger.Open(badgerOpts)
	if err != nil {
		return fmt.Errorf("failed to open badger store: %w", err)
	}
	d.db = blobDb
	if d.promRegistry != nil {
		d.metrics = newBlobMetrics(d.promRegistry)
	}
	if d.gcEnabled && d.dataDir != "" {
		d.gcTicker = time.NewTicker(5 * time.Minute)
		d.gcStopCh = make(chan struct{})
		d.gcWg.Add(1)
		go d.blobGc(d.gcTicker, d.gcStopCh)
	}
	return nil
}

func (d *BlobStoreBadger) blobGc(t *time.Ticker, stop <-chan struct{}) {
	defer d.gcWg.Done()
	for {
		select {
		case <-t.C:
			// Keep collecting while each pass rewrites a value log file
			for {
				err := d.db.RunValueLogGC(0.5)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					d.logger.Warn(
						fmt.Sprintf("blob DB: GC failure: %s", err),
						"component", "database",
					)
				}
				break
			}
		case <-stop:
			return
		}
	}
}

// Stop implements the plugin.Plugin interface
func (d *BlobStoreBadger) Stop() error {
	return d.Close()
}

// Close stops the GC loop and closes the database
func (d *BlobStoreBadger) Close() error {
	if d.gcTicker != nil {
		d.gcTicker.Stop()
		close(d.gcStopCh)
		d.gcWg.Wait()
		d.gcTicker = nil
	}
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

// DB returns the database handle
func (d *BlobStoreBadger) DB() *badger.DB {
	return d.db
}

var errClosed = errors.New("badger blob store is closed")

func sequenceKey(key string) []byte {
	return []byte(sequenceKeyPrefix + key)
}

func readSequence(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	return blob.DecodeSequence(val)
}

// NextInSequence implements the blob.BlobStore interface
func (d *BlobStoreBadger) NextInSequence(
	ctx context.Context,
	key string,
	ceiling uint64,
) (uint64, error) {
	if ceiling == 0 {
		return 0, blob.ErrInvalidCeiling
	}
	if d.db == nil {
		return 0, errClosed
	}
	k := sequenceKey(key)
	var ret uint64
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		err := d.db.Update(func(txn *badger.Txn) error {
			stored, err := readSequence(txn, k)
			if err != nil {
				return err
			}
			cur, next := blob.Advance(stored, ceiling)
			if err := txn.Set(k, blob.EncodeSequence(next)); err != nil {
				return err
			}
			ret = cur
			return nil
		})
		if err == nil {
			break
		}
		if !errors.Is(err, badger.ErrConflict) || attempt >= maxConflictRetries {
			return 0, fmt.Errorf("advance sequence %q: %w", key, err)
		}
		if d.metrics != nil {
			d.metrics.conflicts.Inc()
		}
	}
	if d.metrics != nil {
		d.metrics.allocations.Inc()
		if ret == ceiling {
			d.metrics.wraps.Inc()
		}
	}
	return ret, nil
}

// PeekSequence implements the blob.BlobStore interface
func (d *BlobStoreBadger) PeekSequence(_ context.Context, key string) (uint64, error) {
	if d.db == nil {
		return 0, errClosed
	}
	var stored uint64
	err := d.db.View(func(txn *badger.Txn) error {
		var err error
		stored, err = readSequence(txn, sequenceKey(key))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("read sequence %q: %w", key, err)
	}
	if stored == 0 {
		return 1, nil
	}
	return stored, nil
}

// SetSequence implements the blob.BlobStore interface
func (d *BlobStoreBadger) SetSequence(_ context.Context, key string, next uint64) error {
	if next == 0 {
		return errors.New("sequence value must be at least 1")
	}
	if d.db == nil {
		return errClosed
	}
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sequenceKey(key), blob.EncodeSequence(next))
	})
	if err != nil {
		return fmt.Errorf("write sequence %q: %w", key, err)
	}
	return nil
}
