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

// Package serial hands out the per-community serial numbers stamped into
// soul identifiers. Values run from 1 to the ceiling and then wrap to 1.
package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/blinklabs-io/wilhelmina/database"
	"github.com/blinklabs-io/wilhelmina/database/plugin/blob"
)

const DefaultCeiling uint64 = 9999

// Allocator serializes counter updates per community. The blob store makes
// each read-increment-write atomic on its own; the lock keeps callers in
// one process from contending on the same key.
type Allocator struct {
	store   blob.BlobStore
	logger  *slog.Logger
	locks   map[string]*sync.Mutex
	ceiling uint64
	mu      sync.Mutex
}

type AllocatorOptionFunc func(*Allocator)

// WithCeiling sets the largest serial before wrapping
func WithCeiling(ceiling uint64) AllocatorOptionFunc {
	return func(a *Allocator) {
		a.ceiling = ceiling
	}
}

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) AllocatorOptionFunc {
	return func(a *Allocator) {
		a.logger = logger
	}
}

// NewAllocator creates an allocator on top of a blob store
func NewAllocator(store blob.BlobStore, opts ...AllocatorOptionFunc) *Allocator {
	a := &Allocator{
		store:   store,
		ceiling: DefaultCeiling,
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.ceiling == 0 {
		a.ceiling = DefaultCeiling
	}
	if a.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		a.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return a
}

// Key returns the blob key holding a community's counter
func Key(communityID string) string {
	return "serial/" + communityID
}

// Ceiling returns the largest serial handed out
func (a *Allocator) Ceiling() uint64 {
	return a.ceiling
}

func (a *Allocator) lock(communityID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[communityID]
	if !ok {
		l = &sync.Mutex{}
		a.locks[communityID] = l
	}
	return l
}

// Next returns the community's next serial and advances the counter
func (a *Allocator) Next(ctx context.Context, communityID string) (uint64, error) {
	l := a.lock(communityID)
	l.Lock()
	defer l.Unlock()
	v, err := a.store.NextInSequence(ctx, Key(communityID), a.ceiling)
	if err != nil {
		return 0, &database.StorageError{Op: "allocate serial", Err: err}
	}
	if v == a.ceiling {
		a.logger.Info(
			"serial counter wrapped",
			"component", "serial",
			"community", communityID,
			"ceiling", a.ceiling,
		)
	}
	return v, nil
}

// Peek returns the serial the next allocation will hand out
func (a *Allocator) Peek(ctx context.Context, communityID string) (uint64, error) {
	v, err := a.store.PeekSequence(ctx, Key(communityID))
	if err != nil {
		return 0, &database.StorageError{Op: "peek serial", Err: err}
	}
	if v > a.ceiling {
		return 1, nil
	}
	return v, nil
}

// Seed sets the serial the next allocation will hand out
func (a *Allocator) Seed(ctx context.Context, communityID string, next uint64) error {
	if next < 1 || next > a.ceiling {
		return fmt.Errorf("serial %d out of range 1..%d", next, a.ceiling)
	}
	l := a.lock(communityID)
	l.Lock()
	defer l.Unlock()
	if err := a.store.SetSequence(ctx, Key(communityID), next); err != nil {
		return &database.StorageError{Op: "seed serial", Err: err}
	}
	return nil
}

// Width returns the number of digits needed to print the ceiling
func Width(ceiling uint64) int {
	return len(strconv.FormatUint(ceiling, 10))
}

// Format zero-pads a serial to the width of the ceiling
func Format(serial uint64, ceiling uint64) (string, error) {
	if serial < 1 || serial > ceiling {
		return "", errors.New("serial out of range")
	}
	return fmt.Sprintf("%0*d", Width(ceiling), serial), nil
}
