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

package serial_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/wilhelmina/database"
	"github.com/blinklabs-io/wilhelmina/database/plugin/blob/badger"
	"github.com/blinklabs-io/wilhelmina/serial"
)

func newTestStore(t *testing.T) *badger.BlobStoreBadger {
	t.Helper()
	store, err := badger.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSerialsWrapAtCeiling(t *testing.T) {
	store := newTestStore(t)
	var keyIdx atomic.Uint64
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)
	properties.Property("serials cycle 1..ceiling", prop.ForAll(
		func(ceiling uint64, count int) bool {
			alloc := serial.NewAllocator(store, serial.WithCeiling(ceiling))
			community := fmt.Sprintf("c%d", keyIdx.Add(1))
			seen := make(map[uint64]bool)
			for i := range count {
				v, err := alloc.Next(context.Background(), community)
				if err != nil {
					return false
				}
				if v != uint64(i)%ceiling+1 {
					return false
				}
				// Distinct within one cycle
				if uint64(i) < ceiling {
					if seen[v] {
						return false
					}
					seen[v] = true
				}
			}
			return true
		},
		gen.UInt64Range(1, 40),
		gen.IntRange(1, 100),
	))
	properties.TestingRun(t)
}

func TestConcurrentSignsAtCeiling(t *testing.T) {
	store := newTestStore(t)
	alloc := serial.NewAllocator(store)
	ctx := context.Background()
	require.NoError(t, alloc.Seed(ctx, "c1", 9999))
	var wg sync.WaitGroup
	results := make([]uint64, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := alloc.Next(ctx, "c1")
			assert.NoError(t, err)
			results[i] = v
		}()
	}
	wg.Wait()
	assert.ElementsMatch(t, []uint64{9999, 1}, results)
	next, err := alloc.Peek(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next)
}

func TestSeedRange(t *testing.T) {
	alloc := serial.NewAllocator(newTestStore(t), serial.WithCeiling(10))
	ctx := context.Background()
	assert.Error(t, alloc.Seed(ctx, "c1", 0))
	assert.Error(t, alloc.Seed(ctx, "c1", 11))
	require.NoError(t, alloc.Seed(ctx, "c1", 10))
	v, err := alloc.Next(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), v)
}

func TestStoreFailureIsStorageError(t *testing.T) {
	store := newTestStore(t)
	alloc := serial.NewAllocator(store)
	require.NoError(t, store.Close())
	_, err := alloc.Next(context.Background(), "c1")
	var storageErr *database.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "allocate serial", storageErr.Op)
}

func TestFormat(t *testing.T) {
	s, err := serial.Format(7, 9999)
	require.NoError(t, err)
	assert.Equal(t, "0007", s)
	s, err = serial.Format(12, 99999)
	require.NoError(t, err)
	assert.Equal(t, "00012", s)
	_, err = serial.Format(0, 9999)
	assert.Error(t, err)
	assert.Equal(t, 4, serial.Width(9999))
}
