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

package redis_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/wilhelmina/database/plugin"
	"github.com/blinklabs-io/wilhelmina/database/plugin/blob"
	"github.com/blinklabs-io/wilhelmina/database/plugin/blob/redis"
)

func TestRedisPluginRegistered(t *testing.T) {
	p := plugin.GetPlugin(plugin.PluginTypeBlob, "redis")
	require.NotNil(t, p)
	_, ok := p.(blob.BlobStore)
	assert.True(t, ok)
}

// Runs against a live server when WILHELMINA_TEST_REDIS_ADDR is set
func TestRedisSequenceWraps(t *testing.T) {
	addr := os.Getenv("WILHELMINA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("WILHELMINA_TEST_REDIS_ADDR not set")
	}
	store := redis.NewWithOptions(
		redis.WithAddress(addr),
		redis.WithKeyPrefix("wilhelmina-test-"+uuid.NewString()+":"),
	)
	require.NoError(t, store.Start())
	defer store.Close()
	ctx := context.Background()
	require.NoError(t, store.SetSequence(ctx, "c1", 2))
	var got []uint64
	for range 3 {
		v, err := store.NextInSequence(ctx, "c1", 2)
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []uint64{2, 1, 2}, got)
	peek, err := store.PeekSequence(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), peek)
}
