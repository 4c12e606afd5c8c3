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

package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/blinklabs-io/wilhelmina/database/plugin/blob"
	"github.com/redis/go-redis/v9"
)

// sequenceScript advances a wrapping sequence atomically.
// KEYS[1] = sequence key
// ARGV[1] = ceiling
// Returns the value handed out.
var sequenceScript = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
local ceiling = tonumber(ARGV[1])
if cur < 1 or cur > ceiling then
    cur = 1
end
local nxt = cur + 1
if cur >= ceiling then
    nxt = 1
end
redis.call("SET", KEYS[1], nxt)
return cur
`)

// BlobStoreRedis keeps sequences in Redis
type BlobStoreRedis struct {
	client    redis.UniversalClient
	logger    *slog.Logger
	addr      string
	password  string
	keyPrefix string
	db        int
}

// NewWithOptions creates a Redis blob store without connecting
func NewWithOptions(opts ...BlobStoreRedisOptionFunc) *BlobStoreRedis {
	d := &BlobStoreRedis{
		addr:      "localhost:6379",
		keyPrefix: "wilhelmina:",
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return d
}

// Start implements the plugin.Plugin interface
func (d *BlobStoreRedis) Start() error {
	if d.client == nil {
		d.client = redis.NewClient(&redis.Options{
			Addr:     d.addr,
			Password: d.password,
			DB:       d.db,
		})
	}
	if err := d.client.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("redis blob: ping %s: %w", d.addr, err)
	}
	d.logger.Info(
		"connected to redis blob store",
		"component", "database",
		"addr", d.addr,
	)
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *BlobStoreRedis) Stop() error {
	return d.Close()
}

// Close closes the client
func (d *BlobStoreRedis) Close() error {
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

func (d *BlobStoreRedis) key(key string) string {
	return d.keyPrefix + "seq:" + key
}

// NextInSequence implements the blob.BlobStore interface
func (d *BlobStoreRedis) NextInSequence(
	ctx context.Context,
	key string,
	ceiling uint64,
) (uint64, error) {
	if ceiling == 0 {
		return 0, blob.ErrInvalidCeiling
	}
	res, err := sequenceScript.Run(ctx, d.client, []string{d.key(key)}, ceiling).Int64()
	if err != nil {
		return 0, fmt.Errorf("advance sequence %q: %w", key, err)
	}
	if res < 1 {
		return 0, fmt.Errorf("advance sequence %q: invalid value %d", key, res)
	}
	return uint64(res), nil
}

// PeekSequence implements the blob.BlobStore interface
func (d *BlobStoreRedis) PeekSequence(ctx context.Context, key string) (uint64, error) {
	val, err := d.client.Get(ctx, d.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read sequence %q: %w", key, err)
	}
	v, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("read sequence %q: %w", key, err)
	}
	if v == 0 {
		return 1, nil
	}
	return v, nil
}

// SetSequence implements the blob.BlobStore interface
func (d *BlobStoreRedis) SetSequence(ctx context.Context, key string, next uint64) error {
	if next == 0 {
		return errors.New("sequence value must be at least 1")
	}
	if err := d.client.Set(ctx, d.key(key), next, 0).Err(); err != nil {
		return fmt.Errorf("write sequence %q: %w", key, err)
	}
	return nil
}
