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
	"log/slog"
	"sync"

	"github.com/blinklabs-io/wilhelmina/database/plugin"
	"github.com/redis/go-redis/v9"
)

type BlobStoreRedisOptionFunc func(*BlobStoreRedis)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) BlobStoreRedisOptionFunc {
	return func(d *BlobStoreRedis) {
		d.logger = logger
	}
}

// WithAddress specifies the host:port of the Redis server
func WithAddress(addr string) BlobStoreRedisOptionFunc {
	return func(d *BlobStoreRedis) {
		d.addr = addr
	}
}

// WithPassword specifies the Redis password
func WithPassword(password string) BlobStoreRedisOptionFunc {
	return func(d *BlobStoreRedis) {
		d.password = password
	}
}

// WithDB specifies the Redis logical database
func WithDB(db int) BlobStoreRedisOptionFunc {
	return func(d *BlobStoreRedis) {
		d.db = db
	}
}

// WithKeyPrefix specifies the prefix for every key written
func WithKeyPrefix(prefix string) BlobStoreRedisOptionFunc {
	return func(d *BlobStoreRedis) {
		d.keyPrefix = prefix
	}
}

// WithClient uses an existing client instead of dialing one on Start
func WithClient(client redis.UniversalClient) BlobStoreRedisOptionFunc {
	return func(d *BlobStoreRedis) {
		d.client = client
	}
}

var (
	cmdlineOptions struct {
		addr      string
		password  string
		keyPrefix string
		db        int
	}
	cmdlineOptionsMutex sync.RWMutex
)

func init() {
	cmdlineOptions.addr = "localhost:6379"
	cmdlineOptions.keyPrefix = "wilhelmina:"
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeBlob,
			Name:               "redis",
			Description:        "Redis key-value store, for counters that outlive the local disk",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "address",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Redis host:port",
					DefaultValue: "localhost:6379",
					Dest:         &(cmdlineOptions.addr),
				},
				{
					Name:         "password",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Redis password",
					DefaultValue: "",
					Dest:         &(cmdlineOptions.password),
				},
				{
					Name:         "db",
					Type:         plugin.PluginOptionTypeInt,
					Description:  "Redis logical database",
					DefaultValue: 0,
					Dest:         &(cmdlineOptions.db),
				},
				{
					Name:         "key-prefix",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Prefix for every Redis key",
					DefaultValue: "wilhelmina:",
					Dest:         &(cmdlineOptions.keyPrefix),
				},
			},
		},
	)
}

func NewFromCmdlineOptions() plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	defer cmdlineOptionsMutex.RUnlock()
	return NewWithOptions(
		WithAddress(cmdlineOptions.addr),
		WithPassword(cmdlineOptions.password),
		WithDB(cmdlineOptions.db),
		WithKeyPrefix(cmdlineOptions.keyPrefix),
	)
}
