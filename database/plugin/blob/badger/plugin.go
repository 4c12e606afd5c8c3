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
	"sync"

	"github.com/blinklabs-io/wilhelmina/database/plugin"
)

// DefaultCacheSize fits the serial counters of many communities
const DefaultCacheSize = 8 << 20

var (
	cmdlineOptions struct {
		dataDir    string
		cacheSize  uint64
		gcEnabled  bool
		syncWrites bool
	}
	cmdlineOptionsMutex sync.RWMutex
)

// Register plugin
func init() {
	cmdlineOptions.dataDir = ".wilhelmina"
	cmdlineOptions.cacheSize = DefaultCacheSize
	cmdlineOptions.gcEnabled = true
	cmdlineOptions.syncWrites = true
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeBlob,
			Name:               "badger",
			Description:        "BadgerDB local key-value store (default)",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "data-dir",
					Type:         plugin.PluginOptionTypeString,
					Description:  "data directory for badger storage, empty for in-memory",
					DefaultValue: ".wilhelmina",
					Dest:         &(cmdlineOptions.dataDir),
				},
				{
					Name:         "cache-size",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "combined block and index cache size in bytes",
					DefaultValue: uint64(DefaultCacheSize),
					Dest:         &(cmdlineOptions.cacheSize),
				},
				{
					Name:         "gc",
					Type:         plugin.PluginOptionTypeBool,
					Description:  "enable value log garbage collection",
					DefaultValue: true,
					Dest:         &(cmdlineOptions.gcEnabled),
				},
				{
					Name:         "sync-writes",
					Type:         plugin.PluginOptionTypeBool,
					Description:  "fsync every serial allocation",
					DefaultValue: true,
					Dest:         &(cmdlineOptions.syncWrites),
				},
			},
		},
	)
}

func NewFromCmdlineOptions() plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	defer cmdlineOptionsMutex.RUnlock()
	return NewWithOptions(
		WithDataDir(cmdlineOptions.dataDir),
		WithCacheSize(cmdlineOptions.cacheSize),
		WithGc(cmdlineOptions.gcEnabled),
		WithSyncWrites(cmdlineOptions.syncWrites),
	)
}
